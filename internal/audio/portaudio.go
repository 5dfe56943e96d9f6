// Package audio wraps PortAudio for live multi-channel acquisition,
// generalized from a single-channel microphone/speaker duplex into
// the nb_channel-wide, input-only capture internal/datasource.LiveCapture
// needs for streaming electrophysiology.
package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// DefaultFramesPerBuf is the PortAudio callback buffer size; a
// LiveCapture caller is free to re-chunk the samples it reads into
// whatever chunksize the peeler driver was configured with.
const DefaultFramesPerBuf = 1024

// Capture wraps a PortAudio input stream reading nbChannel interleaved
// channels at sampleRate.
type Capture struct {
	stream       *portaudio.Stream
	buf          []float32
	nbChannel    int
	framesPerBuf int
	mu           sync.Mutex
}

// Init initializes PortAudio. Must be called once before any Capture
// is opened.
func Init() error {
	return portaudio.Initialize()
}

// Terminate cleans up PortAudio.
func Terminate() error {
	return portaudio.Terminate()
}

// NewCapture creates a Capture for nbChannel channels at sampleRate,
// unopened.
func NewCapture(nbChannel int, sampleRate float64, framesPerBuf int) *Capture {
	if framesPerBuf <= 0 {
		framesPerBuf = DefaultFramesPerBuf
	}
	return &Capture{
		buf:          make([]float32, framesPerBuf*nbChannel),
		nbChannel:    nbChannel,
		framesPerBuf: framesPerBuf,
	}
}

// Open opens the default input device's stream.
func (c *Capture) Open(sampleRate float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream, err := portaudio.OpenDefaultStream(
		c.nbChannel, // input channels
		0,           // output channels
		sampleRate,
		c.framesPerBuf,
		c.buf,
	)
	if err != nil {
		return fmt.Errorf("open capture stream: %w", err)
	}
	c.stream = stream
	return nil
}

// Start starts the stream.
func (c *Capture) Start() error {
	if c.stream == nil {
		return fmt.Errorf("capture stream not opened")
	}
	return c.stream.Start()
}

// Stop stops the stream.
func (c *Capture) Stop() error {
	if c.stream == nil {
		return nil
	}
	return c.stream.Stop()
}

// ReadChunk blocks for one buffer of framesPerBuf samples and
// deinterleaves it into a (framesPerBuf, nbChannel) float64 chunk,
// the shape internal/peeler.Driver.ProcessChunk expects.
func (c *Capture) ReadChunk() ([][]float64, error) {
	if c.stream == nil {
		return nil, fmt.Errorf("capture stream not opened")
	}
	if err := c.stream.Read(); err != nil {
		return nil, fmt.Errorf("read capture stream: %w", err)
	}

	chunk := make([][]float64, c.framesPerBuf)
	for t := range chunk {
		row := make([]float64, c.nbChannel)
		for ch := range row {
			row[ch] = float64(c.buf[t*c.nbChannel+ch])
		}
		chunk[t] = row
	}
	return chunk, nil
}

// Close closes the stream.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	return err
}
