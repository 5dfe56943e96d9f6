package datasource

import (
	"fmt"

	"github.com/ephyslab/peeler/internal/audio"
	"github.com/ephyslab/peeler/internal/labels"
	"github.com/ephyslab/peeler/internal/persist"
)

// LiveCapture is a DataIO over a live multi-electrode PortAudio input
// device: always exactly one (open-ended) segment, read through
// internal/audio.Capture's nb_channel-wide, input-only capture. The
// processed signal and spike
// table are written to sig/spikeOut, mirroring FileSource's use of
// internal/persist.
type LiveCapture struct {
	cap         *audio.Capture
	sampleRate  float64
	nbChannel   int
	sourceDType string

	sigW *persist.SignalWriter
	spkW *persist.SpikeWriter
}

// NewLiveCapture constructs a LiveCapture for nbChannel input channels
// at sampleRate, writing the processed signal and spike table to
// sigOut/spkOut (typically files opened by the caller).
func NewLiveCapture(sampleRate float64, nbChannel, framesPerBuf int, sigOut *persist.SignalWriter, spkOut *persist.SpikeWriter) (*LiveCapture, error) {
	if nbChannel <= 0 {
		return nil, fmt.Errorf("nb_channel must be > 0, got %d", nbChannel)
	}
	c := audio.NewCapture(nbChannel, sampleRate, framesPerBuf)
	if err := c.Open(sampleRate); err != nil {
		return nil, fmt.Errorf("open live capture: %w", err)
	}
	if err := c.Start(); err != nil {
		c.Close()
		return nil, fmt.Errorf("start live capture: %w", err)
	}
	return &LiveCapture{
		cap:         c,
		sampleRate:  sampleRate,
		nbChannel:   nbChannel,
		sourceDType: "float64",
		sigW:        sigOut,
		spkW:        spkOut,
	}, nil
}

func (l *LiveCapture) SampleRate() float64   { return l.sampleRate }
func (l *LiveCapture) NbChannel(int) int     { return l.nbChannel }
func (l *LiveCapture) SourceDType() string   { return l.sourceDType }
func (l *LiveCapture) NbSegment() int        { return 1 }

// GetSegmentLength has no fixed answer for an open-ended live stream;
// spec.md §6 names it only for offline replay sources.
func (l *LiveCapture) GetSegmentLength(segNum int) (int64, error) {
	return 0, fmt.Errorf("live capture has no fixed segment length")
}

// liveChunkIterator re-chunks audio.Capture's fixed-FramesPerBuf reads
// into the caller-requested chunksize.
type liveChunkIterator struct {
	cap       *audio.Capture
	chunksize int
	pos       int64
	buf       [][]float64
	err       error
}

func (it *liveChunkIterator) Next() (int64, [][]float64, bool) {
	for len(it.buf) < it.chunksize {
		frame, err := it.cap.ReadChunk()
		if err != nil {
			it.err = err
			return 0, nil, false
		}
		it.buf = append(it.buf, frame...)
	}
	chunk := it.buf[:it.chunksize]
	it.buf = it.buf[it.chunksize:]
	it.pos += int64(it.chunksize)
	return it.pos, chunk, true
}

func (it *liveChunkIterator) Err() error { return it.err }

func (l *LiveCapture) IterOverChunk(segNum, chanGrp, chunksize int) (ChunkIterator, error) {
	if segNum != 0 {
		return nil, fmt.Errorf("live capture has a single segment, got segNum=%d", segNum)
	}
	if chunksize <= 0 {
		return nil, fmt.Errorf("chunksize must be > 0, got %d", chunksize)
	}
	return &liveChunkIterator{cap: l.cap, chunksize: chunksize}, nil
}

func (l *LiveCapture) ResetProcessedSignals(segNum int) error { return nil }
func (l *LiveCapture) ResetSpikes(segNum int) error           { return nil }

func (l *LiveCapture) SetSignalsChunk(segNum int, pos int64, chunk [][]float64) error {
	if l.sigW == nil {
		return nil
	}
	return l.sigW.WriteChunk(pos, chunk)
}

func (l *LiveCapture) AppendSpikes(segNum int, batch []labels.Spike) error {
	if l.spkW == nil {
		return nil
	}
	return l.spkW.WriteBatch(batch)
}

func (l *LiveCapture) FlushProcessedSignals(segNum int) error { return nil }
func (l *LiveCapture) FlushSpikes(segNum int) error           { return nil }

func (l *LiveCapture) Close() error {
	return l.cap.Close()
}
