package datasource

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ephyslab/peeler/internal/labels"
	"github.com/ephyslab/peeler/internal/persist"
	"github.com/ephyslab/peeler/internal/protocol"
)

// segmentHeader is the first frame of every segment file: the fixed
// acquisition parameters spec.md §6 exposes as sample_rate/nb_channel/
// source_dtype, plus the segment's sample length.
type segmentHeader struct {
	SampleRate  float64 `json:"sample_rate"`
	NbChannel   int     `json:"nb_channel"`
	SourceDType string  `json:"source_dtype"`
	Length      int64   `json:"length"`
}

// FileSource is an offline DataIO backed by one flat binary file per
// segment under a directory: a CONTROL frame carrying segmentHeader,
// followed by DATA frames carrying raw interleaved float64 samples
// (protocol.Frame's fixed-header binary encoding, per spec.md §6's
// "offline replay" collaborator), terminated by a FILE_END frame.
// The processed signal and spike table are written to sibling files
// using internal/persist.
type FileSource struct {
	dir      string
	segments []string // base filenames (without extension), one per segment
	headers  map[int]segmentHeader

	sigFiles map[int]*os.File
	sigW     map[int]*persist.SignalWriter
	spkFiles map[int]*os.File
	spkW     map[int]*persist.SpikeWriter
}

// OpenFileSource discovers segment files (named "*.raw") under dir.
func OpenFileSource(dir string) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("open file source: %w", err)
	}
	var segs []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".raw" {
			continue
		}
		segs = append(segs, strings.TrimSuffix(e.Name(), ".raw"))
	}
	sort.Strings(segs)
	if len(segs) == 0 {
		return nil, fmt.Errorf("no segment files (*.raw) found in %s", dir)
	}

	return &FileSource{
		dir:      dir,
		segments: segs,
		headers:  make(map[int]segmentHeader),
		sigFiles: make(map[int]*os.File),
		sigW:     make(map[int]*persist.SignalWriter),
		spkFiles: make(map[int]*os.File),
		spkW:     make(map[int]*persist.SpikeWriter),
	}, nil
}

func (f *FileSource) rawPath(segNum int) string {
	return filepath.Join(f.dir, f.segments[segNum]+".raw")
}

func (f *FileSource) header(segNum int) (segmentHeader, error) {
	if h, ok := f.headers[segNum]; ok {
		return h, nil
	}
	if segNum < 0 || segNum >= len(f.segments) {
		return segmentHeader{}, fmt.Errorf("segment %d out of range [0,%d)", segNum, len(f.segments))
	}
	file, err := os.Open(f.rawPath(segNum))
	if err != nil {
		return segmentHeader{}, fmt.Errorf("open segment %d: %w", segNum, err)
	}
	defer file.Close()

	frame, err := readFrame(file)
	if err != nil {
		return segmentHeader{}, fmt.Errorf("read segment %d header: %w", segNum, err)
	}
	if frame.Type != protocol.TypeControl {
		return segmentHeader{}, fmt.Errorf("segment %d: expected CONTROL header frame, got %s", segNum, frame.TypeName())
	}
	var h segmentHeader
	if err := json.Unmarshal(frame.Payload, &h); err != nil {
		return segmentHeader{}, fmt.Errorf("segment %d: decode header: %w", segNum, err)
	}
	f.headers[segNum] = h
	return h, nil
}

// readFrame reads exactly one protocol.Frame from r.
func readFrame(r io.Reader) (*protocol.Frame, error) {
	head := make([]byte, protocol.HeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	payloadLen := binary.BigEndian.Uint16(head[2:4])
	rest := make([]byte, int(payloadLen)+protocol.CRCSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("truncated frame: %w", err)
	}
	return protocol.DecodeFrame(append(head, rest...))
}

func (f *FileSource) SampleRate() float64 {
	h, err := f.header(0)
	if err != nil {
		return 0
	}
	return h.SampleRate
}

func (f *FileSource) NbChannel(chanGrp int) int {
	h, err := f.header(0)
	if err != nil {
		return 0
	}
	return h.NbChannel
}

func (f *FileSource) SourceDType() string {
	h, err := f.header(0)
	if err != nil {
		return ""
	}
	return h.SourceDType
}

func (f *FileSource) NbSegment() int { return len(f.segments) }

func (f *FileSource) GetSegmentLength(segNum int) (int64, error) {
	h, err := f.header(segNum)
	if err != nil {
		return 0, err
	}
	return h.Length, nil
}

// fileChunkIterator re-chunks the underlying DATA frames (written at
// whatever raw frame size fit protocol.MaxPayloadSize) into the
// caller-requested chunksize, per spec.md §6's iter_over_chunk.
type fileChunkIterator struct {
	r         io.Reader
	nbChannel int
	chunksize int
	pos       int64
	buf       [][]float64
	eof       bool
	err       error
}

func (it *fileChunkIterator) fill() {
	for !it.eof && len(it.buf) < it.chunksize {
		frame, err := readFrame(it.r)
		if err != nil {
			if err == io.EOF {
				it.eof = true
				return
			}
			it.err = err
			return
		}
		if frame.Type == protocol.TypeFileEnd {
			it.eof = true
			return
		}
		if frame.Type != protocol.TypeData {
			it.err = fmt.Errorf("unexpected frame type %s in chunk stream", frame.TypeName())
			return
		}
		samples := len(frame.Payload) / 8 / it.nbChannel
		off := 0
		for t := 0; t < samples; t++ {
			row := make([]float64, it.nbChannel)
			for c := range row {
				row[c] = math.Float64frombits(binary.BigEndian.Uint64(frame.Payload[off : off+8]))
				off += 8
			}
			it.buf = append(it.buf, row)
		}
	}
}

func (it *fileChunkIterator) Next() (int64, [][]float64, bool) {
	if it.err != nil {
		return 0, nil, false
	}
	it.fill()
	if it.err != nil || len(it.buf) == 0 {
		return 0, nil, false
	}
	n := it.chunksize
	if n > len(it.buf) {
		n = len(it.buf)
	}
	chunk := it.buf[:n]
	it.buf = it.buf[n:]
	it.pos += int64(n)
	return it.pos, chunk, true
}

func (it *fileChunkIterator) Err() error { return it.err }

func (f *FileSource) IterOverChunk(segNum, chanGrp, chunksize int) (ChunkIterator, error) {
	if chunksize <= 0 {
		return nil, fmt.Errorf("chunksize must be > 0, got %d", chunksize)
	}
	h, err := f.header(segNum)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(f.rawPath(segNum))
	if err != nil {
		return nil, fmt.Errorf("open segment %d: %w", segNum, err)
	}
	// Skip the CONTROL header frame; readFrame advances file's cursor.
	if _, err := readFrame(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("segment %d: re-reading header: %w", segNum, err)
	}
	return &fileChunkIterator{r: file, nbChannel: h.NbChannel, chunksize: chunksize}, nil
}

func (f *FileSource) sigWriter(segNum int) (*persist.SignalWriter, error) {
	if w, ok := f.sigW[segNum]; ok {
		return w, nil
	}
	path := filepath.Join(f.dir, f.segments[segNum]+".processed.bin")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open processed-signal file for segment %d: %w", segNum, err)
	}
	w := persist.NewSignalWriter(file)
	f.sigFiles[segNum] = file
	f.sigW[segNum] = w
	return w, nil
}

func (f *FileSource) spkWriter(segNum int) (*persist.SpikeWriter, error) {
	if w, ok := f.spkW[segNum]; ok {
		return w, nil
	}
	path := filepath.Join(f.dir, f.segments[segNum]+".spikes.bin")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open spike-table file for segment %d: %w", segNum, err)
	}
	w, err := persist.NewSpikeWriter(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	f.spkFiles[segNum] = file
	f.spkW[segNum] = w
	return w, nil
}

func (f *FileSource) ResetProcessedSignals(segNum int) error {
	if file, ok := f.sigFiles[segNum]; ok {
		file.Close()
		delete(f.sigFiles, segNum)
		delete(f.sigW, segNum)
	}
	path := filepath.Join(f.dir, f.segments[segNum]+".processed.bin")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset processed signals for segment %d: %w", segNum, err)
	}
	return nil
}

func (f *FileSource) ResetSpikes(segNum int) error {
	if file, ok := f.spkFiles[segNum]; ok {
		file.Close()
		delete(f.spkFiles, segNum)
		delete(f.spkW, segNum)
	}
	path := filepath.Join(f.dir, f.segments[segNum]+".spikes.bin")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset spikes for segment %d: %w", segNum, err)
	}
	return nil
}

func (f *FileSource) SetSignalsChunk(segNum int, pos int64, chunk [][]float64) error {
	w, err := f.sigWriter(segNum)
	if err != nil {
		return err
	}
	return w.WriteChunk(pos, chunk)
}

func (f *FileSource) AppendSpikes(segNum int, batch []labels.Spike) error {
	w, err := f.spkWriter(segNum)
	if err != nil {
		return err
	}
	return w.WriteBatch(batch)
}

func (f *FileSource) FlushProcessedSignals(segNum int) error {
	if file, ok := f.sigFiles[segNum]; ok {
		return file.Sync()
	}
	return nil
}

func (f *FileSource) FlushSpikes(segNum int) error {
	if file, ok := f.spkFiles[segNum]; ok {
		return file.Sync()
	}
	return nil
}

func (f *FileSource) Close() error {
	var firstErr error
	for _, file := range f.sigFiles {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, file := range f.spkFiles {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
