// Package persist implements the two durable streams a segment run
// produces (spec.md §6's persisted-state contract): the preprocessed
// signal and the spike table. It mirrors the teacher's frame-encoding
// idiom (internal/protocol/frame.go) — checksum-then-verify blocks —
// rather than inventing a new on-disk format.
package persist

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/ephyslab/peeler/internal/fec"
)

// SignalWriter appends CRC-32 checked processed-signal blocks, one per
// set_signals_chunk call (spec.md §6). Block layout:
//
//	[pos int64][T uint32][C uint32][T*C float64, row-major][crc32 uint32]
type SignalWriter struct {
	w io.Writer
}

// NewSignalWriter wraps w for writing.
func NewSignalWriter(w io.Writer) *SignalWriter {
	return &SignalWriter{w: w}
}

// WriteChunk persists one (pos, chunk) pair at the positions
// [abs_head-m, abs_head) spec.md §6 describes.
func (s *SignalWriter) WriteChunk(pos int64, chunk [][]float64) error {
	t := len(chunk)
	c := 0
	if t > 0 {
		c = len(chunk[0])
	}

	body := make([]byte, 8+4+4+8*t*c)
	binary.BigEndian.PutUint64(body[0:8], uint64(pos))
	binary.BigEndian.PutUint32(body[8:12], uint32(t))
	binary.BigEndian.PutUint32(body[12:16], uint32(c))

	off := 16
	for _, row := range chunk {
		for _, v := range row {
			binary.BigEndian.PutUint64(body[off:off+8], math.Float64bits(v))
			off += 8
		}
	}

	block := fec.AppendCRC32(body)
	if _, err := s.w.Write(block); err != nil {
		return fmt.Errorf("write signal block: %w", err)
	}
	return nil
}

// SignalReader reads back the blocks a SignalWriter produced.
type SignalReader struct {
	r io.Reader
}

// NewSignalReader wraps r for reading.
func NewSignalReader(r io.Reader) *SignalReader {
	return &SignalReader{r: r}
}

// ReadChunk returns the next (pos, chunk) pair, or io.EOF once the
// stream is exhausted.
func (s *SignalReader) ReadChunk() (int64, [][]float64, error) {
	header := make([]byte, 16)
	if _, err := io.ReadFull(s.r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, nil, fmt.Errorf("truncated signal block header: %w", err)
		}
		return 0, nil, err
	}

	pos := int64(binary.BigEndian.Uint64(header[0:8]))
	t := int(binary.BigEndian.Uint32(header[8:12]))
	c := int(binary.BigEndian.Uint32(header[12:16]))

	rest := make([]byte, 8*t*c+4)
	if _, err := io.ReadFull(s.r, rest); err != nil {
		return 0, nil, fmt.Errorf("truncated signal block body: %w", err)
	}

	full := append(header, rest...)
	data, ok := fec.VerifyCRC32(full)
	if !ok {
		return 0, nil, fmt.Errorf("signal block CRC mismatch at pos %d", pos)
	}

	chunk := make([][]float64, t)
	off := 16
	for i := range chunk {
		row := make([]float64, c)
		for j := range row {
			row[j] = math.Float64frombits(binary.BigEndian.Uint64(data[off : off+8]))
			off += 8
		}
		chunk[i] = row
	}
	return pos, chunk, nil
}
