package persist

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/ephyslab/peeler/internal/fec"
	"github.com/ephyslab/peeler/internal/labels"
)

// spikeRecordSize is the encoded size of one labels.Spike: Index
// (int64) + Label (int64) + Jitter (float64).
const spikeRecordSize = 8 + 8 + 8

// SpikeWriter appends Reed-Solomon protected spike-table batches
// (spec.md §6's append_spikes), one record per append_spikes call.
// The spike table is the durable scientific artifact of a sorting
// run, so it gets the same resilience-over-the-wire treatment the
// teacher gives file-transfer payloads (internal/fec/reed_solomon.go),
// rather than the simpler CRC-only scheme used for the processed
// signal in signal.go.
type SpikeWriter struct {
	w  io.Writer
	rs *fec.RSEncoder
}

// NewSpikeWriter wraps w for writing, using the default 223/32 RS
// shard split.
func NewSpikeWriter(w io.Writer) (*SpikeWriter, error) {
	rs, err := fec.NewRSEncoder()
	if err != nil {
		return nil, fmt.Errorf("new spike writer: %w", err)
	}
	return &SpikeWriter{w: w, rs: rs}, nil
}

// WriteBatch persists one chunk's spike batch.
func (s *SpikeWriter) WriteBatch(batch []labels.Spike) error {
	raw := make([]byte, spikeRecordSize*len(batch))
	for i, spk := range batch {
		off := i * spikeRecordSize
		binary.BigEndian.PutUint64(raw[off:off+8], uint64(spk.Index))
		binary.BigEndian.PutUint64(raw[off+8:off+16], uint64(spk.Label))
		binary.BigEndian.PutUint64(raw[off+16:off+24], math.Float64bits(spk.Jitter))
	}

	var encoded []byte
	var err error
	if len(raw) > 0 {
		encoded, err = s.rs.Encode(raw)
		if err != nil {
			return fmt.Errorf("RS encode spike batch: %w", err)
		}
	}

	record := make([]byte, 8+len(encoded))
	binary.BigEndian.PutUint32(record[0:4], uint32(len(raw)))
	binary.BigEndian.PutUint32(record[4:8], uint32(len(encoded)))
	copy(record[8:], encoded)

	if _, err := s.w.Write(record); err != nil {
		return fmt.Errorf("write spike record: %w", err)
	}
	return nil
}

// SpikeReader reads back the batches a SpikeWriter produced.
type SpikeReader struct {
	r  io.Reader
	rs *fec.RSEncoder
}

// NewSpikeReader wraps r for reading.
func NewSpikeReader(r io.Reader) (*SpikeReader, error) {
	rs, err := fec.NewRSEncoder()
	if err != nil {
		return nil, fmt.Errorf("new spike reader: %w", err)
	}
	return &SpikeReader{r: r, rs: rs}, nil
}

// ReadBatch returns the next spike batch, or io.EOF once the stream
// is exhausted.
func (s *SpikeReader) ReadBatch() ([]labels.Spike, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(s.r, header); err != nil {
		return nil, err
	}
	rawLen := int(binary.BigEndian.Uint32(header[0:4]))
	encodedLen := int(binary.BigEndian.Uint32(header[4:8]))

	if encodedLen == 0 {
		if rawLen != 0 {
			return nil, fmt.Errorf("spike record claims %d raw bytes with no RS payload", rawLen)
		}
		return nil, nil
	}

	encoded := make([]byte, encodedLen)
	if _, err := io.ReadFull(s.r, encoded); err != nil {
		return nil, fmt.Errorf("truncated spike record: %w", err)
	}

	decoded, err := s.rs.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("RS decode spike batch: %w", err)
	}
	if len(decoded) < rawLen {
		return nil, fmt.Errorf("decoded spike batch shorter than recorded length")
	}
	raw := decoded[:rawLen]

	n := rawLen / spikeRecordSize
	batch := make([]labels.Spike, n)
	for i := range batch {
		off := i * spikeRecordSize
		batch[i] = labels.Spike{
			Index:  int64(binary.BigEndian.Uint64(raw[off : off+8])),
			Label:  int64(binary.BigEndian.Uint64(raw[off+8 : off+16])),
			Jitter: math.Float64frombits(binary.BigEndian.Uint64(raw[off+16 : off+24])),
		}
	}
	return batch, nil
}
