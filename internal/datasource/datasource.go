// Package datasource implements the data-I/O handle of spec.md §6:
// segment and chunk iteration over a recording, plus persistence of
// the processed signal and spike table each segment run produces.
package datasource

import "github.com/ephyslab/peeler/internal/labels"

// DataIO is the contract spec.md §6 names: sample_rate, nb_channel,
// source_dtype, nb_segment, get_segment_length, iter_over_chunk,
// reset/set/append/flush for the two persisted streams.
type DataIO interface {
	SampleRate() float64
	NbChannel(chanGrp int) int
	SourceDType() string
	NbSegment() int
	GetSegmentLength(segNum int) (int64, error)

	// IterOverChunk returns a cursor over (pos, chunk) pairs for one
	// segment, chan_grp and chunksize. pos is the cumulative one-past-
	// end absolute sample position after each chunk, matching the
	// convention internal/peeler.Driver.ProcessChunk expects.
	IterOverChunk(segNum, chanGrp, chunksize int) (ChunkIterator, error)

	ResetProcessedSignals(segNum int) error
	ResetSpikes(segNum int) error
	SetSignalsChunk(segNum int, pos int64, chunk [][]float64) error
	AppendSpikes(segNum int, batch []labels.Spike) error
	FlushProcessedSignals(segNum int) error
	FlushSpikes(segNum int) error

	Close() error
}

// ChunkIterator walks the raw chunks of one segment, bufio.Scanner-style.
type ChunkIterator interface {
	// Next advances to the next chunk. It returns false once the
	// segment is exhausted or an error occurred; check Err in that case.
	Next() (pos int64, chunk [][]float64, ok bool)
	Err() error
}

var (
	_ DataIO = (*FileSource)(nil)
	_ DataIO = (*LiveCapture)(nil)
)
