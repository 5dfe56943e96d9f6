package peeler

import (
	"fmt"
	"sort"

	"github.com/ephyslab/peeler/internal/align"
	"github.com/ephyslab/peeler/internal/catalogue"
	"github.com/ephyslab/peeler/internal/labels"
	"github.com/ephyslab/peeler/internal/peak"
	"github.com/ephyslab/peeler/internal/predict"
	"github.com/ephyslab/peeler/internal/preprocess"
)

// Driver owns the residual FIFO and runs the per-chunk peel loop of
// spec.md §4.5. One Driver serves one segment; InitializeSegment
// resets all per-segment state, and a Driver must not be shared
// across segments running concurrently (its Catalogue may be).
type Driver struct {
	cfg Config

	cat     *catalogue.Catalogue
	derived *catalogue.DerivedCache

	preproc preprocess.Preprocessor

	fifo  [][]float64
	nSpan int

	totalSpike int64
}

// NewDriver validates cfg and constructs a Driver. Configuration
// failures (missing catalogue, unknown preprocessor engine, negative
// chunksize or n_peel_level, non-positive nb_channel) are fatal at
// this point, before any I/O. A zero ChunkSize or NPeelLevel is taken
// as unset and replaced by its default, not rejected.
func NewDriver(cfg Config) (*Driver, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("peeler: %w", err)
	}
	cfg = cfg.withDefaults()
	return &Driver{cfg: cfg, cat: cfg.Catalogue}, nil
}

// InitializeSegment resets the Driver's FIFO and counters and
// constructs a fresh preprocessor, per spec.md §4.5's per-segment
// initialize(). It must be called once before the first ProcessChunk
// call of each segment.
func (d *Driver) InitializeSegment() error {
	derived, err := catalogue.BuildDerived(d.cat, d.cfg.SampleRate)
	if err != nil {
		return fmt.Errorf("peeler: %w", err)
	}
	d.derived = derived
	d.nSpan = derived.NSpan

	factory := preprocess.Engines[d.cfg.PreprocessorEngine]
	d.preproc = factory(d.cfg.SampleRate, d.cfg.NBChannel, d.cfg.ChunkSize, d.cfg.SourceDType)
	if err := d.preproc.ChangeParams(true, d.cat.SignalsMedians, d.cat.SignalsMads); err != nil {
		return fmt.Errorf("peeler: configure preprocessor: %w", err)
	}

	side := sideWidth(d.cat.PeakWidth, d.nSpan)
	d.fifo = newFIFO(side+d.cfg.ChunkSize, d.cfg.NBChannel)
	d.totalSpike = 0
	return nil
}

// TotalSpike returns the cumulative spike count emitted so far in the
// current segment.
func (d *Driver) TotalSpike() int64 {
	return d.totalSpike
}

// ProcessChunk runs spec.md §4.5's per-chunk algorithm: feed raw to
// the preprocessor, slide the FIFO, run n_peel_level detect/classify/
// predict/subtract rounds, collect the final pass's UNCLASSIFIED
// candidates, sort by index, and return the chunk's batch.
//
// ok is false when the preprocessor is still warming up (spec.md §7):
// the chunk yields no spikes and is not an error.
func (d *Driver) ProcessChunk(pos int64, rawChunk [][]float64) (absHead int64, preprocessed [][]float64, totalSpike int64, batch []labels.Spike, ok bool) {
	absHead, preprocessed, ok = d.preproc.ProcessData(pos, rawChunk)
	if !ok {
		return 0, nil, d.totalSpike, nil, false
	}

	slideIn(d.fifo, preprocessed)
	shiftAbs := absHead - int64(len(d.fifo))

	var out []labels.Spike
	var lastCandidates []labels.Spike

	for level := 0; level < d.cfg.NPeelLevel; level++ {
		peaks := peak.Detect(d.fifo, d.nSpan, d.cat.RelativeThreshold, d.cat.PeakSign)
		candidates := align.ClassifyAndAlign(peaks, d.fifo, d.cat, d.derived)
		lastCandidates = candidates

		good := make([]labels.Spike, 0, len(candidates))
		for _, s := range candidates {
			if s.Good() {
				good = append(good, s)
			}
		}

		prediction := predict.Synthesize(good, len(d.fifo), d.cfg.NBChannel, d.cat)
		predict.Subtract(d.fifo, prediction)

		for _, s := range good {
			s.Index += shiftAbs
			out = append(out, s)
		}
	}

	// Only the final pass's UNCLASSIFIED candidates are surfaced
	// (spec.md §9 pins this; earlier passes' UNCLASSIFIED candidates
	// are not re-examined once subtraction has moved past them).
	for _, s := range lastCandidates {
		if s.Label == labels.Unclassified {
			s.Index += shiftAbs
			out = append(out, s)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })

	d.totalSpike += int64(len(out))
	return absHead, preprocessed, d.totalSpike, out, true
}
