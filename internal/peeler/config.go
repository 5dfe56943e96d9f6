// Package peeler owns the residual FIFO and the per-chunk detect/
// classify/predict/subtract loop of spec.md §4.5 — the component the
// rest of this repository's packages (catalogue, peak, jitter, align,
// predict) exist to serve.
package peeler

import (
	"fmt"

	"github.com/ephyslab/peeler/internal/catalogue"
	"github.com/ephyslab/peeler/internal/preprocess"
)

// Config is the recognized option set of spec.md §6.
type Config struct {
	Catalogue *catalogue.Catalogue // required

	NPeelLevel         int    // default 2
	ChunkSize          int    // default 1024
	PreprocessorEngine string // default "numpy"

	SampleRate  float64
	NBChannel   int
	SourceDType string
}

const (
	DefaultNPeelLevel = 2
	DefaultChunkSize  = 1024
)

func (c Config) withDefaults() Config {
	if c.NPeelLevel <= 0 {
		c.NPeelLevel = DefaultNPeelLevel
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.PreprocessorEngine == "" {
		c.PreprocessorEngine = "numpy"
	}
	return c
}

// validate runs against the caller's raw Config, before withDefaults
// fills in any unset (zero-value) field — so an explicitly negative
// ChunkSize or NPeelLevel is rejected here rather than silently
// overwritten by a default. Zero itself means "unset" and is left for
// withDefaults to replace; PreprocessorEngine's registry lookup is
// skipped on an unset (empty) value for the same reason.
func (c Config) validate() error {
	if c.Catalogue == nil {
		return fmt.Errorf("catalogue is required")
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunksize must be > 0, got %d", c.ChunkSize)
	}
	if c.NPeelLevel < 0 {
		return fmt.Errorf("n_peel_level must be > 0, got %d", c.NPeelLevel)
	}
	if c.PreprocessorEngine != "" {
		if _, ok := preprocess.Engines[c.PreprocessorEngine]; !ok {
			return fmt.Errorf("unknown signalpreprocessor_engine %q", c.PreprocessorEngine)
		}
	}
	if c.NBChannel <= 0 {
		return fmt.Errorf("nb_channel must be > 0, got %d", c.NBChannel)
	}
	return nil
}
