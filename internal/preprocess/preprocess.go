// Package preprocess defines the signal-preprocessor contract of
// spec.md §6 and its "numpy" reference engine. Preprocessing itself
// (filtering, normalization) is an out-of-scope external collaborator
// per spec.md §1; this package exists only to give the peeler driver
// a concrete, contract-conforming implementation to drive.
package preprocess

// Preprocessor is the contract spec.md §6 requires of a
// signalpreprocessor engine.
type Preprocessor interface {
	// ChangeParams configures normalization. Per spec.md §4.5, the
	// peeler always calls this with normalize=true using the
	// catalogue's signals_medians/signals_mads.
	ChangeParams(normalize bool, signalsMedians, signalsMads []float64) error

	// ProcessData consumes a raw chunk arriving at absolute position
	// pos and returns the absolute head index of the (possibly
	// shorter, possibly empty) preprocessed chunk it emits. ok is
	// false during causal-filter warm-up, when the engine has not yet
	// produced output; this is not an error (spec.md §7).
	ProcessData(pos int64, chunk [][]float64) (absHead int64, preprocessed [][]float64, ok bool)

	// OutputDType names the preprocessor's working numeric type.
	OutputDType() string
}

// Factory constructs a Preprocessor for one segment, per spec.md §6's
// `construct(sample_rate, nb_channel, chunksize, source_dtype)`.
type Factory func(sampleRate float64, nbChannel, chunksize int, sourceDType string) Preprocessor

// Engines is the signalpreprocessor_engine registry of spec.md §6.
// "numpy" is the reference implementation; alternate engines must obey
// the same Preprocessor contract.
var Engines = map[string]Factory{
	"numpy": NewNumpyPreprocessor,
}
