package preprocess

// IdentityPreprocessor passes chunks through unchanged with no warm-up
// and no delay (absHead == pos). It exists for driver tests that need
// to reason about the peel loop directly without the numpy engine's
// filtering/normalization also perturbing the expected waveforms, and
// for hosts that have already preprocessed their signal upstream.
type IdentityPreprocessor struct {
	dtype string
}

// NewIdentityPreprocessor implements preprocess.Factory.
func NewIdentityPreprocessor(sampleRate float64, nbChannel, chunksize int, sourceDType string) Preprocessor {
	return &IdentityPreprocessor{dtype: sourceDType}
}

func (p *IdentityPreprocessor) ChangeParams(normalize bool, signalsMedians, signalsMads []float64) error {
	return nil
}

func (p *IdentityPreprocessor) OutputDType() string {
	return p.dtype
}

func (p *IdentityPreprocessor) ProcessData(pos int64, chunk [][]float64) (int64, [][]float64, bool) {
	if len(chunk) == 0 {
		return pos, nil, false
	}
	out := make([][]float64, len(chunk))
	for t, row := range chunk {
		cp := make([]float64, len(row))
		copy(cp, row)
		out[t] = cp
	}
	return pos, out, true
}

func init() {
	Engines["identity"] = NewIdentityPreprocessor
}
