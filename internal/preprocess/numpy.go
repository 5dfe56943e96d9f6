package preprocess

import "fmt"

// warmupChunks is the number of ProcessData calls the causal filter
// needs before its per-channel running DC estimate has settled enough
// to trust; earlier calls yield no output (spec.md §7 "warm-up").
const warmupChunks = 2

// dcAlpha is the one-pole high-pass coefficient, matching the
// teacher's modem.ApplyDCRemoval (internal/modem/ofdm.go) generalized
// to run per channel instead of on a single post-hoc buffer.
const dcAlpha = 0.999

// NumpyPreprocessor is the reference signalpreprocessor_engine named
// in spec.md §6: a causal one-pole high-pass per channel followed by
// per-channel (v - median) / mad normalization.
type NumpyPreprocessor struct {
	nbChannel int
	chunksize int
	dtype     string

	dcState []float64

	normalize bool
	medians   []float64
	mads      []float64

	chunksSeen int
}

// NewNumpyPreprocessor implements preprocess.Factory.
func NewNumpyPreprocessor(sampleRate float64, nbChannel, chunksize int, sourceDType string) Preprocessor {
	return &NumpyPreprocessor{
		nbChannel: nbChannel,
		chunksize: chunksize,
		dtype:     "float64",
		dcState:   make([]float64, nbChannel),
	}
}

func (p *NumpyPreprocessor) ChangeParams(normalize bool, signalsMedians, signalsMads []float64) error {
	if normalize {
		if len(signalsMedians) != p.nbChannel || len(signalsMads) != p.nbChannel {
			return fmt.Errorf("signals_medians/signals_mads must have length nb_channel=%d", p.nbChannel)
		}
	}
	p.normalize = normalize
	p.medians = signalsMedians
	p.mads = signalsMads
	return nil
}

func (p *NumpyPreprocessor) OutputDType() string {
	return p.dtype
}

func (p *NumpyPreprocessor) ProcessData(pos int64, chunk [][]float64) (int64, [][]float64, bool) {
	out := make([][]float64, len(chunk))
	for t, row := range chunk {
		outRow := make([]float64, len(row))
		for c, v := range row {
			p.dcState[c] = dcAlpha*p.dcState[c] + (1-dcAlpha)*v
			filtered := v - p.dcState[c]

			if p.normalize && p.mads[c] != 0 {
				filtered = (filtered - p.medians[c]) / p.mads[c]
			}
			outRow[c] = filtered
		}
		out[t] = outRow
	}

	p.chunksSeen++
	if p.chunksSeen <= warmupChunks {
		return 0, nil, false
	}

	absHead := pos
	return absHead, out, true
}
