// Package align implements classify-and-align (spec.md §4.3): bounds
// checking, jitter estimation, and the one-sample shift retry, ported
// from _examples/original_source/tridesclous/peeler.py's
// classify_and_align, pinning the "TODO debug that sign" shift
// convention to shift = -round(jitter) per spec.md §9.
package align

import (
	"math"

	"github.com/ephyslab/peeler/internal/catalogue"
	"github.com/ephyslab/peeler/internal/jitter"
	"github.com/ephyslab/peeler/internal/labels"
)

// ClassifyAndAlign runs 4.3 over every candidate peak index (local to
// residual) and returns one labels.Spike per candidate, in the same
// order as peaks.
func ClassifyAndAlign(peaks []int, residual [][]float64, cat *catalogue.Catalogue, derived *catalogue.DerivedCache) []labels.Spike {
	out := make([]labels.Spike, 0, len(peaks))
	W := cat.PeakWidth

	for _, p := range peaks {
		ind := p + cat.NLeft

		if ind < 0 {
			out = append(out, labels.Spike{Index: int64(p), Label: labels.LeftLimit})
			continue
		}
		if ind+W >= len(residual) {
			out = append(out, labels.Spike{Index: int64(p), Label: labels.RightLimit})
			continue
		}

		waveform := residual[ind : ind+W]
		label, jit := jitter.Estimate(waveform, cat, derived)

		if label >= 0 && math.Abs(jit) > 0.5 {
			shift := -round(jit)
			if abs(shift) > labels.MaximumJitterShift {
				out = append(out, labels.Spike{Index: int64(p), Label: labels.MaximumShift})
				continue
			}

			ind2 := ind + shift
			if ind2 < 0 {
				out = append(out, labels.Spike{Index: int64(p), Label: labels.LeftLimit})
				continue
			}
			if ind2+W >= len(residual) {
				out = append(out, labels.Spike{Index: int64(p), Label: labels.RightLimit})
				continue
			}

			waveform2 := residual[ind2 : ind2+W]
			label2, jit2 := jitter.Estimate(waveform2, cat, derived)

			if math.Abs(jit2) < math.Abs(jit) {
				out = append(out, labels.Spike{Index: int64(p + shift), Label: label2, Jitter: jit2})
			} else {
				out = append(out, labels.Spike{Index: int64(p), Label: label, Jitter: jit})
			}
			continue
		}

		out = append(out, labels.Spike{Index: int64(p), Label: label, Jitter: jit})
	}
	return out
}

func round(v float64) int {
	return int(math.Round(v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
