// Package predict implements the prediction synthesizer of spec.md
// §4.4, ported from
// _examples/original_source/tridesclous/peeler.py's make_prediction_signals.
package predict

import (
	"math"

	"github.com/ephyslab/peeler/internal/catalogue"
	"github.com/ephyslab/peeler/internal/labels"
)

// Synthesize builds an H x C additive reconstruction from the good
// spikes (label >= 0) in batch, over a buffer of the given shape.
func Synthesize(batch []labels.Spike, shapeT, shapeC int, cat *catalogue.Catalogue) [][]float64 {
	prediction := make([][]float64, shapeT)
	for t := range prediction {
		prediction[t] = make([]float64, shapeC)
	}

	R := cat.SubsampleRatio
	W := cat.PeakWidth

	for _, spike := range batch {
		if spike.Label < 0 {
			continue
		}
		i, ok := cat.LabelToIndex[spike.Label]
		if !ok {
			continue
		}

		pos := int(spike.Index) + cat.NLeft
		shift := -int(math.Round(spike.Jitter))
		pos += shift

		j := int(math.Floor((spike.Jitter+float64(shift))*float64(R))) + R/2
		// Invariant (spec.md §4.4): 0 <= j < R by construction once
		// jitter has been confined to (-0.5, 0.5] by the shift retry.
		// Clamp defensively rather than let a violation corrupt an
		// unrelated cluster's interpolated row.
		if j < 0 {
			j = 0
		}
		if j >= R {
			j = R - 1
		}

		if pos > 0 && pos+W < shapeT {
			bank := cat.InterpCenters0[i]
			for w := 0; w < W; w++ {
				row := bank[j+w*R]
				out := prediction[pos+w]
				for c := 0; c < shapeC && c < len(row); c++ {
					out[c] += row[c]
				}
			}
		}
	}

	return prediction
}

// Subtract subtracts prediction from residual in place.
func Subtract(residual, prediction [][]float64) {
	for t := range residual {
		row := residual[t]
		pred := prediction[t]
		for c := range row {
			row[c] -= pred[c]
		}
	}
}
