// Package jitter implements the Pouzat two-stage jitter estimator of
// spec.md §4.2, ported line for line from
// _examples/original_source/tridesclous/peeler.py's estimate_one_jitter.
package jitter

import (
	"github.com/ephyslab/peeler/internal/catalogue"
	"github.com/ephyslab/peeler/internal/labels"
)

// Estimate classifies a W x C waveform against the catalogue and
// returns its cluster label (or labels.Unclassified if the
// reconstruction guard fails) and sub-sample jitter.
func Estimate(waveform [][]float64, cat *catalogue.Catalogue, derived *catalogue.DerivedCache) (label int64, jitterOut float64) {
	i := bestTemplate(waveform, cat)
	k := cat.ClusterLabels[i]
	ch := cat.MaxOnChannel[i]

	wf := col(waveform, ch)
	wf0 := col(cat.Centers0[i], ch)
	wf1 := col(cat.Centers1[i], ch)
	wf2 := col(cat.Centers2[i], ch)

	h := sub(wf, wf0)
	h0n := dot(h, h)
	hDotWF1 := dot(h, wf1)

	jitter0 := hDotWF1 / derived.WF1Norm2[i]

	h1n := 0.0
	for w := range h {
		d := h[w] - jitter0*wf1[w]
		h1n += d * d
	}

	var jitter1 float64
	if h0n > h1n {
		hDotWF2 := dot(h, wf2)
		wf1Norm2 := derived.WF1Norm2[i]
		wf2Norm2 := derived.WF2Norm2[i]
		wf1DotWF2 := derived.WF1DotWF2[i]

		fPrime := -2*hDotWF1 + 2*jitter0*(wf1Norm2-hDotWF2) + 3*jitter0*jitter0*wf1DotWF2 + jitter0*jitter0*jitter0*wf2Norm2
		fSecond := 2*(wf1Norm2-hDotWF2) + 6*jitter0*wf1DotWF2 + 3*jitter0*jitter0*wf2Norm2
		jitter1 = jitter0 - fPrime/fSecond
	} else {
		jitter1 = 0
	}

	var wfSq, residSq float64
	for w := range wf {
		pred := wf0[w] + jitter1*wf1[w] + (jitter1*jitter1/2)*wf2[w]
		wfSq += wf[w] * wf[w]
		d := wf[w] - pred
		residSq += d * d
	}

	if wfSq > residSq {
		return k, jitter1
	}
	return labels.Unclassified, 0
}

// bestTemplate picks argmin_i sum((centers0[i] - waveform)^2) over the
// full W x C window (spec.md §4.2 step 1).
func bestTemplate(waveform [][]float64, cat *catalogue.Catalogue) int {
	best := 0
	bestDist := frobeniusDist2(cat.Centers0[0], waveform)
	for i := 1; i < len(cat.Centers0); i++ {
		d := frobeniusDist2(cat.Centers0[i], waveform)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func frobeniusDist2(template, waveform [][]float64) float64 {
	var sum float64
	for w := range template {
		for c := range template[w] {
			d := template[w][c] - waveform[w][c]
			sum += d * d
		}
	}
	return sum
}

func col(waveform [][]float64, ch int) []float64 {
	out := make([]float64, len(waveform))
	for w, row := range waveform {
		out[w] = row[ch]
	}
	return out
}

func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
