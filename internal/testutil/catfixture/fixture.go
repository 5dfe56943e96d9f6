// Package catfixture builds small synthetic catalogues for tests
// across the peak/jitter/align/predict/peeler packages. Building a
// real catalogue is an out-of-scope offline-clustering concern
// (spec.md §1); this package's oversampling is a test convenience, not
// a production catalogue-builder, and is deliberately simple (cubic
// spline) rather than bandlimited/FFT-based, since it only has to be
// self-consistent with the derivatives it also computes, not match
// any particular reference algorithm.
package catfixture

import (
	"github.com/ephyslab/peeler/internal/catalogue"
)

// Template is one cluster's raw mean waveform, shape W x C.
type Template struct {
	Label        int64
	MaxOnChannel int
	Waveform     [][]float64 // W x C
}

// Build constructs a catalogue from raw templates: it derives
// Centers1/Centers2 by finite differencing and InterpCenters0 by
// cubic-spline oversampling, self-consistently with the jitter-fraction
// convention of spec.md §3 (bucket j of R represents jitter j/R - 1/2).
func Build(templates []Template, subsampleRatio, nLeft, peakSign int, relativeThreshold, peakSpan float64, signalsMedians, signalsMads []float64) (*catalogue.Catalogue, error) {
	k := len(templates)
	cat := catalogue.Catalogue{
		ClusterLabels:     make([]int64, k),
		MaxOnChannel:      make([]int, k),
		Centers0:          make([][][]float64, k),
		Centers1:          make([][][]float64, k),
		Centers2:          make([][][]float64, k),
		InterpCenters0:    make([][][]float64, k),
		NLeft:             nLeft,
		PeakWidth:         len(templates[0].Waveform),
		SubsampleRatio:    subsampleRatio,
		PeakSign:          peakSign,
		RelativeThreshold: relativeThreshold,
		PeakSpan:          peakSpan,
		SignalsMedians:    signalsMedians,
		SignalsMads:       signalsMads,
	}

	for i, t := range templates {
		cat.ClusterLabels[i] = t.Label
		cat.MaxOnChannel[i] = t.MaxOnChannel
		cat.Centers0[i] = cloneMatrix(t.Waveform)
		cat.Centers1[i] = firstDerivative(t.Waveform)
		cat.Centers2[i] = secondDerivative(t.Waveform)
		cat.InterpCenters0[i] = oversample(t.Waveform, subsampleRatio)
	}

	return catalogue.New(cat)
}

func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for w, row := range m {
		out[w] = append([]float64(nil), row...)
	}
	return out
}

func firstDerivative(wf [][]float64) [][]float64 {
	W := len(wf)
	out := make([][]float64, W)
	for w := 0; w < W; w++ {
		c := len(wf[w])
		out[w] = make([]float64, c)
		for ch := 0; ch < c; ch++ {
			switch {
			case w == 0:
				out[w][ch] = wf[1][ch] - wf[0][ch]
			case w == W-1:
				out[w][ch] = wf[W-1][ch] - wf[W-2][ch]
			default:
				out[w][ch] = (wf[w+1][ch] - wf[w-1][ch]) / 2
			}
		}
	}
	return out
}

func secondDerivative(wf [][]float64) [][]float64 {
	W := len(wf)
	out := make([][]float64, W)
	for w := 0; w < W; w++ {
		c := len(wf[w])
		out[w] = make([]float64, c)
		for ch := 0; ch < c; ch++ {
			prev := clampIdx(w-1, W)
			next := clampIdx(w+1, W)
			out[w][ch] = wf[next][ch] - 2*wf[w][ch] + wf[prev][ch]
		}
	}
	return out
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// oversample builds the W*R interpolated bank: entry w*R+j is the
// template value at sample position (w + (j/R - 0.5)), via Catmull-Rom
// cubic spline, so bucket R/2 reproduces the unshifted template
// exactly and offset j represents jitter fraction j/R - 1/2.
func oversample(wf [][]float64, R int) [][]float64 {
	W := len(wf)
	C := len(wf[0])
	out := make([][]float64, W*R)
	for w := 0; w < W; w++ {
		for j := 0; j < R; j++ {
			delta := float64(j)/float64(R) - 0.5
			x := float64(w) + delta
			row := make([]float64, C)
			for ch := 0; ch < C; ch++ {
				row[ch] = splineAt(wf, ch, x)
			}
			out[w*R+j] = row
		}
	}
	return out
}

// splineAt evaluates channel ch of wf at real-valued position x using
// a Catmull-Rom cubic spline over the 4 nearest samples, clamping at
// the edges.
func splineAt(wf [][]float64, ch int, x float64) float64 {
	W := len(wf)
	i1 := int(floor(x))
	t := x - float64(i1)

	p0 := wf[clampIdx(i1-1, W)][ch]
	p1 := wf[clampIdx(i1, W)][ch]
	p2 := wf[clampIdx(i1+1, W)][ch]
	p3 := wf[clampIdx(i1+2, W)][ch]

	t2 := t * t
	t3 := t2 * t
	return 0.5 * ((2 * p1) +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}

func floor(x float64) float64 {
	i := float64(int64(x))
	if x < 0 && i != x {
		return i - 1
	}
	return i
}
