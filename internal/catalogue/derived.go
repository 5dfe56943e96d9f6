package catalogue

import "fmt"

// DerivedCache holds the per-cluster scalars the jitter estimator needs
// but that spec.md §9 says must not live on the immutable Catalogue:
// building it is a pure function of the catalogue, so a peeler can
// build its own DerivedCache from a Catalogue shared read-only across
// many peeler instances without any cross-instance mutation.
type DerivedCache struct {
	WF1Norm2   []float64 // per cluster: wf1 . wf1 on the peak channel
	WF2Norm2   []float64 // per cluster: wf2 . wf2 on the peak channel
	WF1DotWF2  []float64 // per cluster: wf1 . wf2 on the peak channel
	NSpan      int
}

// BuildDerived computes the DerivedCache for a catalogue at a given
// sample rate. It is idempotent: calling it twice on the same
// catalogue yields bit-identical caches, so augmentation is safe to
// repeat across segments or peeler instances.
func BuildDerived(cat *Catalogue, sampleRate float64) (*DerivedCache, error) {
	k := len(cat.ClusterLabels)
	d := &DerivedCache{
		WF1Norm2:  make([]float64, k),
		WF2Norm2:  make([]float64, k),
		WF1DotWF2: make([]float64, k),
		NSpan:     cat.NSpan(sampleRate),
	}
	for i := range cat.ClusterLabels {
		chan_ := cat.MaxOnChannel[i]
		wf1 := column(cat.Centers1[i], chan_)
		wf2 := column(cat.Centers2[i], chan_)

		d.WF1Norm2[i] = dot(wf1, wf1)
		d.WF2Norm2[i] = dot(wf2, wf2)
		d.WF1DotWF2[i] = dot(wf1, wf2)

		if d.WF1Norm2[i] == 0 {
			// Catalogue-builder defect (spec.md §7): a degenerate
			// template with a zero first-derivative energy makes
			// order-0 jitter a division by zero. The core asserts
			// rather than silently producing NaN jitters.
			return nil, fmt.Errorf("cluster %d (label %d): degenerate template, wf1_norm2 == 0", i, cat.ClusterLabels[i])
		}
	}
	return d, nil
}

func column(waveform [][]float64, chan_ int) []float64 {
	out := make([]float64, len(waveform))
	for w, row := range waveform {
		out[w] = row[chan_]
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
