package align_test

import (
	"math"
	"testing"

	"github.com/ephyslab/peeler/internal/align"
	"github.com/ephyslab/peeler/internal/catalogue"
	"github.com/ephyslab/peeler/internal/labels"
	"github.com/ephyslab/peeler/internal/testutil/catfixture"
)

// gaussianTemplate builds a smooth, wide single-channel bump so that a
// whole-sample misalignment is well approximated by the jitter
// estimator's second-order Taylor model (spec.md §4.2) — the same
// property that makes a real spike waveform's sub-sample jitter
// recoverable by Newton's method in the first place.
func gaussianTemplate(label int64, amplitude, sigma float64, width int) catfixture.Template {
	center := float64(width / 2)
	wf := make([][]float64, width)
	for w := 0; w < width; w++ {
		d := float64(w) - center
		wf[w] = []float64{amplitude * math.Exp(-(d * d) / (2 * sigma * sigma))}
	}
	return catfixture.Template{Label: label, MaxOnChannel: 0, Waveform: wf}
}

func buildResidual(n int, inject func(residual [][]float64)) [][]float64 {
	residual := make([][]float64, n)
	for t := range residual {
		residual[t] = []float64{0}
	}
	inject(residual)
	return residual
}

const fixtureWidth = 21 // window half-width 10 each side
const fixtureNLeft = -10

func buildFixture(t *testing.T) (*catalogue.Catalogue, *catalogue.DerivedCache) {
	t.Helper()
	templates := []catfixture.Template{gaussianTemplate(0, 10, 3, fixtureWidth)}
	cat, err := catfixture.Build(templates, 20, fixtureNLeft, 1, 2.0, 0.001, []float64{0}, []float64{1})
	if err != nil {
		t.Fatalf("catfixture.Build: %v", err)
	}
	derived, err := catalogue.BuildDerived(cat, 10000)
	if err != nil {
		t.Fatalf("BuildDerived: %v", err)
	}
	return cat, derived
}

func TestClassifyAndAlign_ExactTemplateNoShift(t *testing.T) {
	cat, derived := buildFixture(t)
	start := 40
	residual := buildResidual(80, func(r [][]float64) {
		for w, row := range cat.Centers0[0] {
			r[start+w] = append([]float64(nil), row...)
		}
	})
	peakIdx := start - cat.NLeft
	out := align.ClassifyAndAlign([]int{peakIdx}, residual, cat, derived)
	if len(out) != 1 {
		t.Fatalf("got %d spikes, want 1", len(out))
	}
	s := out[0]
	if s.Label != 0 {
		t.Fatalf("label = %d, want 0", s.Label)
	}
	if math.Abs(s.Jitter) > 1e-6 {
		t.Errorf("jitter = %v, want ~0", s.Jitter)
	}
	if s.Index != int64(peakIdx) {
		t.Errorf("index = %d, want %d (no shift retry for zero jitter)", s.Index, peakIdx)
	}
}

func TestClassifyAndAlign_LeftLimit(t *testing.T) {
	cat, derived := buildFixture(t)
	residual := buildResidual(80, func(r [][]float64) {})
	out := align.ClassifyAndAlign([]int{0}, residual, cat, derived)
	if len(out) != 1 || out[0].Label != labels.LeftLimit {
		t.Fatalf("got %+v, want a single LeftLimit spike", out)
	}
}

func TestClassifyAndAlign_RightLimit(t *testing.T) {
	cat, derived := buildFixture(t)
	residual := buildResidual(80, func(r [][]float64) {})
	out := align.ClassifyAndAlign([]int{79}, residual, cat, derived)
	if len(out) != 1 || out[0].Label != labels.RightLimit {
		t.Fatalf("got %+v, want a single RightLimit spike", out)
	}
}

func TestClassifyAndAlign_ShiftRetryRecoversTrueIndex(t *testing.T) {
	cat, derived := buildFixture(t)

	// Embed the exact template one sample earlier than where the peak
	// detector's anchor (ind = p + NLeft) lands: the first estimate
	// sees a whole-sample misalignment, which for this wide smooth
	// template comes out beyond the 0.5 retry threshold, and the retry
	// at ind-1 lands back on the exact template with ~0 jitter, per
	// spec.md §4.3/§9's shift-accept rule (accept iff |jitter2|<|jitter|).
	trueStart := 39
	residual := buildResidual(80, func(r [][]float64) {
		for w, row := range cat.Centers0[0] {
			r[trueStart+w] = append([]float64(nil), row...)
		}
	})
	anchorStart := trueStart + 1
	peakIdx := anchorStart - cat.NLeft

	out := align.ClassifyAndAlign([]int{peakIdx}, residual, cat, derived)
	if len(out) != 1 {
		t.Fatalf("got %d spikes, want 1", len(out))
	}
	s := out[0]
	if s.Label != 0 {
		t.Fatalf("label = %d, want 0 (retry should land on the exact template)", s.Label)
	}
	if math.Abs(s.Jitter) > 1e-3 {
		t.Errorf("post-retry jitter = %v, want ~0", s.Jitter)
	}
	wantIndex := int64(peakIdx - 1)
	if s.Index != wantIndex {
		t.Errorf("index = %d, want %d (shift of -1 applied)", s.Index, wantIndex)
	}
}
