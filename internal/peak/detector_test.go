package peak

import (
	"reflect"
	"testing"
)

func row1(v float64) []float64 { return []float64{v} }

func buildSignal(vals []float64) [][]float64 {
	out := make([][]float64, len(vals))
	for i, v := range vals {
		out[i] = row1(v)
	}
	return out
}

func TestDetect_SingleIsolatedPeak(t *testing.T) {
	vals := []float64{0, 0, 0, 0, 5, 0, 0, 0, 0}
	got := Detect(buildSignal(vals), 3, 2.0, 1)
	want := []int{4}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect = %v, want %v", got, want)
	}
}

func TestDetect_BelowThreshold(t *testing.T) {
	vals := []float64{0, 0, 0, 0, 1.5, 0, 0, 0, 0}
	got := Detect(buildSignal(vals), 3, 2.0, 1)
	if len(got) != 0 {
		t.Fatalf("Detect = %v, want no peaks below threshold", got)
	}
}

func TestDetect_PlateauKeepsLeftmost(t *testing.T) {
	// Two adjacent equal maxima: strict-left/non-strict-right comparison
	// must keep only the leftmost as a peak.
	vals := []float64{0, 0, 0, 5, 5, 0, 0, 0}
	got := Detect(buildSignal(vals), 3, 2.0, 1)
	want := []int{3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect = %v, want %v", got, want)
	}
}

func TestDetect_NegativeSign(t *testing.T) {
	vals := []float64{0, 0, 0, 0, -5, 0, 0, 0, 0}
	got := Detect(buildSignal(vals), 3, 2.0, -1)
	want := []int{4}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect = %v, want %v", got, want)
	}
}

func TestDetect_MultiChannelSums(t *testing.T) {
	// Rectification is per channel against the same threshold (spec.md
	// §4.1 step 1), so each channel here clears 1.0 on its own; the
	// channel-summed value at the peak (3.0) is what the local-maximum
	// comparison actually runs over.
	residual := [][]float64{
		{0, 0}, {0, 0}, {0, 0},
		{1.5, 1.5},
		{0, 0}, {0, 0}, {0, 0},
	}
	got := Detect(residual, 3, 1.0, 1)
	want := []int{3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect = %v, want %v", got, want)
	}
}

func TestDetect_RespectsEdgeMargins(t *testing.T) {
	// A would-be peak inside the n_span margin at either edge must not
	// be reported, since there aren't enough neighbors to compare.
	vals := []float64{9, 0, 0, 0, 0, 0, 0, 9}
	got := Detect(buildSignal(vals), 3, 2.0, 1)
	if len(got) != 0 {
		t.Fatalf("Detect = %v, want no peaks within edge margin", got)
	}
}

func TestDetect_TwoSeparatedPeaks(t *testing.T) {
	vals := []float64{0, 0, 0, 0, 5, 0, 0, 0, 0, 0, 6, 0, 0, 0, 0}
	got := Detect(buildSignal(vals), 3, 2.0, 1)
	want := []int{4, 10}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect = %v, want %v", got, want)
	}
}
