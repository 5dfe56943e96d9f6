package catalogue

import "testing"

func TestBuildDerived_Basic(t *testing.T) {
	raw := minimalCatalogue()
	// Give Centers1/Centers2 nonzero energy on the peak channel so
	// BuildDerived doesn't trip the degenerate-template guard.
	for i := range raw.Centers1 {
		for w := range raw.Centers1[i] {
			raw.Centers1[i][w][raw.MaxOnChannel[i]] = float64(w + 1)
			raw.Centers2[i][w][raw.MaxOnChannel[i]] = float64(w)
		}
	}
	cat, err := New(raw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	derived, err := BuildDerived(cat, 10000)
	if err != nil {
		t.Fatalf("BuildDerived: %v", err)
	}
	if len(derived.WF1Norm2) != 2 || len(derived.WF2Norm2) != 2 || len(derived.WF1DotWF2) != 2 {
		t.Fatalf("derived slices have wrong length: %+v", derived)
	}
	// wf1 on cluster 0's peak channel is [1,2,3] -> norm2 = 1+4+9 = 14
	if derived.WF1Norm2[0] != 14 {
		t.Errorf("WF1Norm2[0] = %v, want 14", derived.WF1Norm2[0])
	}
	if derived.NSpan != cat.NSpan(10000) {
		t.Errorf("NSpan mismatch: %d vs %d", derived.NSpan, cat.NSpan(10000))
	}
}

func TestBuildDerived_RejectsDegenerateTemplate(t *testing.T) {
	// minimalCatalogue's Centers1 is all zero -> wf1_norm2 == 0.
	cat, err := New(minimalCatalogue())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := BuildDerived(cat, 10000); err == nil {
		t.Fatal("expected error for degenerate (zero wf1_norm2) template")
	}
}

func TestBuildDerived_Idempotent(t *testing.T) {
	raw := minimalCatalogue()
	for i := range raw.Centers1 {
		for w := range raw.Centers1[i] {
			raw.Centers1[i][w][raw.MaxOnChannel[i]] = float64(w + 1)
		}
	}
	cat, err := New(raw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d1, err := BuildDerived(cat, 10000)
	if err != nil {
		t.Fatalf("BuildDerived: %v", err)
	}
	d2, err := BuildDerived(cat, 10000)
	if err != nil {
		t.Fatalf("BuildDerived: %v", err)
	}
	for i := range d1.WF1Norm2 {
		if d1.WF1Norm2[i] != d2.WF1Norm2[i] {
			t.Errorf("BuildDerived not idempotent at cluster %d: %v vs %v", i, d1.WF1Norm2[i], d2.WF1Norm2[i])
		}
	}
}
