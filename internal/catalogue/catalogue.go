// Package catalogue loads the immutable template bundle a peeler
// classifies waveforms against. Building the catalogue (offline
// clustering over a recording) is out of scope here: this package only
// loads, validates, and serves an already-built one.
package catalogue

import (
	"encoding/json"
	"fmt"
	"os"
)

// Catalogue is the immutable, read-only-shareable template bundle of
// spec.md §3. All per-cluster slices are indexed by cluster index
// i in [0, K); ClusterLabels maps that index to the external label.
type Catalogue struct {
	ClusterLabels []int64 `json:"cluster_labels"`
	LabelToIndex  map[int64]int `json:"-"`

	// Centers0/1/2 are [K][W][C]: the mean waveform template and its
	// first and second time derivatives.
	Centers0 [][][]float64 `json:"centers0"`
	Centers1 [][][]float64 `json:"centers1"`
	Centers2 [][][]float64 `json:"centers2"`

	// InterpCenters0 is [K][W*R][C]: Centers0 oversampled by
	// SubsampleRatio. Index j, j+R, j+2R, ... (offset j) is the
	// waveform for jitter fraction j/R - 1/2.
	InterpCenters0 [][][]float64 `json:"interp_centers0"`

	MaxOnChannel []int `json:"max_on_channel"`

	NLeft          int `json:"n_left"`
	PeakWidth      int `json:"peak_width"`
	SubsampleRatio int `json:"subsample_ratio"`

	PeakSign          int     `json:"peak_sign"` // +1 or -1
	RelativeThreshold float64 `json:"relative_threshold"`
	PeakSpan          float64 `json:"peak_span"` // seconds

	SignalsMedians []float64 `json:"signals_medians"`
	SignalsMads    []float64 `json:"signals_mads"`
}

// Load reads and validates a catalogue from a JSON file. This is the
// only supported on-disk form: the catalogue-builder that produces it
// is an external collaborator, named only by this contract.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	var cat Catalogue
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decode catalogue: %w", err)
	}
	if err := cat.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalogue: %w", err)
	}
	cat.buildReverseMap()
	return &cat, nil
}

// New validates and wraps an in-memory catalogue, e.g. one built by a
// test fixture rather than loaded from disk.
func New(cat Catalogue) (*Catalogue, error) {
	if err := cat.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalogue: %w", err)
	}
	cat.buildReverseMap()
	return &cat, nil
}

func (c *Catalogue) buildReverseMap() {
	c.LabelToIndex = make(map[int64]int, len(c.ClusterLabels))
	for i, label := range c.ClusterLabels {
		c.LabelToIndex[label] = i
	}
}

func (c *Catalogue) validate() error {
	k := len(c.ClusterLabels)
	if k == 0 {
		return fmt.Errorf("catalogue has no clusters")
	}
	if c.PeakWidth <= 0 {
		return fmt.Errorf("peak_width must be > 0")
	}
	if c.SubsampleRatio <= 0 {
		return fmt.Errorf("subsample_ratio must be > 0")
	}
	if c.PeakSign != 1 && c.PeakSign != -1 {
		return fmt.Errorf("peak_sign must be +1 or -1, got %d", c.PeakSign)
	}
	if c.RelativeThreshold <= 0 {
		return fmt.Errorf("relative_threshold must be > 0")
	}
	if len(c.Centers0) != k || len(c.Centers1) != k || len(c.Centers2) != k || len(c.InterpCenters0) != k {
		return fmt.Errorf("centers arrays must all have length K=%d", k)
	}
	if len(c.MaxOnChannel) != k {
		return fmt.Errorf("max_on_channel must have length K=%d", k)
	}
	for i := 0; i < k; i++ {
		if len(c.Centers0[i]) != c.PeakWidth || len(c.Centers1[i]) != c.PeakWidth || len(c.Centers2[i]) != c.PeakWidth {
			return fmt.Errorf("cluster %d: centers must have width W=%d", i, c.PeakWidth)
		}
		if len(c.Centers0[i]) == 0 {
			return fmt.Errorf("cluster %d: empty template", i)
		}
		nbChan := len(c.Centers0[i][0])
		if c.MaxOnChannel[i] < 0 || c.MaxOnChannel[i] >= nbChan {
			return fmt.Errorf("cluster %d: max_on_channel %d out of range [0,%d)", i, c.MaxOnChannel[i], nbChan)
		}
		wantInterpLen := c.PeakWidth * c.SubsampleRatio
		if len(c.InterpCenters0[i]) != wantInterpLen {
			return fmt.Errorf("cluster %d: interp_centers0 must have length W*R=%d, got %d", i, wantInterpLen, len(c.InterpCenters0[i]))
		}
	}
	return nil
}

// NSpan converts the catalogue's peak_span (seconds) into a sample
// count, per spec.md §3: n_span = max(1, floor(sample_rate*peak_span/2)).
func (c *Catalogue) NSpan(sampleRate float64) int {
	n := int(sampleRate * c.PeakSpan / 2)
	if n < 1 {
		n = 1
	}
	return n
}
