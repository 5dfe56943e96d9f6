package peeler

import "github.com/ephyslab/peeler/internal/labels"

// sideWidth computes S of spec.md §3:
// S = peak_width + maximum_jitter_shift + n_span + 1.
func sideWidth(peakWidth, nSpan int) int {
	return peakWidth + labels.MaximumJitterShift + nSpan + 1
}

func newFIFO(rows, cols int) [][]float64 {
	fifo := make([][]float64, rows)
	for i := range fifo {
		fifo[i] = make([]float64, cols)
	}
	return fifo
}

// slideIn shifts fifo left by len(chunk) rows and writes chunk into
// the freed tail, per spec.md §4.5 step 2. chunk must have at most
// len(fifo) rows.
func slideIn(fifo, chunk [][]float64) {
	m := len(chunk)
	n := len(fifo) - m
	copy(fifo[:n], fifo[m:])
	copy(fifo[n:], chunk)
}
