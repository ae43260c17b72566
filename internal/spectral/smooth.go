// SPDX-License-Identifier: MIT
package spectral

import (
	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"
)

// SmoothFrequency applies a centred moving average of windowSize bins to
// src. The window is clamped at both edges, so edge bins average fewer
// values. dst must not alias src.
func SmoothFrequency(dst, src []float64, windowSize int) []float64 {
	n := len(src)
	dst = dst[:n]
	half := windowSize / 2
	for i := range n {
		lo := max(0, i-half)
		hi := min(n-1, i+half)
		dst[i] = floats.Sum(src[lo:hi+1]) / float64(hi-lo+1)
	}
	return dst
}

// timeRing keeps the most recent spectra for averaging across time.
type timeRing struct {
	rows   [][]float64
	cursor int
}

func newTimeRing(depth, bins int) *timeRing {
	rows := make([][]float64, depth)
	for i := range rows {
		rows[i] = make([]float64, bins)
	}
	return &timeRing{rows: rows}
}

func (r *timeRing) push(spectrum []float64) {
	copy(r.rows[r.cursor], spectrum)
	r.cursor = (r.cursor + 1) % len(r.rows)
}

// average writes the mean of every slot into dst. Slots not yet written
// count as zeros.
func (r *timeRing) average(dst []float64) {
	clear(dst)
	for _, row := range r.rows {
		vecmath.AddBlockInPlace(dst, row)
	}
	vecmath.ScaleBlock(dst, dst, 1/float64(len(r.rows)))
}

func (r *timeRing) reset() {
	for _, row := range r.rows {
		clear(row)
	}
	r.cursor = 0
}
