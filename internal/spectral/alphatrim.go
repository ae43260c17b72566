// SPDX-License-Identifier: MIT
package spectral

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NoiseFloor writes the alpha-trimmed background estimate of src into dst.
//
// Every bin i defines the window [i-w/2, i+w/2], clamped to the spectrum. Any
// bin in that window whose z-score exceeds threshold is replaced by the mean
// of the window without it. Bins never flagged keep their own value. dst must
// be as long as src and must not alias it.
func NoiseFloor(dst, src []float64, windowSize int, threshold float64) []float64 {
	n := len(src)
	dst = dst[:n]
	copy(dst, src)

	half := windowSize / 2
	for i := range n {
		lo := max(0, i-half)
		hi := min(n-1, i+half)
		win := src[lo : hi+1]

		mean, std := stat.PopMeanStdDev(win, nil)
		if std == 0 {
			continue
		}

		sum := -1.0
		for k, v := range win {
			if (v-mean)/std <= threshold {
				continue
			}
			if sum < 0 {
				sum = floats.Sum(win)
			}
			dst[lo+k] = (sum - v) / float64(max(1, len(win)-1))
		}
	}
	return dst
}

// AlphaTrim subtracts the NoiseFloor of src from src and writes the residual
// into dst. Narrow peaks survive, broadband background goes to zero. dst
// must not alias src.
func AlphaTrim(dst, src []float64, windowSize int, threshold float64) []float64 {
	dst = NoiseFloor(dst, src, windowSize, threshold)
	floats.SubTo(dst, src, dst)
	return dst
}
