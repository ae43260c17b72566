// SPDX-License-Identifier: MIT
package spectral

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmoothFrequency(t *testing.T) {
	tests := []struct {
		name   string
		src    []float64
		window int
		want   []float64
	}{
		{
			name:   "impulse spreads over the window",
			src:    []float64{0, 0, 3, 0, 0},
			window: 2,
			want:   []float64{0, 1, 1, 1, 0},
		},
		{
			name:   "edges average fewer bins",
			src:    []float64{6, 0, 0, 0},
			window: 2,
			want:   []float64{3, 2, 0, 0},
		},
		{
			name:   "zero window is identity",
			src:    []float64{1, 2, 3},
			window: 0,
			want:   []float64{1, 2, 3},
		},
		{
			name:   "constant stays constant",
			src:    []float64{4, 4, 4, 4, 4, 4},
			window: 4,
			want:   []float64{4, 4, 4, 4, 4, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SmoothFrequency(make([]float64, len(tt.src)), tt.src, tt.window)
			assert.InDeltaSlice(t, tt.want, got, 1e-12)
		})
	}
}

func TestTimeRing_Average(t *testing.T) {
	r := newTimeRing(4, 3)
	dst := make([]float64, 3)

	r.push([]float64{4, 8, 0})
	r.average(dst)
	assert.Equal(t, []float64{1, 2, 0}, dst, "unwritten slots count as zero")

	for range 3 {
		r.push([]float64{4, 8, 0})
	}
	r.average(dst)
	assert.Equal(t, []float64{4, 8, 0}, dst)

	// The fifth push replaces the first slot.
	r.push([]float64{0, 0, 4})
	r.average(dst)
	assert.Equal(t, []float64{3, 6, 1}, dst)

	r.reset()
	r.average(dst)
	assert.Equal(t, []float64{0, 0, 0}, dst)
}
