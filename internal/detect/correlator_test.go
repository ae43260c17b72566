// SPDX-License-Identifier: MIT
package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trap/internal/spectral"
)

const (
	testWindowSize = 128
	testSampleRate = 2048.0
	testBins       = testWindowSize / 2
	testLength     = 13
	testHistory    = 16
)

// testTemplate returns integer-valued windows with a distinct shape in
// every window of the 50-110 Hz band.
func testTemplate() [][]float64 {
	data := make([][]float64, testLength)
	for t := range data {
		data[t] = make([]float64, testBins)
		for f := range data[t] {
			data[t][f] = float64((t+1)*(f+2)%17 + 1)
		}
	}
	return data
}

func newTestCorrelator(t *testing.T) *Correlator {
	t.Helper()
	c, err := NewCorrelator(testWindowSize, testSampleRate)
	require.NoError(t, err)
	require.NoError(t, c.SetTemplate(testTemplate(), 50, 110))
	return c
}

func newTestHistory(t *testing.T, windows int) *spectral.History {
	t.Helper()
	h, err := spectral.NewHistory(testBins, windows)
	require.NoError(t, err)
	return h
}

func scaled(w []float64, k float64) []float64 {
	out := make([]float64, len(w))
	for i, v := range w {
		out[i] = v * k
	}
	return out
}

func TestNewCorrelator_Errors(t *testing.T) {
	_, err := NewCorrelator(1, testSampleRate)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewCorrelator(testWindowSize, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSetTemplate_Errors(t *testing.T) {
	c, err := NewCorrelator(testWindowSize, testSampleRate)
	require.NoError(t, err)

	assert.ErrorIs(t, c.SetTemplate(nil, 50, 110), ErrEmptyTemplate)
	assert.ErrorIs(t, c.SetTemplate([][]float64{make([]float64, testBins-1)}, 50, 110), ErrTemplateShape)
	assert.Equal(t, 0, c.TemplateLength(), "failed load leaves no template")
}

func TestSetTemplate_Band(t *testing.T) {
	c := newTestCorrelator(t)
	low, high := c.Band()
	assert.Equal(t, 3, low)
	assert.Equal(t, 7, high)
	assert.Equal(t, testLength, c.TemplateLength())

	require.NoError(t, c.SetTemplate(testTemplate(), 0, 5000))
	low, high = c.Band()
	assert.Equal(t, 0, low)
	assert.Equal(t, testBins, high, "band is clamped to the spectrum")
}

func TestCorrelate(t *testing.T) {
	tmpl := testTemplate()

	tests := []struct {
		name    string
		windows [][]float64 // pushed in order
		want    float64
	}{
		{
			name:    "identical",
			windows: tmpl,
			want:    1,
		},
		{
			name: "scaled copy",
			windows: func() [][]float64 {
				out := make([][]float64, len(tmpl))
				for i, w := range tmpl {
					out[i] = scaled(w, 3)
				}
				return out
			}(),
			want: 1,
		},
		{
			name: "wraps around the ring",
			windows: append([][]float64{
				make([]float64, testBins), make([]float64, testBins), make([]float64, testBins),
				make([]float64, testBins), make([]float64, testBins), make([]float64, testBins),
				make([]float64, testBins),
			}, tmpl...),
			want: 1,
		},
		{
			name:    "silence",
			windows: make([][]float64, 0),
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCorrelator(t)
			h := newTestHistory(t, testHistory)
			for _, w := range tt.windows {
				h.Push(w)
			}
			got := c.Correlate(h, h.Latest(), h.Windows())
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestCorrelate_OutOfBandEnergyIgnored(t *testing.T) {
	c := newTestCorrelator(t)
	h := newTestHistory(t, testHistory)
	for range testHistory {
		w := make([]float64, testBins)
		w[20] = 5000 // far above the band
		h.Push(w)
	}
	assert.Zero(t, c.Correlate(h, h.Latest(), h.Windows()))
}

func TestCorrelate_WithoutTemplate(t *testing.T) {
	c, err := NewCorrelator(testWindowSize, testSampleRate)
	require.NoError(t, err)
	h := newTestHistory(t, testHistory)
	for _, w := range testTemplate() {
		h.Push(w)
	}
	assert.Zero(t, c.Correlate(h, h.Latest(), h.Windows()))
}

func TestCorrelate_TotalBeyondHistoryIsCapped(t *testing.T) {
	c := newTestCorrelator(t)
	h := newTestHistory(t, testHistory)
	for _, w := range testTemplate() {
		h.Push(w)
	}

	want := c.Correlate(h, h.Latest(), h.Windows())
	require.InDelta(t, 1, want, 1e-12)
	assert.NotPanics(t, func() {
		assert.Equal(t, want, c.Correlate(h, h.Latest(), h.Windows()+8))
	})
}

func TestCorrelate_ShorterMatchScoresLower(t *testing.T) {
	c := newTestCorrelator(t)
	h := newTestHistory(t, testHistory)
	tmpl := testTemplate()
	// Only the second half of the call has arrived.
	for i, w := range tmpl {
		if i < testLength/2 {
			w = make([]float64, testBins)
		}
		h.Push(w)
	}
	got := c.Correlate(h, h.Latest(), h.Windows())
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 1.0)
}

func TestCorrelate_HotPath(t *testing.T) {
	c := newTestCorrelator(t)
	h := newTestHistory(t, testHistory)
	for _, w := range testTemplate() {
		h.Push(w)
	}
	allocs := testing.AllocsPerRun(100, func() {
		c.Correlate(h, h.Latest(), h.Windows())
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Correlate, got %.1f", allocs)
	}
}

func BenchmarkCorrelate(b *testing.B) {
	c, _ := NewCorrelator(testWindowSize, testSampleRate)
	_ = c.SetTemplate(testTemplate(), 50, 110)
	h, _ := spectral.NewHistory(testBins, 128)
	for _, w := range testTemplate() {
		h.Push(w)
	}
	b.ReportAllocs()
	for b.Loop() {
		c.Correlate(h, h.Latest(), h.Windows())
	}
}
