// SPDX-License-Identifier: MIT
package detect

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"trap/pkg/bitint"
)

// Correlator computes the normalized cross-correlation between a spectral
// template and the most recent windows of a Spectrogram, restricted to a
// frequency band.
type Correlator struct {
	windowSize int
	sampleRate float64
	bins       int

	tmpl      *mat.Dense // rows = bins, cols = template windows
	length    int
	low, high int // band [low, high)
	sqrtSumSq float64

	col  []float64
	tcol []float64
}

// NewCorrelator returns a correlator for spectra of windowSize-point FFTs
// taken at sampleRate. It reports 0 until a template is set.
func NewCorrelator(windowSize int, sampleRate float64) (*Correlator, error) {
	if windowSize < 2 || sampleRate <= 0 {
		return nil, fmt.Errorf("window %d at %g Hz: %w", windowSize, sampleRate, ErrInvalidConfig)
	}
	bins := windowSize / 2
	return &Correlator{
		windowSize: windowSize,
		sampleRate: sampleRate,
		bins:       bins,
		high:       bins,
		col:        make([]float64, bins),
		tcol:       make([]float64, bins),
	}, nil
}

// SetTemplate stores data, indexed data[window][bin], and limits the
// comparison to bins from freqLowHz (inclusive) to freqHighHz (exclusive).
func (c *Correlator) SetTemplate(data [][]float64, freqLowHz, freqHighHz float64) error {
	if len(data) == 0 {
		return ErrEmptyTemplate
	}
	tmpl := mat.NewDense(c.bins, len(data), nil)
	for t, w := range data {
		if len(w) != c.bins {
			return fmt.Errorf("template window %d has %d bins, want %d: %w", t, len(w), c.bins, ErrTemplateShape)
		}
		tmpl.SetCol(t, w)
	}

	c.tmpl = tmpl
	c.length = len(data)
	c.low = c.binIndex(freqLowHz)
	c.high = c.binIndex(freqHighHz)

	var sumSq float64
	for t := range c.length {
		band := mat.Col(c.tcol, t, c.tmpl)[c.low:max(c.low, c.high)]
		sumSq += floats.Dot(band, band)
	}
	c.sqrtSumSq = math.Sqrt(sumSq)
	return nil
}

func (c *Correlator) binIndex(hz float64) int {
	i := int(math.Round(hz * float64(c.windowSize) / c.sampleRate))
	return max(0, min(c.bins, i))
}

// Band returns the compared bin range [low, high).
func (c *Correlator) Band() (low, high int) { return c.low, c.high }

// TemplateLength returns the number of windows in the template, or 0.
func (c *Correlator) TemplateLength() int { return c.length }

// Correlate compares the template with the TemplateLength windows of history
// ending at latestIndex. The result is 1 for a history identical to the
// template (up to scale) and 0 when either side is silent in the band.
// totalWindows is capped at the windows history holds.
func (c *Correlator) Correlate(history Spectrogram, latestIndex, totalWindows int) float64 {
	totalWindows = min(totalWindows, history.Windows())
	if c.tmpl == nil || totalWindows < 1 || history.Bins() != c.bins || c.high <= c.low {
		return 0
	}
	if c.sqrtSumSq == 0 {
		return 0
	}

	start := bitint.Wrap(latestIndex-c.length, totalWindows)

	var inSumSq, dot float64
	for t := range c.length {
		col := (start + 1 + t) % totalWindows
		in := history.Window(col, c.col)[c.low:c.high]
		tm := mat.Col(c.tcol, t, c.tmpl)[c.low:c.high]
		inSumSq += floats.Dot(in, in)
		dot += floats.Dot(in, tm)
	}

	denom := math.Sqrt(inSumSq) * c.sqrtSumSq
	if denom == 0 {
		return dot / c.sqrtSumSq
	}
	return dot / denom
}
