// SPDX-License-Identifier: MIT
package monitor

import (
	"trap/internal/detect"
	"trap/internal/spectral"
)

// Detector decides from the spectral history whether the target call is
// present. Score is method specific: a correlation coefficient for the
// template method, a window count for the peak method.
type Detector interface {
	Method() string
	Evaluate(history *spectral.History) (score float64, detected bool)
}

type correlationDetector struct {
	c         *detect.Correlator
	threshold float64
}

// NewCorrelationDetector detects when the template correlation of the most
// recent windows reaches threshold.
func NewCorrelationDetector(c *detect.Correlator, threshold float64) Detector {
	return &correlationDetector{c: c, threshold: threshold}
}

func (d *correlationDetector) Method() string { return "correlation" }

func (d *correlationDetector) Evaluate(h *spectral.History) (float64, bool) {
	score := d.c.Correlate(h, h.Latest(), h.Windows())
	return score, score >= d.threshold
}

type peakDetector struct {
	d *detect.PeakDetector
}

// NewPeakDetector detects when enough windows of the whole history carry a
// peak in the target band.
func NewPeakDetector(d *detect.PeakDetector) Detector {
	return &peakDetector{d: d}
}

func (d *peakDetector) Method() string { return "peaks" }

func (d *peakDetector) Evaluate(h *spectral.History) (float64, bool) {
	n := float64(d.d.PeakWindows(h, h.Windows()))
	return n, n >= d.d.Required()
}
