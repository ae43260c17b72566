// SPDX-License-Identifier: MIT
package detect

import (
	"fmt"
	"math"
)

// PeakConfig tunes a PeakDetector.
type PeakConfig struct {
	TargetHz              float64
	MarginHz              float64
	Harmonics             int
	SignalThreshold       float64 // minimum magnitude of a peak
	ExpectedSignalSeconds float64
	Efficiency            float64 // fraction of expected windows required
	WindowSize            int     // FFT points
	SampleRate            float64
}

// PeakDetector looks for local maxima near the target frequency and its
// harmonics in every window of the history.
type PeakDetector struct {
	cfg      PeakConfig
	low      int
	high     int
	required float64
	col      []float64
}

func NewPeakDetector(cfg PeakConfig) (*PeakDetector, error) {
	switch {
	case cfg.WindowSize < 4 || cfg.SampleRate <= 0:
		return nil, fmt.Errorf("window %d at %g Hz: %w", cfg.WindowSize, cfg.SampleRate, ErrInvalidConfig)
	case cfg.Harmonics < 1:
		return nil, fmt.Errorf("harmonics %d: %w", cfg.Harmonics, ErrInvalidConfig)
	case cfg.MarginHz < 0 || cfg.TargetHz <= cfg.MarginHz:
		return nil, fmt.Errorf("target %g +- %g Hz: %w", cfg.TargetHz, cfg.MarginHz, ErrInvalidConfig)
	}

	n := float64(cfg.WindowSize)
	return &PeakDetector{
		cfg:      cfg,
		low:      int(math.Floor((cfg.TargetHz - cfg.MarginHz) / cfg.SampleRate * n)),
		high:     int(math.Ceil((cfg.TargetHz + cfg.MarginHz) / cfg.SampleRate * n)),
		required: cfg.ExpectedSignalSeconds * (cfg.SampleRate / n) * cfg.Efficiency,
		col:      make([]float64, cfg.WindowSize/2),
	}, nil
}

// Band returns the fundamental's bin range, both ends inclusive.
func (d *PeakDetector) Band() (low, high int) { return d.low, d.high }

// Required returns how many windows must contain a peak for a detection.
func (d *PeakDetector) Required() float64 { return d.required }

// Detect reports whether at least Required of the first totalWindows
// windows in history contain a peak.
func (d *PeakDetector) Detect(history Spectrogram, totalWindows int) bool {
	return float64(d.PeakWindows(history, totalWindows)) >= d.required
}

// PeakWindows counts the windows of history that contain a peak.
func (d *PeakDetector) PeakWindows(history Spectrogram, totalWindows int) int {
	if history.Bins() != len(d.col) {
		return 0
	}
	count := 0
	for t := range min(totalWindows, history.Windows()) {
		if d.hasPeak(history.Window(t, d.col)) {
			count++
		}
	}
	return count
}

// hasPeak scans each harmonic band for a strict local maximum above the
// signal threshold. Bins without two neighbours are never peaks.
func (d *PeakDetector) hasPeak(spectrum []float64) bool {
	last := len(spectrum) - 2
	for h := 1; h <= d.cfg.Harmonics; h++ {
		for i := max(1, h*d.low); i <= min(last, h*d.high); i++ {
			v := spectrum[i]
			if v > spectrum[i-1] && v > spectrum[i+1] && v > d.cfg.SignalThreshold {
				return true
			}
		}
	}
	return false
}
