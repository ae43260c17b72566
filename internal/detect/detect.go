// SPDX-License-Identifier: MIT

// Package detect decides whether the spectral history holds the target call.
//
// Two detectors read the same history: Correlator compares the latest
// windows against a stored spectral template, PeakDetector counts windows
// with a peak near the target frequency or its harmonics.
package detect

import "errors"

var (
	// ErrEmptyTemplate is returned for a template with no windows.
	ErrEmptyTemplate = errors.New("detect: empty template")
	// ErrTemplateShape is returned when template windows do not match the bin count.
	ErrTemplateShape = errors.New("detect: template shape does not match spectrum")
	// ErrInvalidConfig is returned for unusable detector parameters.
	ErrInvalidConfig = errors.New("detect: invalid configuration")
)

// Spectrogram is a ring of spectra, one column per window.
type Spectrogram interface {
	// Window copies column col into dst and returns it.
	Window(col int, dst []float64) []float64
	Bins() int
	Windows() int
}
