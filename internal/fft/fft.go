// SPDX-License-Identifier: MIT

// Package fft turns one window of downsampled samples into a scaled magnitude
// spectrum: DC removal, Hamming window, real FFT, magnitude, and bin-width
// scaling. All buffers are allocated once in NewProcessor.
package fft

import (
	"errors"
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"

	"trap/pkg/bitint"
)

var (
	// ErrSize is returned when the FFT size is not a power of two >= 4.
	ErrSize = errors.New("fft: size must be a power of two >= 4")
	// ErrInputLength is returned when a window does not match the FFT size.
	ErrInputLength = errors.New("fft: input length does not match FFT size")
)

// FFTWorkspace holds pre-allocated buffers for FFT calculations.
type FFTWorkspace struct {
	input     []float64    // ...for real input samples (DC removed, windowed)
	fftOutput []complex128 // ...for FFT complex output, N/2+1 bins
	re, im    []float64    // ...for split complex parts of the kept bins
	magnitude []float64    // ...for scaled magnitude output, N/2 bins
	window    []float64    // ...for Hamming window coefficients
}

// Processor holds the FFT processor state and configuration.
type Processor struct {
	fftSize    int
	sampleRate float64
	scale      float64
	workspace  FFTWorkspace
	fftObj     *fourier.FFT
}

// NewProcessor creates a processor for windows of fftSize samples taken at
// sampleRate. Magnitudes are multiplied by scale.
func NewProcessor(fftSize int, sampleRate, scale float64) (*Processor, error) {
	if fftSize < 4 || !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("size %d: %w", fftSize, ErrSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("fft: sample rate must be positive, got %g", sampleRate)
	}

	coeffs := make([]float64, fftSize)
	for i := range coeffs {
		coeffs[i] = 1
	}
	window.Hamming(coeffs)

	bins := fftSize / 2

	return &Processor{
		fftSize:    fftSize,
		sampleRate: sampleRate,
		scale:      scale,
		fftObj:     fourier.NewFFT(fftSize),

		workspace: FFTWorkspace{
			input:     make([]float64, fftSize),
			fftOutput: make([]complex128, bins+1),
			re:        make([]float64, bins),
			im:        make([]float64, bins),
			magnitude: make([]float64, bins),
			window:    coeffs,
		},
	}, nil
}

// Process computes the scaled magnitude spectrum of samples. The returned
// slice has Bins() entries and is owned by the processor: it is overwritten
// by the next call.
func (p *Processor) Process(samples []int32) ([]float64, error) {
	if len(samples) != p.fftSize {
		return nil, ErrInputLength
	}
	ws := &p.workspace

	for i, s := range samples {
		ws.input[i] = float64(s)
	}
	floats.AddConst(-floats.Sum(ws.input)/float64(p.fftSize), ws.input)
	vecmath.MulBlockInPlace(ws.input, ws.window)

	_ = p.fftObj.Coefficients(ws.fftOutput, ws.input)
	for i := range ws.re {
		ws.re[i] = real(ws.fftOutput[i])
		ws.im[i] = imag(ws.fftOutput[i])
	}
	vecmath.Magnitude(ws.magnitude, ws.re, ws.im)
	vecmath.ScaleBlock(ws.magnitude, ws.magnitude, p.scale)

	return ws.magnitude, nil
}

// Size returns the number of samples per window.
func (p *Processor) Size() int { return p.fftSize }

// Bins returns the number of magnitude bins per spectrum.
func (p *Processor) Bins() int { return p.fftSize / 2 }

// GetFrequencyBin returns the frequency in Hz for a given FFT bin index.
func (p *Processor) GetFrequencyBin(i int) float64 {
	if i < 0 || i > p.Bins() {
		return 0
	}
	return p.fftObj.Freq(i) * p.sampleRate
}

// BinIndex returns the bin nearest to hz: round(hz * size / sampleRate).
func (p *Processor) BinIndex(hz float64) int {
	return BinIndex(hz, p.fftSize, p.sampleRate)
}

// BinIndex converts a frequency to the nearest bin of a size-point FFT.
func BinIndex(hz float64, size int, sampleRate float64) int {
	return int(math.Round(hz * float64(size) / sampleRate))
}
