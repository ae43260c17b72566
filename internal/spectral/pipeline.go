// SPDX-License-Identifier: MIT

// Package spectral turns analysis windows into the denoised, smoothed
// spectra the detectors read.
//
// Each window goes through fft.Processor (DC removal, Hamming, magnitude,
// bin-width scaling), then alpha-trim noise subtraction, averaging across the
// last few windows, a moving average across frequency, and finally into the
// History ring as integers. The raw samples are kept in a SampleHistory.
//
// A Pipeline is not safe for concurrent use. ProcessWindow does not allocate.
package spectral

import (
	"fmt"

	"trap/internal/fft"
)

// Config sizes a Pipeline.
type Config struct {
	WindowSize         int     // samples per window, a power of two
	SampleRate         float64 // rate of the windowed samples
	AlphaTrimWindow    int
	AlphaTrimThreshold float64
	TimeAverageWindows int
	FrequencySmoothing int
	HistoryWindows     int
	RawHistorySamples  int
}

// Pipeline turns each analysis window into one History column and keeps
// the raw samples behind it.
type Pipeline struct {
	cfg Config
	fft *fft.Processor

	trimmed  []float64
	averaged []float64
	smoothed []float64

	times   *timeRing
	history *History
	samples *SampleHistory
}

// NewPipeline allocates every buffer ProcessWindow uses. Magnitudes are
// scaled by WindowSize/SampleRate.
func NewPipeline(cfg Config) (*Pipeline, error) {
	proc, err := fft.NewProcessor(cfg.WindowSize, cfg.SampleRate, float64(cfg.WindowSize)/cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create FFT processor: %w", err)
	}
	if cfg.TimeAverageWindows < 1 {
		return nil, fmt.Errorf("time average of %d windows: %w", cfg.TimeAverageWindows, ErrCapacity)
	}

	bins := proc.Bins()
	history, err := NewHistory(bins, cfg.HistoryWindows)
	if err != nil {
		return nil, err
	}
	samples, err := NewSampleHistory(cfg.RawHistorySamples)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:      cfg,
		fft:      proc,
		trimmed:  make([]float64, bins),
		averaged: make([]float64, bins),
		smoothed: make([]float64, bins),
		times:    newTimeRing(cfg.TimeAverageWindows, bins),
		history:  history,
		samples:  samples,
	}, nil
}

// ProcessWindow runs one window through the pipeline and appends the result
// to the history.
func (p *Pipeline) ProcessWindow(samples []int32) error {
	mag, err := p.fft.Process(samples)
	if err != nil {
		return err
	}
	p.samples.Write(samples)

	AlphaTrim(p.trimmed, mag, p.cfg.AlphaTrimWindow, p.cfg.AlphaTrimThreshold)
	p.times.push(p.trimmed)
	p.times.average(p.averaged)
	SmoothFrequency(p.smoothed, p.averaged, p.cfg.FrequencySmoothing)

	p.history.Push(p.smoothed)
	return nil
}

// Latest copies the most recent history column into dst.
func (p *Pipeline) Latest(dst []float64) []float64 {
	return p.history.Window(p.history.Latest(), dst)
}

// Clear forgets every spectrum and sample seen so far, so a detection is not
// reported again from the same data.
func (p *Pipeline) Clear() {
	p.times.reset()
	p.history.Clear()
	p.samples.Clear()
}

func (p *Pipeline) History() *History { return p.history }

func (p *Pipeline) Samples() *SampleHistory { return p.samples }

func (p *Pipeline) Bins() int { return p.fft.Bins() }

// FreqWidth returns the factor magnitudes are scaled by, WindowSize/SampleRate.
func (p *Pipeline) FreqWidth() float64 { return float64(p.cfg.WindowSize) / p.cfg.SampleRate }

// WindowSize returns the samples ProcessWindow expects.
func (p *Pipeline) WindowSize() int { return p.fft.Size() }

// Processor exposes the FFT stage, e.g. for bin/frequency conversion.
func (p *Pipeline) Processor() *fft.Processor { return p.fft }
