// SPDX-License-Identifier: MIT

// Package monitor is the trap's main loop. It takes full windows from the
// resampling engine, runs them through the spectral pipeline and a detector,
// and reports every window as an Event.
//
// On a detection the raw sample history is saved (when a Saver is set),
// together with the spectral history when the Saver also implements
// SpectrogramSaver. Then the pipeline is cleared, so the same call is not
// reported twice.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trap/internal/audio"
	applog "trap/internal/log"
	"trap/internal/spectral"
	"trap/internal/transport"
)

// ErrInvalidConfig is returned by New when a required collaborator is missing.
var ErrInvalidConfig = errors.New("monitor: invalid configuration")

// WindowSource hands over full analysis windows. resample.Engine implements it.
type WindowSource interface {
	IsInputBufferFull(out []int32) bool
	Dropped() uint64
}

// Saver stores the raw samples that led to a detection and returns where.
// audio.Recorder implements it.
type Saver interface {
	Save(at time.Time, samples []int32) (string, error)
}

// SpectrogramSaver stores a detection's spectral history beside its capture,
// windows oldest first, and returns where. audio.Recorder implements it.
type SpectrogramSaver interface {
	SaveSpectrogram(capture string, windows [][]float64, freqWidth float64) (string, error)
}

// Event describes one processed window.
type Event struct {
	Time     time.Time `json:"time"`
	Window   uint64    `json:"window"`
	Method   string    `json:"method"`
	Score    float64   `json:"score"`
	Detected bool      `json:"detected"`
	Level    int32     `json:"level"`             // peak distance from midscale in the window
	Capture  string    `json:"capture,omitempty"` // capture file of a detection
	Dropped  uint64    `json:"dropped"`           // samples dropped by the engine so far
}

// Notable reports whether the event is a detection.
func (e Event) Notable() bool { return e.Detected }

func (e Event) String() string {
	if e.Detected {
		s := fmt.Sprintf("Detection: window %d, %s score %.3f", e.Window, e.Method, e.Score)
		if e.Capture != "" {
			s += ", saved " + e.Capture
		}
		return s
	}
	return fmt.Sprintf("Window %d: %s score %.3f, level %d", e.Window, e.Method, e.Score, e.Level)
}

// Config wires a Monitor. Source, Pipeline and Detector are required.
type Config struct {
	Source       WindowSource
	Pipeline     *spectral.Pipeline
	Detector     Detector
	Transport    transport.Transport // nil discards events
	Saver        Saver               // nil disables captures
	PollInterval time.Duration
	Midscale     int32 // ADC midscale, for Event.Level
	EventBuffer  int   // capacity of the Events channel
}

type Monitor struct {
	cfg    Config
	events chan Event
	now    func() time.Time

	window  []int32
	raw     []int32
	spectra [][]float64

	windows     atomic.Uint64
	detections  atomic.Uint64
	lastDropped uint64

	specMu       sync.Mutex
	spectrum     []float64
	haveSpectrum bool
}

func New(cfg Config) (*Monitor, error) {
	if cfg.Source == nil || cfg.Pipeline == nil || cfg.Detector == nil {
		return nil, fmt.Errorf("source, pipeline and detector are required: %w", ErrInvalidConfig)
	}
	if cfg.Transport == nil {
		cfg.Transport = transport.Nop{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Millisecond
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	return &Monitor{
		cfg:      cfg,
		events:   make(chan Event, cfg.EventBuffer),
		now:      time.Now,
		window:   make([]int32, cfg.Pipeline.WindowSize()),
		raw:      make([]int32, 0, cfg.Pipeline.Samples().Cap()),
		spectrum: make([]float64, cfg.Pipeline.Bins()),
	}, nil
}

// Run polls the source until ctx ends and returns ctx's error.
func (m *Monitor) Run(ctx context.Context) error {
	applog.Infof("Monitor: Running %s detection (poll %s)", m.cfg.Detector.Method(), m.cfg.PollInterval)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			applog.Infof("Monitor: Stopped after %d windows, %d detections", m.Windows(), m.Detections())
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Poll(); err != nil {
				return err
			}
		}
	}
}

// Poll processes the window waiting in the source, if any, and reports
// whether there was one.
func (m *Monitor) Poll() (bool, error) {
	if !m.cfg.Source.IsInputBufferFull(m.window) {
		return false, nil
	}
	if d := m.cfg.Source.Dropped(); d != m.lastDropped {
		applog.Debugf("Monitor: %d samples dropped since last window", d-m.lastDropped)
		m.lastDropped = d
	}
	_, err := m.ProcessWindow(m.window)
	return true, err
}

// ProcessWindow runs samples through the pipeline and the detector, then
// publishes the resulting Event.
func (m *Monitor) ProcessWindow(samples []int32) (Event, error) {
	p := m.cfg.Pipeline
	if err := p.ProcessWindow(samples); err != nil {
		return Event{}, fmt.Errorf("failed to process window: %w", err)
	}

	m.specMu.Lock()
	p.Latest(m.spectrum)
	m.haveSpectrum = true
	m.specMu.Unlock()

	score, detected := m.cfg.Detector.Evaluate(p.History())
	ev := Event{
		Time:     m.now(),
		Window:   m.windows.Add(1),
		Method:   m.cfg.Detector.Method(),
		Score:    score,
		Detected: detected,
		Level:    audio.PeakAmplitude(samples, m.cfg.Midscale),
		Dropped:  m.lastDropped,
	}

	if detected {
		m.detections.Add(1)
		ev.Capture = m.capture(ev.Time)
		p.Clear()
	}

	if err := m.cfg.Transport.Send(ev); err != nil {
		applog.Warnf("Monitor: Failed to publish window %d: %v", ev.Window, err)
	}
	select {
	case m.events <- ev:
	default:
	}
	return ev, nil
}

func (m *Monitor) capture(at time.Time) string {
	if m.cfg.Saver == nil {
		return ""
	}
	m.raw = m.cfg.Pipeline.Samples().Ordered(m.raw[:0])
	path, err := m.cfg.Saver.Save(at, m.raw)
	if err != nil {
		applog.Errorf("Monitor: Failed to save capture: %v", err)
		return ""
	}
	if ss, ok := m.cfg.Saver.(SpectrogramSaver); ok {
		p := m.cfg.Pipeline
		m.spectra = p.History().Ordered(m.spectra)
		if spath, err := ss.SaveSpectrogram(path, m.spectra, p.FreqWidth()); err != nil {
			applog.Errorf("Monitor: Failed to save spectrogram: %v", err)
		} else {
			applog.Debugf("Monitor: Spectrogram saved to %s", spath)
		}
	}
	return path
}

// Events delivers every processed window. Events are dropped when nobody
// keeps up.
func (m *Monitor) Events() <-chan Event { return m.events }

// Windows returns the number of windows processed.
func (m *Monitor) Windows() uint64 { return m.windows.Load() }

// Detections returns the number of detections.
func (m *Monitor) Detections() uint64 { return m.detections.Load() }

// Bins returns the length of the spectra SpectrumInto copies.
func (m *Monitor) Bins() int { return len(m.spectrum) }

// SpectrumInto copies the most recent spectrum into dst. It reports false
// before the first window.
func (m *Monitor) SpectrumInto(dst []float64) bool {
	m.specMu.Lock()
	defer m.specMu.Unlock()
	if !m.haveSpectrum {
		return false
	}
	copy(dst, m.spectrum)
	return true
}

// LatestSpectrum returns a copy of the most recent spectrum, or nil.
func (m *Monitor) LatestSpectrum() []float64 {
	dst := make([]float64, len(m.spectrum))
	if !m.SpectrumInto(dst) {
		return nil
	}
	return dst
}
