// SPDX-License-Identifier: MIT
/*
Package resample implements the sampling side of the trap: the per-tick state
machines that downsample the microphone into analysis windows and upsample the
lure call to the DAC.

Thread Safety:
  - Every tick method runs on the single goroutine driving the timer.
  - The input window is handed to the main loop through IsInputBufferFull,
    whose atomic index reset is the only synchronization point.
  - Playback position is readable from any goroutine.
  - Configuration methods (LoadPlayback, SetFlatteningFilter, Reset) are
    refused while a tick source is attached.

The tick path does not allocate, block or log.
*/
package resample

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"trap/internal/sinc"
)

var (
	// ErrAttached is returned by configuration methods while a tick source is attached.
	ErrAttached = errors.New("resample: engine is attached to a tick source")
	// ErrPlaybackTooLong is returned when playback data exceeds the buffer capacity.
	ErrPlaybackTooLong = errors.New("resample: playback exceeds buffer capacity")
	// ErrInvalidConfig is returned by NewEngine for unusable sizes.
	ErrInvalidConfig = errors.New("resample: invalid engine configuration")
)

// ADC is the raw sample source read once per recording tick.
type ADC interface {
	ReadSample() uint16
}

// DAC receives one output value per playback tick.
type DAC interface {
	WriteSample(v uint16)
}

// ADCFunc adapts a function to ADC.
type ADCFunc func() uint16

func (f ADCFunc) ReadSample() uint16 { return f() }

// DACFunc adapts a function to DAC.
type DACFunc func(v uint16)

func (f DACFunc) WriteSample(v uint16) { f(v) }

// Config sizes an Engine.
type Config struct {
	DownsampleRatio         int
	UpsampleRatio           int
	DownsampleZeroCrossings int
	UpsampleZeroCrossings   int
	WindowSize              int    // downsampled samples per analysis window
	PlaybackCapacity        int    // playback buffer size in samples
	ADCMax                  uint16 // input clamp, largest raw ADC value
	DACMax                  uint16 // output clamp
}

// Engine moves samples between the converters and the analysis window at
// the converter rates. The tick methods run on the tick source's goroutine
// and never allocate or block. IsInputBufferFull is the only method meant
// for the main loop while attached; everything that changes playback, the
// flattening filter or filter state returns ErrAttached until Detach.
type Engine struct {
	cfg Config
	adc ADC
	dac DAC

	down     sinc.Table
	up       sinc.Table
	downTaps []float64
	upTaps   []float64

	// Input side.
	downRing  *ring[uint16]
	downCount int
	window    []int32
	windowIdx atomic.Int64
	dropped   atomic.Uint64

	// Output side.
	upRing   *ring[int32]
	subTick  int
	current  uint16
	playback []uint16
	count    atomic.Int64
	cursor   atomic.Int64

	// Optional first convolution layer on playback samples.
	flatten     []float64
	flattenRing *ring[uint16]

	// Divides the output rate down to the input rate in RecordAndOutputSample.
	recordTick int

	attached atomic.Bool
}

// NewEngine builds both sinc tables and allocates every buffer the ticks use.
func NewEngine(cfg Config, adc ADC, dac DAC) (*Engine, error) {
	if cfg.WindowSize < 1 || cfg.PlaybackCapacity < 0 {
		return nil, fmt.Errorf("window size %d, playback capacity %d: %w",
			cfg.WindowSize, cfg.PlaybackCapacity, ErrInvalidConfig)
	}
	if cfg.ADCMax == 0 {
		return nil, fmt.Errorf("adc max 0: %w", ErrInvalidConfig)
	}
	if adc == nil || dac == nil {
		return nil, fmt.Errorf("nil ADC or DAC: %w", ErrInvalidConfig)
	}

	down, err := sinc.Downsample(cfg.DownsampleRatio, cfg.DownsampleZeroCrossings)
	if err != nil {
		return nil, err
	}
	up, err := sinc.Upsample(cfg.UpsampleRatio, cfg.UpsampleZeroCrossings)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:      cfg,
		adc:      adc,
		dac:      dac,
		down:     down,
		up:       up,
		downTaps: down.Taps(),
		upTaps:   up.Taps(),
		downRing: newRing[uint16](down.Len()),
		window:   make([]int32, cfg.WindowSize),
		upRing:   newRing[int32](up.Len()),
		playback: make([]uint16, cfg.PlaybackCapacity),
	}, nil
}

// RecordSample reads one ADC value into the downsampling history and, every
// DownsampleRatio calls, appends one filtered sample to the input window.
// Filtered values are clamped to [0, ADCMax]. Once the window is full further
// outputs are dropped until the main loop takes the window.
func (e *Engine) RecordSample() {
	e.downRing.push(e.adc.ReadSample())

	e.downCount++
	if e.downCount < e.cfg.DownsampleRatio {
		return
	}
	e.downCount = 0

	i := e.windowIdx.Load()
	if i >= int64(len(e.window)) {
		e.dropped.Add(1)
		return
	}
	// Sinc ringing overshoots steps; keep the window within the ADC range.
	v := math.Round(e.downRing.convolve(e.downTaps))
	e.window[i] = int32(max(0, min(float64(e.cfg.ADCMax), v)))
	e.windowIdx.Store(i + 1)
}

// OutputSample writes the value computed on the previous tick to the DAC, then
// computes the next one. While playback data remains, sub-tick 0 feeds the
// next playback sample into the upsampling history and the other sub-ticks
// feed zeros.
func (e *Engine) OutputSample() {
	e.dac.WriteSample(e.current)

	c := e.cursor.Load()
	if c >= e.count.Load() {
		return
	}

	var v int32
	if e.subTick == 0 {
		v = e.flattened(e.playback[c])
		e.cursor.Store(c + 1)
	}
	e.upRing.push(v)

	e.subTick++
	if e.subTick == e.cfg.UpsampleRatio {
		e.subTick = 0
	}

	out := math.Round(e.upRing.convolve(e.upTaps))
	e.current = uint16(max(0, min(float64(e.cfg.DACMax), out)))
}

func (e *Engine) flattened(s uint16) int32 {
	if e.flatten == nil {
		return int32(s)
	}
	e.flattenRing.push(s)
	return int32(math.Round(e.flattenRing.convolve(e.flatten)))
}

// RecordAndOutputSample drives both directions from a timer running at the
// output rate: the output path every tick, the input path every
// UpsampleRatio-th tick.
func (e *Engine) RecordAndOutputSample() {
	e.OutputSample()

	e.recordTick++
	if e.recordTick < e.cfg.UpsampleRatio {
		return
	}
	e.recordTick = 0
	e.RecordSample()
}

// RecordAndOutputRawSample bypasses both filters: the next playback sample
// goes straight to the DAC and the raw ADC value straight into the input
// window. It stops once the window is full.
func (e *Engine) RecordAndOutputRawSample() {
	i := e.windowIdx.Load()
	if i >= int64(len(e.window)) {
		return
	}
	if c := e.cursor.Load(); c < e.count.Load() {
		e.dac.WriteSample(e.playback[c])
		e.cursor.Store(c + 1)
	}
	e.window[i] = int32(e.adc.ReadSample())
	e.windowIdx.Store(i + 1)
}

// Tick returns the tick method for mode.
func (e *Engine) Tick(mode Mode) func() {
	switch mode {
	case ModePlayback:
		return e.OutputSample
	case ModeRecordAndPlayback:
		return e.RecordAndOutputSample
	case ModeRawRecordAndPlayback:
		return e.RecordAndOutputRawSample
	default:
		return e.RecordSample
	}
}

// IsInputBufferFull reports whether a complete window is ready. When it is,
// the window is copied into out and the write index is reset to zero, which
// lets the tick start filling the next window.
func (e *Engine) IsInputBufferFull(out []int32) bool {
	if e.windowIdx.Load() < int64(len(e.window)) {
		return false
	}
	copy(out, e.window)
	e.windowIdx.Store(0)
	return true
}

// WindowSize returns the number of samples in one input window.
func (e *Engine) WindowSize() int { return len(e.window) }

// Dropped returns how many downsampled values were discarded because the
// window was full.
func (e *Engine) Dropped() uint64 { return e.dropped.Load() }

// Attach marks the engine as driven by a tick source and resets it, so a
// restart never resumes mid-filter. It fails if already attached.
func (e *Engine) Attach() error {
	if e.attached.Load() {
		return ErrAttached
	}
	e.reset()
	e.attached.Store(true)
	return nil
}

// Detach marks the engine as idle. Filter state is abandoned, not flushed.
func (e *Engine) Detach() {
	e.attached.Store(false)
}

// Attached reports whether a tick source currently drives the engine.
func (e *Engine) Attached() bool { return e.attached.Load() }

// Reset zeroes every history, counter and cursor. Loaded playback data and
// the flattening filter are kept.
func (e *Engine) Reset() error {
	if e.attached.Load() {
		return ErrAttached
	}
	e.reset()
	return nil
}

func (e *Engine) reset() {
	e.downRing.reset()
	e.downCount = 0
	e.windowIdx.Store(0)
	e.upRing.reset()
	e.subTick = 0
	e.current = 0
	e.recordTick = 0
	e.cursor.Store(0)
	if e.flattenRing != nil {
		e.flattenRing.reset()
	}
}

// LoadPlayback copies samples into the playback buffer and rewinds it.
func (e *Engine) LoadPlayback(samples []uint16) error {
	if e.attached.Load() {
		return ErrAttached
	}
	if len(samples) > len(e.playback) {
		return fmt.Errorf("%d samples for %d slots: %w", len(samples), len(e.playback), ErrPlaybackTooLong)
	}
	copy(e.playback, samples)
	e.count.Store(int64(len(samples)))
	e.cursor.Store(0)
	return nil
}

// PlaybackCount returns the number of loaded playback samples.
func (e *Engine) PlaybackCount() int { return int(e.count.Load()) }

// PlaybackIndex returns the next playback sample to be consumed.
func (e *Engine) PlaybackIndex() int { return int(e.cursor.Load()) }

// PlaybackDone reports whether every loaded sample has been consumed.
func (e *Engine) PlaybackDone() bool { return e.cursor.Load() >= e.count.Load() }

// ResetPlaybackIndex rewinds playback to the first sample.
func (e *Engine) ResetPlaybackIndex() { e.cursor.Store(0) }

// CheckResetPlaybackIndex rewinds playback only if it has finished.
func (e *Engine) CheckResetPlaybackIndex() {
	if e.PlaybackDone() {
		e.cursor.Store(0)
	}
}

// SetFlatteningFilter installs taps as a first convolution layer on playback
// samples. A nil or empty slice removes it.
func (e *Engine) SetFlatteningFilter(taps []float64) error {
	if e.attached.Load() {
		return ErrAttached
	}
	if len(taps) == 0 {
		e.flatten, e.flattenRing = nil, nil
		return nil
	}
	e.flatten = append([]float64(nil), taps...)
	e.flattenRing = newRing[uint16](len(taps))
	return nil
}

// FlatteningFilter returns a copy of the installed flattening taps, or nil.
func (e *Engine) FlatteningFilter() []float64 {
	if e.flatten == nil {
		return nil
	}
	return append([]float64(nil), e.flatten...)
}

// DownsampleTable returns the table used on the input side.
func (e *Engine) DownsampleTable() sinc.Table { return e.down }

// UpsampleTable returns the table used on the output side.
func (e *Engine) UpsampleTable() sinc.Table { return e.up }
