// SPDX-License-Identifier: MIT
/*
Package audio connects the resampling engine to a clock and to real or
recorded audio.

A TickSource plays the part of the hardware timer: Stream runs the engine
from a PortAudio duplex callback, Timer from a locked OS thread, and
Offline from its caller for faster-than-real-time file replay. Controller is
the audio state machine on top of them.

Thread Safety:
  - Controller methods may be called from any goroutine and are serialized
  - The engine tick only ever runs on the tick source goroutine
  - The engine is attached before the source starts and detached after it
    stops, so its configuration is never changed mid-tick
*/
package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trap/internal/resample"
)

// State is the audio state machine position.
type State int32

const (
	StateStopped State = iota
	StateInput
	StateInputOutput
	StateOutput
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateInput:
		return "input"
	case StateInputOutput:
		return "input+output"
	case StateOutput:
		return "output"
	default:
		return "unknown"
	}
}

// ControllerConfig holds the rates and waits of a Controller.
type ControllerConfig struct {
	SampleRate    int           // ADC rate
	UpsampleRatio int           // DAC rate / ADC rate
	PollInterval  time.Duration // how often waits check the engine
	Settle        time.Duration // pause before each calibration pass
}

type Controller struct {
	cfg    ControllerConfig
	engine *resample.Engine
	source TickSource

	mu       sync.Mutex
	state    atomic.Int32
	playback []uint16
}

func NewController(engine *resample.Engine, source TickSource, cfg ControllerConfig) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}
	return &Controller{cfg: cfg, engine: engine, source: source}
}

// Engine returns the controlled engine.
func (c *Controller) Engine() *resample.Engine { return c.engine }

// State returns the current state.
func (c *Controller) State() State { return State(c.state.Load()) }

// StartAudioInput records only, at the ADC rate.
func (c *Controller) StartAudioInput() error {
	return c.start(resample.ModeRecord, StateInput)
}

// StartAudioInputAndOutput records and plays back from one clock at the DAC
// rate.
func (c *Controller) StartAudioInputAndOutput() error {
	return c.start(resample.ModeRecordAndPlayback, StateInputOutput)
}

// StartRawAudioInputAndOutput records and plays without resampling, at the
// ADC rate.
func (c *Controller) StartRawAudioInputAndOutput() error {
	return c.start(resample.ModeRawRecordAndPlayback, StateInputOutput)
}

func (c *Controller) start(mode resample.Mode, state State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stopLocked(); err != nil {
		return err
	}
	if err := c.engine.Attach(); err != nil {
		return err
	}
	rate := mode.TickRate(c.cfg.SampleRate, c.cfg.UpsampleRatio)
	if err := c.source.Attach(c.engine.Tick(mode), rate); err != nil {
		c.engine.Detach()
		return fmt.Errorf("failed to start %s at %d Hz: %w", mode, rate, err)
	}
	c.state.Store(int32(state))
	return nil
}

// StopAudio detaches the tick source. It is a no-op when already stopped.
func (c *Controller) StopAudio() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	if c.State() == StateStopped {
		return nil
	}
	err := c.source.Detach()
	c.engine.Detach()
	c.state.Store(int32(StateStopped))
	return err
}

// LoadPlayback stops audio and replaces the playback buffer contents.
func (c *Controller) LoadPlayback(samples []uint16) error {
	if err := c.StopAudio(); err != nil {
		return err
	}
	if err := c.engine.LoadPlayback(samples); err != nil {
		return err
	}
	c.mu.Lock()
	c.playback = append(c.playback[:0], samples...)
	c.mu.Unlock()
	return nil
}

// PerformPlayback plays the loaded buffer once, output only, and returns
// when it has been consumed or ctx ends. Audio is stopped and the playback
// rewound either way.
func (c *Controller) PerformPlayback(ctx context.Context) error {
	if err := c.start(resample.ModePlayback, StateOutput); err != nil {
		return err
	}

	err := c.waitFor(ctx, c.engine.PlaybackDone)
	if stopErr := c.StopAudio(); err == nil {
		err = stopErr
	}
	c.engine.ResetPlaybackIndex()
	return err
}

// WaitWindow blocks until the engine hands over a full input window, which
// is copied into out.
func (c *Controller) WaitWindow(ctx context.Context, out []int32) error {
	return c.waitFor(ctx, func() bool { return c.engine.IsInputBufferFull(out) })
}

func (c *Controller) waitFor(ctx context.Context, cond func() bool) error {
	if cond() {
		return nil
	}
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
