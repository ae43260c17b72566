// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrSourceAttached is returned when a tick source is attached twice.
	ErrSourceAttached = errors.New("audio: tick source already attached")
	// ErrInvalidRate is returned for a non-positive tick rate.
	ErrInvalidRate = errors.New("audio: tick rate must be positive")
)

// TickSource calls a tick function at a fixed rate from a single goroutine,
// standing in for the timer interrupt.
type TickSource interface {
	// Attach starts calling tick rate times per second. It returns without
	// waiting for the first tick.
	Attach(tick func(), rate int) error
	// Detach stops the ticks. No tick runs after Detach returns.
	Detach() error
}

const (
	// DefaultTimerResolution is how long the timer sleeps between bursts.
	DefaultTimerResolution = time.Millisecond
	// DefaultMaxBurst bounds how many overdue ticks one wakeup may run.
	DefaultMaxBurst = 4096
)

// Timer is a software TickSource. It runs on a locked OS thread, sleeps for
// its resolution, then runs every tick that has come due. When the process
// falls further behind than MaxBurst ticks the backlog is skipped and
// counted as missed.
type Timer struct {
	resolution time.Duration
	maxBurst   int64

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	missed atomic.Uint64
}

func NewTimer(resolution time.Duration, maxBurst int) *Timer {
	if resolution <= 0 {
		resolution = DefaultTimerResolution
	}
	if maxBurst < 1 {
		maxBurst = DefaultMaxBurst
	}
	return &Timer{resolution: resolution, maxBurst: int64(maxBurst)}
}

func (t *Timer) Attach(tick func(), rate int) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return ErrSourceAttached
	}

	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(tick, float64(rate), t.stop, t.done)
	return nil
}

func (t *Timer) Detach() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop == nil {
		return nil
	}
	close(t.stop)
	<-t.done
	t.stop, t.done = nil, nil
	return nil
}

// Missed returns how many ticks were skipped because the timer fell behind.
func (t *Timer) Missed() uint64 { return t.missed.Load() }

func (t *Timer) run(tick func(), rate float64, stop <-chan struct{}, done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	start := time.Now()
	var n int64
	for {
		select {
		case <-stop:
			return
		default:
		}

		due := int64(time.Since(start).Seconds() * rate)
		if behind := due - n; behind > t.maxBurst {
			t.missed.Add(uint64(behind - t.maxBurst))
			n = due - t.maxBurst
		}
		for ; n < due; n++ {
			tick()
		}
		time.Sleep(t.resolution)
	}
}

// Offline is a TickSource driven by its caller: ticks run only inside
// Advance, synchronously. It replays files faster than real time.
type Offline struct {
	mu   sync.Mutex
	tick func()
	rate int
}

func (o *Offline) Attach(tick func(), rate int) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tick != nil {
		return ErrSourceAttached
	}
	o.tick, o.rate = tick, rate
	return nil
}

func (o *Offline) Detach() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tick, o.rate = nil, 0
	return nil
}

// Advance runs n ticks and returns how many ran, which is 0 when detached.
func (o *Offline) Advance(n int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tick == nil {
		return 0
	}
	for range n {
		o.tick()
	}
	return n
}

// Rate returns the attached tick rate, or 0.
func (o *Offline) Rate() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rate
}
