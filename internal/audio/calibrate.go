// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"

	"trap/internal/log"
	"trap/internal/resample"
)

// ErrAverages is returned when calibration is asked for no passes.
var ErrAverages = errors.New("audio: calibration needs at least one pass")

// CalibrateImpulseResponse measures the speaker-to-microphone response and
// installs a flattening filter that compensates it.
//
// The playback buffer is replaced by a full-scale impulse two input windows
// long. One window is recorded and discarded to clear the input, then each
// of the averages passes plays the impulse in raw mode and records two
// windows. The designed taps are installed on the engine and returned. The
// previous playback is restored on every exit, and so is the previous filter
// when calibration fails.
func (c *Controller) CalibrateImpulseResponse(ctx context.Context, averages int, dacMax uint16) (taps []float64, err error) {
	if averages < 1 {
		return nil, ErrAverages
	}

	c.mu.Lock()
	previous := append([]uint16(nil), c.playback...)
	c.mu.Unlock()
	previousTaps := c.engine.FlatteningFilter()

	window := c.engine.WindowSize()
	impulse := make([]uint16, 2*window)
	impulse[0] = dacMax

	if err := c.StopAudio(); err != nil {
		return nil, err
	}
	defer func() {
		if stopErr := c.StopAudio(); err == nil {
			err = stopErr
		}
		if err != nil {
			taps = nil
			err = errors.Join(err, c.engine.SetFlatteningFilter(previousTaps))
		}
		if loadErr := c.engine.LoadPlayback(previous); err == nil {
			err = loadErr
		}
	}()

	// Remove any filter so the impulse is played as is.
	if err := c.engine.SetFlatteningFilter(nil); err != nil {
		return nil, err
	}
	if err := c.engine.LoadPlayback(impulse); err != nil {
		return nil, err
	}

	buf := make([]int32, window)
	if err := c.StartAudioInput(); err != nil {
		return nil, err
	}
	err = c.WaitWindow(ctx, buf)
	if stopErr := c.StopAudio(); err == nil {
		err = stopErr
	}
	if err != nil {
		return nil, err
	}

	responses := make([][]float64, 0, averages)
	for pass := range averages {
		if err := sleepCtx(ctx, c.cfg.Settle); err != nil {
			return nil, err
		}
		resp, err := c.recordImpulse(ctx, buf)
		if err != nil {
			return nil, fmt.Errorf("calibration pass %d: %w", pass+1, err)
		}
		log.Debugf("Calibration pass %d/%d recorded %d samples", pass+1, averages, len(resp))
		responses = append(responses, resp)
	}

	taps, err = resample.DesignFlatteningFilter(responses)
	if err != nil {
		return nil, err
	}
	if err := c.engine.SetFlatteningFilter(taps); err != nil {
		return nil, err
	}
	return taps, nil
}

func (c *Controller) recordImpulse(ctx context.Context, buf []int32) ([]float64, error) {
	if err := c.StartRawAudioInputAndOutput(); err != nil {
		return nil, err
	}

	resp := make([]float64, 0, 2*len(buf))
	var err error
	for range 2 {
		if err = c.WaitWindow(ctx, buf); err != nil {
			break
		}
		for _, v := range buf {
			resp = append(resp, float64(v))
		}
	}
	if stopErr := c.StopAudio(); err == nil {
		err = stopErr
	}
	return resp, err
}
