// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"trap/internal/audio"
	"trap/internal/config"
	applog "trap/internal/log"
	"trap/internal/monitor"
	"trap/internal/resample"
	"trap/internal/transport/udp"
	"trap/internal/tui"
)

var errQuit = errors.New("quit")

// discardDAC is the DAC of a replay without speakers.
var discardDAC = resample.DACFunc(func(uint16) {})

// runTrap is the root command: listen on the configured devices, or replay
// --input, until interrupted.
func runTrap(cmd *cobra.Command, cfg *config.Config, opts *options) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.input != "" && !opts.realtime {
		return replayFile(ctx, cmd, cfg, opts.input)
	}

	if !opts.noTUI {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		applog.SetOutput(f)
		defer applog.SetOutput(os.Stderr)
	}

	if opts.input != "" {
		clip, err := loadInput(cfg, opts.input)
		if err != nil {
			return err
		}
		return listen(ctx, cfg, opts, audio.NewWAVSource(clip, false), discardDAC, audio.NewTimer(0, 0))
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	stream, err := audio.NewStream(audio.StreamConfig{
		InputDevice:     cfg.Audio.InputDevice,
		OutputDevice:    cfg.Audio.OutputDevice,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
		ADCBits:         cfg.Audio.ADCBits,
		DACBits:         cfg.Audio.DACBits,
	})
	if err != nil {
		return err
	}
	in, out := stream.Devices()
	applog.Infof("Audio: Listening on %q, playing on %q", in, out)
	return listen(ctx, cfg, opts, stream.ADC(), stream.DAC(), stream)
}

// listen runs the monitor, the transports, the lure loop and the status view
// concurrently until ctx ends or the user quits.
func listen(ctx context.Context, cfg *config.Config, opts *options, adc resample.ADC, dac resample.DAC, source audio.TickSource) error {
	tr, err := newTransport(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	s, err := newSession(cfg, adc, dac, source, tr)
	if err != nil {
		return err
	}
	lure, err := s.loadLure()
	if err != nil {
		return err
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()
		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, s.monitor)
		if err != nil {
			return err
		}
		pub.Start()
		defer pub.Close()
	}

	if lure {
		err = s.ctrl.StartAudioInputAndOutput()
	} else {
		err = s.ctrl.StartAudioInput()
	}
	if err != nil {
		return err
	}
	defer s.ctrl.StopAudio()
	applog.Infof("Audio: %s", s.ctrl.State())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.monitor.Run(ctx) })
	if lure && cfg.Playback.Loop {
		g.Go(func() error { return loopLure(ctx, s.engine, cfg.Detection.PollInterval) })
	}
	if !opts.noTUI {
		g.Go(func() error {
			title := fmt.Sprintf("trap: %s detection", cfg.Detection.Method)
			if err := tui.RunStatus(ctx, title, s.threshold, s.monitor.Events()); err != nil {
				return err
			}
			return errQuit
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, errQuit) {
		err = nil
	}
	applog.Infof("Monitor: %d windows, %d detections", s.monitor.Windows(), s.monitor.Detections())
	return err
}

// loopLure restarts playback each time it finishes.
func loopLure(ctx context.Context, engine *resample.Engine, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			engine.CheckResetPlaybackIndex()
		}
	}
}

func loadInput(cfg *config.Config, path string) (*audio.Clip, error) {
	clip, err := audio.LoadClip(path, cfg.Audio.ADCBits)
	if err != nil {
		return nil, err
	}
	if clip.SampleRate != cfg.Audio.SampleRate {
		return nil, fmt.Errorf("input %s is %d Hz, want %d Hz", path, clip.SampleRate, cfg.Audio.SampleRate)
	}
	return clip, nil
}

// replay runs clip through the engine as fast as possible, one window at a
// time, and calls each for every processed window.
func replay(ctx context.Context, s *session, src *audio.WAVSource, offline *audio.Offline, each func(monitor.Event)) error {
	if err := s.ctrl.StartAudioInput(); err != nil {
		return err
	}
	defer s.ctrl.StopAudio()

	ticks := s.cfg.Audio.WindowSize
	for !src.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		offline.Advance(ticks)
		ok, err := s.monitor.Poll()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		select {
		case ev := <-s.monitor.Events():
			each(ev)
		default:
		}
	}
	return nil
}

// replayFile is the root command with --input: offline replay through the
// configured transports.
func replayFile(ctx context.Context, cmd *cobra.Command, cfg *config.Config, path string) error {
	clip, err := loadInput(cfg, path)
	if err != nil {
		return err
	}
	tr, err := newTransport(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	offline := &audio.Offline{}
	src := audio.NewWAVSource(clip, false)
	s, err := newSession(cfg, src, discardDAC, offline, tr)
	if err != nil {
		return err
	}
	if err := replay(ctx, s, src, offline, func(monitor.Event) {}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d windows, %d detections\n", path, s.monitor.Windows(), s.monitor.Detections())
	return nil
}
