// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"trap/internal/audio"
	"trap/internal/config"
	applog "trap/internal/log"
	"trap/internal/monitor"
	"trap/internal/resample"
	"trap/internal/sinc"
	"trap/internal/transport"
	"trap/internal/tui"
)

func newListCmd() *cobra.Command {
	var pick, output bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()

			if !pick {
				return audio.ListDevices(cmd.OutOrStdout())
			}
			id, ok, err := tui.PickDevice(output)
			if err != nil || !ok {
				return err
			}
			flag := "--device"
			if output {
				flag = "--output-device"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%d\n", flag, id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&pick, "pick", false, "Choose a device interactively and print its setting")
	cmd.Flags().BoolVar(&output, "speaker", false, "Pick the output device instead of the microphone")
	return cmd
}

func newTablesCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "Print the sinc resampling tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			down, err := sinc.Downsample(cfg.Resample.DownsampleRatio, cfg.Resample.DownsampleZeroCrossings)
			if err != nil {
				return err
			}
			up, err := sinc.Upsample(cfg.Resample.UpsampleRatio, cfg.Resample.UpsampleZeroCrossings)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			writeTable(w, down)
			fmt.Fprintln(w)
			writeTable(w, up)
			return nil
		},
	}
}

func writeTable(w io.Writer, t sinc.Table) {
	fmt.Fprintf(w, "%s: ratio %d, %d zero crossings, %d taps, sum %.5f\n",
		t.Direction(), t.Ratio(), t.ZeroCrossings(), t.Len(), t.Sum())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for i := range t.Len() {
		fmt.Fprintf(tw, "%d\t%.8f\t\n", i, t.At(i))
	}
	tw.Flush()
}

func newAnalyzeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Run detection over a recording and print the score of every window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			clip, err := loadInput(cfg, args[0])
			if err != nil {
				return err
			}
			offline := &audio.Offline{}
			src := audio.NewWAVSource(clip, false)
			s, err := newSession(cfg, src, discardDAC, offline, transport.Nop{})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "WINDOW\tSECONDS\tSCORE\tLEVEL\tDETECTED\n")
			seconds := 1 / cfg.WindowsPerSecond()
			err = replay(ctx, s, src, offline, func(ev monitor.Event) {
				mark := ""
				if ev.Detected {
					mark = "DETECTED"
				}
				fmt.Fprintf(tw, "%d\t%.3f\t%.4f\t%d\t%s\n", ev.Window, float64(ev.Window)*seconds, ev.Score, ev.Level, mark)
			})
			tw.Flush()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%s: %d windows, %d detections (%s)\n",
				args[0], s.monitor.Windows(), s.monitor.Detections(), cfg.Detection.Method)
			return nil
		},
	}
}

func newCalibrateCmd(cfg *config.Config) *cobra.Command {
	var passes int
	var output string
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Measure the speaker response and write flattening filter taps",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

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
			engine, err := newEngine(cfg, stream.ADC(), stream.DAC())
			if err != nil {
				return err
			}
			taps, err := calibrate(ctx, newController(cfg, engine, stream), passes, uint16(cfg.DACMax()))
			if err != nil {
				return err
			}

			if output == "" {
				output = cfg.Playback.FlatteningFile
			}
			if output == "" {
				return resample.WriteTaps(cmd.OutOrStdout(), taps)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create taps file: %w", err)
			}
			if err := resample.WriteTaps(f, taps); err != nil {
				f.Close()
				return err
			}
			applog.Infof("Calibration: %d taps written to %s", len(taps), output)
			return f.Close()
		},
	}
	cmd.Flags().IntVarP(&passes, "passes", "n", 4, "Impulse responses to average")
	cmd.Flags().StringVar(&output, "out", "",
		"Taps file to write (default: playback.flattening_file, else stdout)")
	return cmd
}

func calibrate(ctx context.Context, ctrl *audio.Controller, passes int, dacMax uint16) ([]float64, error) {
	applog.Infof("Calibration: %d passes", passes)
	taps, err := ctrl.CalibrateImpulseResponse(ctx, passes, dacMax)
	if err != nil {
		return nil, fmt.Errorf("calibration failed: %w", err)
	}
	return taps, nil
}
