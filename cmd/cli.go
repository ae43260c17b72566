// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trap/internal/config"
	applog "trap/internal/log"
	"trap/pkg/build"
)

// options holds the command line flags. Flags that are set override the
// matching config file values.
type options struct {
	configPath string
	verbose    bool

	input    string // replay a WAV file instead of opening audio devices
	realtime bool   // replay at the ADC rate from the software timer
	noTUI    bool
	logFile  string

	inputDevice  int
	outputDevice int
	method       string
	template     string
	playback     string
	record       bool
}

// NewRootCmd builds the command tree. The configuration is loaded before any
// command runs and shared by all of them.
func NewRootCmd() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &options{}
	cfg := new(config.Config)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Acoustic insect trap: listen, detect and lure",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrap(cmd, cfg, opts)
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Configuration
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "f", "",
		"Path to the YAML configuration file (default: trap.yaml or config.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output")

	// Audio Device Configuration
	rootCmd.PersistentFlags().IntVarP(&opts.inputDevice, "device", "d", config.DefaultInputDevice,
		"Specify input device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentFlags().IntVarP(&opts.outputDevice, "output-device", "o", config.DefaultOutputDevice,
		"Specify output device ID for the lure call.")

	// Detection and playback
	rootCmd.Flags().StringVarP(&opts.input, "input", "i", "",
		"Replay a WAV file recorded at the ADC sample rate instead of listening")
	rootCmd.Flags().BoolVar(&opts.realtime, "realtime", false,
		"Replay --input at its own pace from the software timer")
	rootCmd.Flags().BoolVar(&opts.noTUI, "no-tui", false,
		"Log events instead of showing the status view")
	rootCmd.Flags().StringVar(&opts.logFile, "log-file", "trap.log",
		"Where logs go while the status view is shown")
	rootCmd.PersistentFlags().StringVarP(&opts.method, "method", "m", config.DefaultDetectionMethod,
		"Detection method: correlation or peaks")
	rootCmd.PersistentFlags().StringVarP(&opts.template, "template", "t", "",
		"Correlation template file")
	rootCmd.Flags().StringVarP(&opts.playback, "playback", "p", "",
		"Lure call WAV file, recorded at the ADC sample rate")
	rootCmd.Flags().BoolVarP(&opts.record, "record", "r", false,
		"Save a WAV capture of every detection")

	rootCmd.AddCommand(
		newListCmd(),
		newTablesCmd(cfg),
		newAnalyzeCmd(cfg),
		newCalibrateCmd(cfg),
	)
	return rootCmd
}

// Execute runs the CLI with the process arguments.
func Execute() error {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(os.Args[1:])
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Audio.InputDevice = opts.inputDevice
	}
	if flags.Changed("output-device") {
		cfg.Audio.OutputDevice = opts.outputDevice
	}
	if flags.Changed("method") {
		cfg.Detection.Method = opts.method
	}
	if flags.Changed("template") {
		cfg.Detection.TemplateFile = opts.template
	}
	if flags.Changed("playback") {
		cfg.Playback.File = opts.playback
	}
	if flags.Changed("record") {
		cfg.Recording.Enabled = opts.record
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, ok := applog.ParseLevel(cfg.LogLevel)
	if !ok {
		applog.Warnf("Unknown log level %q, using %s", cfg.LogLevel, level)
	}
	if cfg.Debug || opts.verbose {
		level = applog.LevelDebug
	}
	applog.SetLevel(level)
	return cfg, nil
}
