// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trap/internal/log"
	"trap/pkg/bitint"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Force debug logging regardless of log_level.
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`
	Resample  ResampleConfig  `yaml:"resample"`
	Spectral  SpectralConfig  `yaml:"spectral"`
	Detection DetectionConfig `yaml:"detection"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds the ADC/DAC side of the trap.
type AudioConfig struct {
	InputDevice     int  `yaml:"input_device"`      // PortAudio device index for the microphone (-1 for default).
	OutputDevice    int  `yaml:"output_device"`     // PortAudio device index for the lure speaker (-1 for default).
	SampleRate      int  `yaml:"sample_rate"`       // Raw ADC sample rate in Hz.
	WindowSize      int  `yaml:"window_size"`       // Raw samples per analysis window, before downsampling.
	ADCBits         int  `yaml:"adc_bits"`          // ADC resolution.
	DACBits         int  `yaml:"dac_bits"`          // DAC resolution.
	FramesPerBuffer int  `yaml:"frames_per_buffer"` // PortAudio callback size.
	LowLatency      bool `yaml:"low_latency"`       // Request low latency settings from PortAudio.
}

// ResampleConfig holds the sinc resampler ratios and table sizes.
type ResampleConfig struct {
	DownsampleRatio         int `yaml:"downsample_ratio"`
	UpsampleRatio           int `yaml:"upsample_ratio"`
	DownsampleZeroCrossings int `yaml:"downsample_zero_crossings"`
	UpsampleZeroCrossings   int `yaml:"upsample_zero_crossings"`
}

// SpectralConfig holds the denoising and smoothing parameters.
type SpectralConfig struct {
	AlphaTrimWindow    int     `yaml:"alpha_trim_window"`    // Bins in the alpha-trim statistics window.
	AlphaTrimThreshold float64 `yaml:"alpha_trim_threshold"` // z-score above which a bin is treated as an outlier.
	TimeAverageWindows int     `yaml:"time_average_windows"` // Spectra averaged across time.
	FrequencySmoothing int     `yaml:"frequency_smoothing"`  // Bins in the frequency moving average.
	RecordSeconds      int     `yaml:"record_seconds"`       // Seconds of spectral history kept.
}

// DetectionConfig selects and tunes the detector.
type DetectionConfig struct {
	Method                string        `yaml:"method"` // "correlation" or "peaks".
	TemplateFile          string        `yaml:"template_file"`
	TemplateLength        int           `yaml:"template_length"`
	CorrelationLowHz      float64       `yaml:"correlation_low_hz"`
	CorrelationHighHz     float64       `yaml:"correlation_high_hz"`
	CorrelationThreshold  float64       `yaml:"correlation_threshold"`
	TargetHz              float64       `yaml:"target_hz"`
	MarginHz              float64       `yaml:"margin_hz"`
	Harmonics             int           `yaml:"harmonics"`
	SignalThreshold       float64       `yaml:"signal_threshold"`
	ExpectedSignalSeconds float64       `yaml:"expected_signal_seconds"`
	Efficiency            float64       `yaml:"efficiency"`
	PollInterval          time.Duration `yaml:"poll_interval"` // How often the main loop checks for a full window.
}

// PlaybackConfig holds the lure call source.
type PlaybackConfig struct {
	File           string `yaml:"file"`            // WAV file played through the upsampler. Empty disables output.
	MaxSeconds     int    `yaml:"max_seconds"`     // Capacity of the playback buffer.
	Loop           bool   `yaml:"loop"`            // Restart the lure call whenever it finishes.
	FlatteningFile string `yaml:"flattening_file"` // Taps written by `trap calibrate`, one per line.
}

// RecordingConfig holds settings for detection captures.
type RecordingConfig struct {
	Enabled     bool   `yaml:"enabled"`      // Save a WAV capture on every detection.
	OutputDir   string `yaml:"output_dir"`   // Directory for captures.
	FilePattern string `yaml:"file_pattern"` // strftime pattern for capture names.
	BitDepth    int    `yaml:"bit_depth"`
}

// TransportConfig holds settings related to sending detection data over the network.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Publish the latest spectrum over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve detection events over a websocket.
	WebSocketAddress string        `yaml:"websocket_address"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultInputDevice,
			OutputDevice:    DefaultOutputDevice,
			SampleRate:      DefaultSampleRate,
			WindowSize:      DefaultWindowSize,
			ADCBits:         DefaultADCBits,
			DACBits:         DefaultDACBits,
			FramesPerBuffer: DefaultFramesPerBuffer,
		},
		Resample: ResampleConfig{
			DownsampleRatio:         DefaultDownsampleRatio,
			UpsampleRatio:           DefaultUpsampleRatio,
			DownsampleZeroCrossings: DefaultDownsampleZeroCrossings,
			UpsampleZeroCrossings:   DefaultUpsampleZeroCrossings,
		},
		Spectral: SpectralConfig{
			AlphaTrimWindow:    DefaultAlphaTrimWindow,
			AlphaTrimThreshold: DefaultAlphaTrimThreshold,
			TimeAverageWindows: DefaultTimeAverageWindows,
			FrequencySmoothing: DefaultFrequencySmoothing,
			RecordSeconds:      DefaultRecordSeconds,
		},
		Detection: DetectionConfig{
			Method:                DefaultDetectionMethod,
			TemplateLength:        DefaultTemplateLength,
			CorrelationLowHz:      DefaultCorrelationLowHz,
			CorrelationHighHz:     DefaultCorrelationHighHz,
			CorrelationThreshold:  DefaultCorrelationThreshold,
			TargetHz:              DefaultTargetHz,
			MarginHz:              DefaultMarginHz,
			Harmonics:             DefaultHarmonics,
			SignalThreshold:       DefaultSignalThreshold,
			ExpectedSignalSeconds: DefaultExpectedSignalSeconds,
			Efficiency:            DefaultEfficiency,
			PollInterval:          DefaultPollInterval,
		},
		Playback: PlaybackConfig{
			MaxSeconds: DefaultPlaybackSeconds,
			Loop:       true,
		},
		Recording: RecordingConfig{
			OutputDir:   DefaultCaptureDir,
			FilePattern: DefaultCapturePattern,
			BitDepth:    DefaultCaptureBitDepth,
		},
		Transport: TransportConfig{
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
			WebSocketAddress: DefaultWebSocketAddress,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("trap.yaml", "config.yaml"). If no file is found, it uses
// built-in defaults. A ".env" file in the working directory is loaded into the process
// environment first, then ENV_ variable overrides are applied and the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if path == "" {
		for _, candidate := range []string{"trap.yaml", "config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks ranges and the relationships between settings that the
// fixed-size buffers depend on.
func (c *Config) Validate() error {
	a := c.Audio
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %d out of range [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.ADCBits < 1 || a.ADCBits > MaxADCBits {
		return fmt.Errorf("audio.adc_bits %d out of range [1, %d]", a.ADCBits, MaxADCBits)
	}
	if a.DACBits < 1 || a.DACBits > MaxADCBits {
		return fmt.Errorf("audio.dac_bits %d out of range [1, %d]", a.DACBits, MaxADCBits)
	}
	if a.FramesPerBuffer < 1 {
		return fmt.Errorf("audio.frames_per_buffer must be positive, got %d", a.FramesPerBuffer)
	}

	r := c.Resample
	if r.DownsampleRatio < 1 || r.UpsampleRatio < 1 {
		return fmt.Errorf("resample ratios must be >= 1, got down=%d up=%d", r.DownsampleRatio, r.UpsampleRatio)
	}
	if r.DownsampleZeroCrossings < 1 || r.UpsampleZeroCrossings < 1 {
		return fmt.Errorf("resample zero crossings must be >= 1, got down=%d up=%d",
			r.DownsampleZeroCrossings, r.UpsampleZeroCrossings)
	}
	if a.WindowSize%r.DownsampleRatio != 0 {
		return fmt.Errorf("audio.window_size %d is not a multiple of resample.downsample_ratio %d", a.WindowSize, r.DownsampleRatio)
	}
	if n := c.FFTWindowSize(); n < 4 || !bitint.IsPowerOfTwo(n) {
		return fmt.Errorf("FFT window size %d (window_size / downsample_ratio) must be a power of two >= 4", n)
	}

	s := c.Spectral
	if s.AlphaTrimWindow < 1 || s.AlphaTrimThreshold <= 0 {
		return fmt.Errorf("spectral.alpha_trim_window must be >= 1 and alpha_trim_threshold > 0")
	}
	if s.TimeAverageWindows < 1 {
		return fmt.Errorf("spectral.time_average_windows must be >= 1, got %d", s.TimeAverageWindows)
	}
	if s.FrequencySmoothing < 0 {
		return fmt.Errorf("spectral.frequency_smoothing must be >= 0, got %d", s.FrequencySmoothing)
	}
	if s.RecordSeconds < 1 {
		return fmt.Errorf("spectral.record_seconds must be >= 1, got %d", s.RecordSeconds)
	}

	d := c.Detection
	nyquist := float64(c.FFTSampleRate()) / 2
	switch d.Method {
	case MethodCorrelation, MethodPeaks:
	default:
		return fmt.Errorf("detection.method %q must be %q or %q", d.Method, MethodCorrelation, MethodPeaks)
	}
	if d.TemplateLength < 1 || d.TemplateLength > c.HistoryWindows() {
		return fmt.Errorf("detection.template_length %d out of range [1, %d]", d.TemplateLength, c.HistoryWindows())
	}
	if d.CorrelationLowHz < 0 || d.CorrelationLowHz >= d.CorrelationHighHz || d.CorrelationHighHz > nyquist {
		return fmt.Errorf("detection correlation band [%g, %g) Hz invalid for nyquist %g Hz",
			d.CorrelationLowHz, d.CorrelationHighHz, nyquist)
	}
	if d.MarginHz < 0 || d.TargetHz-d.MarginHz <= 0 {
		return fmt.Errorf("detection target %g +/- %g Hz must stay above 0 Hz", d.TargetHz, d.MarginHz)
	}
	if d.Harmonics < 1 {
		return fmt.Errorf("detection.harmonics must be >= 1, got %d", d.Harmonics)
	}
	if d.Efficiency <= 0 || d.Efficiency > 1 {
		return fmt.Errorf("detection.efficiency %g out of range (0, 1]", d.Efficiency)
	}
	if d.ExpectedSignalSeconds <= 0 {
		return fmt.Errorf("detection.expected_signal_seconds must be positive")
	}
	if d.PollInterval <= 0 {
		return fmt.Errorf("detection.poll_interval must be positive")
	}

	if c.Playback.MaxSeconds < 1 {
		return fmt.Errorf("playback.max_seconds must be >= 1, got %d", c.Playback.MaxSeconds)
	}

	if c.Recording.Enabled {
		if c.Recording.OutputDir == "" || c.Recording.FilePattern == "" {
			return fmt.Errorf("recording.output_dir and recording.file_pattern must be set when recording is enabled")
		}
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			return fmt.Errorf("recording.bit_depth %d must be 16, 24 or 32", c.Recording.BitDepth)
		}
	}

	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddress == "" {
		return fmt.Errorf("transport.websocket_address must be set when the websocket is enabled")
	}

	return nil
}

// applyEnvOverrides lets deployments change a handful of settings without
// editing the YAML file. Unparseable values are ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			log.Debugf("configuration: overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
	}
	// ENV_INPUT_DEVICE
	if val, ok := os.LookupEnv("ENV_INPUT_DEVICE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			cfg.Audio.InputDevice = iVal
			log.Debugf("configuration: overriding audio.input_device from env: %d", iVal)
		}
	}

	// ENV_TEMPLATE_FILE, ENV_PLAYBACK_FILE
	if val, ok := os.LookupEnv("ENV_TEMPLATE_FILE"); ok {
		cfg.Detection.TemplateFile = val
	}
	if val, ok := os.LookupEnv("ENV_PLAYBACK_FILE"); ok {
		cfg.Playback.File = val
	}
	// ENV_CORRELATION_THRESHOLD
	if val, ok := os.LookupEnv("ENV_CORRELATION_THRESHOLD"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Detection.CorrelationThreshold = fVal
			log.Debugf("configuration: overriding detection.correlation_threshold from env: %g", fVal)
		}
	}
	// ENV_RECORDING_DIR
	if val, ok := os.LookupEnv("ENV_RECORDING_DIR"); ok {
		cfg.Recording.OutputDir = val
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			log.Debugf("configuration: overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
		}
	}
	// ENV_WS_ENABLED
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.WebSocketEnabled = bVal
		}
	}
	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		cfg.Transport.WebSocketAddress = val
	}
}
