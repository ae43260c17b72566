// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "trap.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultSampleRate, cfg.Audio.SampleRate)
	assert.Equal(t, MethodCorrelation, cfg.Detection.Method)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
log_level: debug
audio:
  sample_rate: 8192
  window_size: 512
detection:
  method: peaks
  target_hz: 120
  margin_hz: 10
recording:
  enabled: true
  output_dir: /tmp/captures
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8192, cfg.Audio.SampleRate)
	assert.Equal(t, MethodPeaks, cfg.Detection.Method)
	assert.Equal(t, 120.0, cfg.Detection.TargetHz)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultDownsampleRatio, cfg.Resample.DownsampleRatio)
	assert.Equal(t, DefaultCapturePattern, cfg.Recording.FilePattern)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.2:7000")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "100ms")
	t.Setenv("ENV_CORRELATION_THRESHOLD", "0.7")
	t.Setenv("ENV_INPUT_DEVICE", "not-a-number")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.Transport.UDPEnabled)
	assert.Equal(t, "10.0.0.2:7000", cfg.Transport.UDPTargetAddress)
	assert.Equal(t, 100*time.Millisecond, cfg.Transport.UDPSendInterval)
	assert.Equal(t, 0.7, cfg.Detection.CorrelationThreshold)
	assert.Equal(t, DefaultInputDevice, cfg.Audio.InputDevice, "unparseable override is ignored")
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ENV_PLAYBACK_FILE=lure.wav\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("ENV_PLAYBACK_FILE") })

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "lure.wav", cfg.Playback.File)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"window not multiple of ratio", func(c *Config) { c.Resample.DownsampleRatio = 3 }, "not a multiple"},
		{"fft size not power of two", func(c *Config) { c.Audio.WindowSize = 192 }, "power of two"},
		{"zero crossings", func(c *Config) { c.Resample.UpsampleZeroCrossings = 0 }, "zero crossings"},
		{"band above nyquist", func(c *Config) { c.Detection.CorrelationHighHz = 2000 }, "correlation band"},
		{"inverted band", func(c *Config) { c.Detection.CorrelationLowHz = 120 }, "correlation band"},
		{"template longer than history", func(c *Config) { c.Detection.TemplateLength = 1000 }, "template_length"},
		{"unknown method", func(c *Config) { c.Detection.Method = "vibes" }, "detection.method"},
		{"efficiency", func(c *Config) { c.Detection.Efficiency = 1.5 }, "efficiency"},
		{"udp address", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "missing port"},
		{"capture depth", func(c *Config) {
			c.Recording.Enabled = true
			c.Recording.BitDepth = 12
		}, "bit_depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDerivedQuantities(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 128, cfg.FFTWindowSize())
	assert.Equal(t, 2048, cfg.FFTSampleRate())
	assert.Equal(t, 64, cfg.FrequencyBins())
	assert.Equal(t, 1.0/16.0, cfg.FreqWidth())
	assert.Equal(t, 32768, cfg.OutputSampleRate())
	assert.Equal(t, 16.0, cfg.WindowsPerSecond())
	assert.Equal(t, 128, cfg.HistoryWindows())
	assert.Equal(t, 8*2048+128*4, cfg.RawHistorySamples())
	assert.Equal(t, 4095, cfg.DACMax())
	assert.Equal(t, 2048, cfg.DACMid())
}
