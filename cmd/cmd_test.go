// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trap/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeToneWAV writes seconds of an 80 Hz tone at 4096 Hz. Its 16-bit
// amplitude of 8000 is 500 on the 12-bit ADC scale.
func writeToneWAV(t *testing.T, seconds float64) string {
	t.Helper()
	const rate = 4096
	data := make([]int, int(seconds*rate))
	for i := range data {
		data[i] = int(math.Round(8000 * math.Sin(2*math.Pi*80*float64(i)/rate)))
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTablesCmd(t *testing.T) {
	out, err := execute(t, "tables")
	require.NoError(t, err)
	assert.Contains(t, out, "downsample: ratio 2, 5 zero crossings, 21 taps")
	assert.Contains(t, out, "upsample: ratio 8, 5 zero crossings, 81 taps")
}

func TestAnalyzeCmd_PeaksOnTone(t *testing.T) {
	cfgPath := writeFile(t, "trap.yaml", `
spectral:
  frequency_smoothing: 0
detection:
  target_hz: 80
  margin_hz: 8
  expected_signal_seconds: 1
`)
	wavPath := writeToneWAV(t, 3)

	out, err := execute(t, "--config", cfgPath, "--method", "peaks", "analyze", wavPath)
	require.NoError(t, err)
	assert.Contains(t, out, "WINDOW")
	assert.Contains(t, out, "DETECTED")
	assert.Contains(t, out, "48 windows")
	assert.Contains(t, out, "(peaks)")
}

func TestAnalyzeCmd_Errors(t *testing.T) {
	_, err := execute(t, "analyze")
	assert.Error(t, err, "needs a file")

	_, err = execute(t, "--method", "peaks", "analyze", filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)

	_, err = execute(t, "analyze", writeToneWAV(t, 0.5))
	assert.ErrorIs(t, err, errNoTemplate)

	_, err = execute(t, "--method", "nope", "tables")
	assert.ErrorContains(t, err, "detection.method")
}

func TestRootCmd_ReplayInput(t *testing.T) {
	cfgPath := writeFile(t, "trap.yaml", `
spectral:
  frequency_smoothing: 0
detection:
  method: peaks
  target_hz: 80
  margin_hz: 8
  expected_signal_seconds: 1
`)
	out, err := execute(t, "--config", cfgPath, "--input", writeToneWAV(t, 2))
	require.NoError(t, err)
	assert.Contains(t, out, "32 windows")
}

func templateText(windows, bins int) string {
	var sb strings.Builder
	for w := range windows {
		for b := range bins {
			fmt.Fprintf(&sb, "%d\n", (w+1)*b)
		}
	}
	return sb.String()
}

func TestNewDetector(t *testing.T) {
	cfg := config.Default()
	_, _, err := newDetector(cfg)
	assert.ErrorIs(t, err, errNoTemplate)

	cfg.Detection.TemplateFile = writeFile(t, "short.txt", templateText(1, cfg.FrequencyBins()))
	_, _, err = newDetector(cfg)
	assert.ErrorContains(t, err, "has 1 windows, want 13")

	cfg.Detection.TemplateFile = writeFile(t, "template.txt", templateText(13, cfg.FrequencyBins()))
	d, threshold, err := newDetector(cfg)
	require.NoError(t, err)
	assert.Equal(t, "correlation", d.Method())
	assert.InDelta(t, 0.5, threshold, 1e-12)

	cfg.Detection.Method = config.MethodPeaks
	d, threshold, err = newDetector(cfg)
	require.NoError(t, err)
	assert.Equal(t, "peaks", d.Method())
	assert.InDelta(t, 80, threshold, 1e-9)

	cfg.Detection.ExpectedSignalSeconds = 20
	_, _, err = newDetector(cfg)
	assert.ErrorContains(t, err, "history holds")
}

func TestNewSession_WiresMonitor(t *testing.T) {
	cfg := config.Default()
	cfg.Detection.Method = config.MethodPeaks
	cfg.Recording.Enabled = true
	cfg.Recording.OutputDir = t.TempDir()

	s, err := newSession(cfg, discardADC{}, discardDAC, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.FFTWindowSize(), s.engine.WindowSize())
	assert.Equal(t, cfg.FrequencyBins(), s.monitor.Bins())
	assert.Equal(t, cfg.HistoryWindows(), s.pipeline.History().Windows())

	lure, err := s.loadLure()
	require.NoError(t, err)
	assert.False(t, lure)

	cfg.Playback.FlatteningFile = writeFile(t, "taps.txt", "0.25\n0.5\n0.25\n")
	_, err = s.loadLure()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.5, 0.25}, s.engine.FlatteningFilter())
}

type discardADC struct{}

func (discardADC) ReadSample() uint16 { return 2048 }
