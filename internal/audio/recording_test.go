// SPDX-License-Identifier: MIT
package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trap/internal/detect"
)

func TestRecorder_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "captures")
	rec, err := NewRecorder(dir, "%Y%m%d-%H%M%S", 2048, 16, 12)
	require.NoError(t, err)
	assert.Equal(t, dir, rec.Dir())

	at := time.Date(2024, 6, 1, 21, 30, 5, 0, time.UTC)
	path, err := rec.Save(at, []int32{2048, 4095, 0, 5000})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20240601-213005.wav"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, 2048, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	// Overshoot from the resampler is clamped to the PCM range.
	assert.Equal(t, []int{0, 32752, -32768, 32767}, buf.Data)
}

func TestRecorder_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "capture", 2048, 16, 12)
	require.NoError(t, err)

	at := time.Now()
	first, err := rec.Save(at, []int32{2048})
	require.NoError(t, err)
	second, err := rec.Save(at, []int32{2048})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "capture.wav"), first)
	assert.Equal(t, filepath.Join(dir, "capture-1.wav"), second)
}

func TestRecorder_FailedCaptureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	// The WAV encoder has no 12-bit sample layout, so the write fails after
	// the file was created.
	rec, err := NewRecorder(dir, "capture", 2048, 12, 12)
	require.NoError(t, err)

	_, err = rec.Save(time.Now(), []int32{2048, 2049})
	require.ErrorContains(t, err, "failed to write capture")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecorder_SaveSpectrogram(t *testing.T) {
	const freqWidth = 0.0625
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "capture", 2048, 16, 12)
	require.NoError(t, err)

	capture, err := rec.Save(time.Now(), []int32{2048})
	require.NoError(t, err)

	windows := [][]float64{{0, 12, 3}, {1, 40, 0}}
	path, err := rec.SaveSpectrogram(capture, windows, freqWidth)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "capture.txt"), path)

	loaded, err := detect.LoadTemplateFile(path, 3, freqWidth)
	require.NoError(t, err)
	assert.Equal(t, windows, loaded)

	_, err = rec.SaveSpectrogram(filepath.Join(dir, "missing", "capture.wav"), windows, freqWidth)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
