// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/lestrrat-go/strftime"

	"trap/internal/detect"
)

// Recorder writes detection captures as mono WAV files named by a strftime
// pattern.
type Recorder struct {
	dir        string
	pattern    *strftime.Strftime
	sampleRate int
	bitDepth   int
	adcBits    int

	mu        sync.Mutex
	sampleBuf *audio.IntBuffer // Reusable buffer for format conversion
}

func NewRecorder(dir, pattern string, sampleRate, bitDepth, adcBits int) (*Recorder, error) {
	p, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid capture file pattern %q: %w", pattern, err)
	}
	return &Recorder{
		dir:        dir,
		pattern:    p,
		sampleRate: sampleRate,
		bitDepth:   bitDepth,
		adcBits:    adcBits,
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: 1,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Save writes samples, in ADC range, to a new file named for at and returns
// its path. An existing file is never overwritten: a numeric suffix is added.
func (r *Recorder) Save(at time.Time, samples []int32) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create capture directory: %w", err)
	}
	file, path, err := r.create(r.pattern.FormatString(at))
	if err != nil {
		return "", err
	}

	r.sampleBuf.Data = r.sampleBuf.Data[:0]
	mid := 1 << (r.adcBits - 1)
	limit := 1<<(r.bitDepth-1) - 1
	for _, s := range samples {
		v := shift(int(s)-mid, r.bitDepth-r.adcBits)
		r.sampleBuf.Data = append(r.sampleBuf.Data, max(-limit-1, min(limit, v)))
	}

	if err := r.encode(wav.NewEncoder(file, r.sampleRate, r.bitDepth, 1, 1), file); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// encode writes the converted samples and closes the file. A truncated
// capture is not a valid WAV, so the caller removes it on error.
func (r *Recorder) encode(enc *wav.Encoder, file *os.File) error {
	if err := enc.Write(r.sampleBuf); err != nil {
		file.Close()
		return fmt.Errorf("failed to write capture: %w", err)
	}
	if err := enc.Close(); err != nil {
		file.Close()
		return fmt.Errorf("failed to finish capture: %w", err)
	}
	return file.Close()
}

// SaveSpectrogram writes windows beside capture, with a .txt extension, in
// the template format detect.LoadTemplate reads. It returns the new path.
func (r *Recorder) SaveSpectrogram(capture string, windows [][]float64, freqWidth float64) (string, error) {
	path := strings.TrimSuffix(capture, filepath.Ext(capture)) + ".txt"
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create spectrogram: %w", err)
	}
	err = detect.WriteTemplate(f, windows, freqWidth)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (r *Recorder) create(base string) (*os.File, string, error) {
	for i := 0; ; i++ {
		name := base + ".wav"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.wav", base, i)
		}
		path := filepath.Join(r.dir, name)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to create capture: %w", err)
		}
		return f, path, nil
	}
}

// Dir returns the capture directory.
func (r *Recorder) Dir() string { return r.dir }
