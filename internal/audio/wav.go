// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/go-audio/wav"
)

// ErrNotWAV is returned for input that is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("audio: not a valid WAV file")

// Clip is a mono recording converted to the unsigned range of a converter.
type Clip struct {
	Samples    []uint16
	SampleRate int
	Bits       int
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// ReadClip decodes a WAV stream and converts its first channel to bits-wide
// unsigned values.
func ReadClip(r io.ReadSeeker, bits int) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}

	channels := max(1, buf.Format.NumChannels)
	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = buf.SourceBitDepth
	}

	samples := make([]uint16, len(buf.Data)/channels)
	for i := range samples {
		samples[i] = ToUnsigned(buf.Data[i*channels], depth, bits)
	}
	return &Clip{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Bits:       bits,
	}, nil
}

// LoadClip opens path and calls ReadClip.
func LoadClip(path string, bits int) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV: %w", err)
	}
	defer f.Close()
	return ReadClip(f, bits)
}

// LoadPlayback loads a WAV file for the playback buffer. The file must be
// recorded at sampleRate, the ADC rate, since playback is upsampled from it.
func LoadPlayback(path string, sampleRate, dacBits int) ([]uint16, error) {
	clip, err := LoadClip(path, dacBits)
	if err != nil {
		return nil, err
	}
	if clip.SampleRate != sampleRate {
		return nil, fmt.Errorf("playback %s is %d Hz, want %d Hz", path, clip.SampleRate, sampleRate)
	}
	return clip.Samples, nil
}

// WAVSource is an ADC that replays a clip. Past the end it reads midscale,
// or wraps around when looping.
type WAVSource struct {
	samples []uint16
	mid     uint16
	loop    bool
	pos     atomic.Int64
}

func NewWAVSource(clip *Clip, loop bool) *WAVSource {
	return &WAVSource{
		samples: clip.Samples,
		mid:     1 << (clip.Bits - 1),
		loop:    loop,
	}
}

func (s *WAVSource) ReadSample() uint16 {
	i := s.pos.Load()
	if i >= int64(len(s.samples)) {
		if !s.loop || len(s.samples) == 0 {
			return s.mid
		}
		i = 0
	}
	s.pos.Store(i + 1)
	return s.samples[i]
}

// Done reports whether a non-looping source has been read to the end.
func (s *WAVSource) Done() bool {
	return !s.loop && s.pos.Load() >= int64(len(s.samples))
}

// Position returns the index of the next sample.
func (s *WAVSource) Position() int { return int(s.pos.Load()) }

// Rewind restarts the clip.
func (s *WAVSource) Rewind() { s.pos.Store(0) }
