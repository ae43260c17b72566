// SPDX-License-Identifier: MIT
package spectral

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrCapacity is returned when a history is created without room for data.
var ErrCapacity = errors.New("spectral: capacity must be positive")

// History is the spectral history ring. Each column is one processed
// window, each row one frequency bin. The column at Cursor is the oldest
// and is the next to be overwritten.
type History struct {
	data   *mat.Dense
	cursor int
	col    []float64
}

func NewHistory(bins, windows int) (*History, error) {
	if bins < 1 || windows < 1 {
		return nil, fmt.Errorf("history of %d bins x %d windows: %w", bins, windows, ErrCapacity)
	}
	return &History{
		data: mat.NewDense(bins, windows, nil),
		col:  make([]float64, bins),
	}, nil
}

// Push rounds spectrum to integers and stores it in the oldest column.
func (h *History) Push(spectrum []float64) {
	for i := range h.col {
		h.col[i] = math.Round(spectrum[i])
	}
	h.data.SetCol(h.cursor, h.col)
	h.cursor = (h.cursor + 1) % h.Windows()
}

// Cursor returns the column the next Push writes.
func (h *History) Cursor() int { return h.cursor }

// Latest returns the column written by the most recent Push.
func (h *History) Latest() int {
	return (h.cursor - 1 + h.Windows()) % h.Windows()
}

// Window copies column col into dst, allocating if dst is nil.
func (h *History) Window(col int, dst []float64) []float64 {
	return mat.Col(dst, col, h.data)
}

// Ordered appends every window to dst[:0], oldest first. Inner slices of
// dst are reused when they are long enough.
func (h *History) Ordered(dst [][]float64) [][]float64 {
	n := h.Windows()
	spare := dst[:cap(dst)]
	dst = dst[:0]
	for i := range n {
		var buf []float64
		if i < len(spare) && len(spare[i]) == h.Bins() {
			buf = spare[i]
		}
		dst = append(dst, h.Window((h.cursor+i)%n, buf))
	}
	return dst
}

// At returns the magnitude of bin in column col.
func (h *History) At(bin, col int) float64 { return h.data.At(bin, col) }

func (h *History) Bins() int {
	r, _ := h.data.Dims()
	return r
}

func (h *History) Windows() int {
	_, c := h.data.Dims()
	return c
}

// Clear zeroes every window and rewinds the cursor.
func (h *History) Clear() {
	h.data.Zero()
	h.cursor = 0
}

// SampleHistory keeps the most recent time-domain samples fed to the
// pipeline, so a detection can be saved together with its audio.
type SampleHistory struct {
	buf    []int32
	cursor int
	full   bool
}

func NewSampleHistory(capacity int) (*SampleHistory, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("sample history of %d: %w", capacity, ErrCapacity)
	}
	return &SampleHistory{buf: make([]int32, capacity)}, nil
}

// Write appends samples, overwriting the oldest once full.
func (s *SampleHistory) Write(samples []int32) {
	for _, v := range samples {
		s.buf[s.cursor] = v
		s.cursor++
		if s.cursor == len(s.buf) {
			s.cursor = 0
			s.full = true
		}
	}
}

// Len returns the number of valid samples.
func (s *SampleHistory) Len() int {
	if s.full {
		return len(s.buf)
	}
	return s.cursor
}

// Cap returns the capacity in samples.
func (s *SampleHistory) Cap() int { return len(s.buf) }

// Ordered appends the valid samples to dst[:0], oldest first.
func (s *SampleHistory) Ordered(dst []int32) []int32 {
	dst = dst[:0]
	if s.full {
		dst = append(dst, s.buf[s.cursor:]...)
	}
	return append(dst, s.buf[:s.cursor]...)
}

func (s *SampleHistory) Clear() {
	clear(s.buf)
	s.cursor = 0
	s.full = false
}
