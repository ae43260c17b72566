// SPDX-License-Identifier: MIT

// Package sinc builds the windowed-sinc lookup tables used by the trap's
// resamplers. Tables are computed once at startup and never change.
//
// A table for ratio R and Z zero crossings has (2Z+1)R - R + 1 taps. The
// downsample table spans [-ZR, ZR] in steps of one input sample and is scaled
// by 1/R. The upsample table spans [-Z, Z] in steps of 1/R. Both are shaped by
// a Hann window over the full length.
package sinc

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrInvalidRatio is returned when the resample ratio is below 1.
	ErrInvalidRatio = errors.New("sinc: ratio must be >= 1")
	// ErrInvalidZeroCrossings is returned when fewer than one zero crossing is requested.
	ErrInvalidZeroCrossings = errors.New("sinc: zero crossings must be >= 1")
)

// Direction selects which resampler a table is built for.
type Direction int

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	switch d {
	case Down:
		return "downsample"
	case Up:
		return "upsample"
	default:
		return "unknown"
	}
}

// Table is an immutable sequence of filter taps.
type Table struct {
	taps          []float64
	ratio         int
	zeroCrossings int
	dir           Direction
}

// Length returns the number of taps for ratio and zeroCrossings.
func Length(ratio, zeroCrossings int) int {
	return (2*zeroCrossings+1)*ratio - ratio + 1
}

// Downsample builds the anti-aliasing table applied before decimating by ratio.
func Downsample(ratio, zeroCrossings int) (Table, error) {
	return build(Down, ratio, zeroCrossings)
}

// Upsample builds the interpolation table applied to a zero-stuffed signal.
func Upsample(ratio, zeroCrossings int) (Table, error) {
	return build(Up, ratio, zeroCrossings)
}

func build(dir Direction, ratio, zeroCrossings int) (Table, error) {
	if ratio < 1 {
		return Table{}, fmt.Errorf("%s table with ratio %d: %w", dir, ratio, ErrInvalidRatio)
	}
	if zeroCrossings < 1 {
		return Table{}, fmt.Errorf("%s table with %d zero crossings: %w", dir, zeroCrossings, ErrInvalidZeroCrossings)
	}

	n := Length(ratio, zeroCrossings)
	r := float64(ratio)

	// Abscissa span and the argument scale that turns x into the sinc phase.
	span, phase, centerValue, gain := float64(zeroCrossings), math.Pi, 1.0, 1.0
	if dir == Down {
		span = float64(zeroCrossings * ratio)
		phase = math.Pi / r
		centerValue = 1 / r
		gain = 1 / r
	}

	step := 2 * span / float64(n-1)
	center := int(math.Round(float64(n-1) / 2))

	taps := make([]float64, n)
	for i := range taps {
		if i == center {
			taps[i] = centerValue
		} else {
			x := phase * (-span + step*float64(i))
			taps[i] = gain * math.Sin(x) / x
		}
	}
	window.Hann(taps)

	return Table{taps: taps, ratio: ratio, zeroCrossings: zeroCrossings, dir: dir}, nil
}

// Len returns the number of taps.
func (t Table) Len() int { return len(t.taps) }

// At returns tap i.
func (t Table) At(i int) float64 { return t.taps[i] }

// Taps returns a copy of the taps.
func (t Table) Taps() []float64 {
	out := make([]float64, len(t.taps))
	copy(out, t.taps)
	return out
}

// Ratio returns the resample ratio the table was built for.
func (t Table) Ratio() int { return t.ratio }

// ZeroCrossings returns the number of zero crossings on each side of the center.
func (t Table) ZeroCrossings() int { return t.zeroCrossings }

// Direction returns whether the table downsamples or upsamples.
func (t Table) Direction() Direction { return t.dir }

// Sum returns the DC gain of the table.
func (t Table) Sum() float64 {
	return floats.Sum(t.taps)
}

// Sample is any element type a convolution ring may hold.
type Sample interface {
	~int32 | ~uint16 | ~float64
}

// Dot convolves the table with a ring of samples. See Convolve.
func Dot[S Sample](t Table, ring []S, start int) float64 {
	return Convolve(t.taps, ring, start)
}

// Convolve returns the dot product of taps with ring read circularly: tap 0
// meets ring[start] and the read wraps to the front of ring as needed.
// len(ring) must equal len(taps). It does not allocate.
func Convolve[S Sample](taps []float64, ring []S, start int) float64 {
	var acc float64
	first := ring[start:]
	for i, v := range first {
		acc += float64(v) * taps[i]
	}
	off := len(first)
	for i, v := range ring[:len(taps)-off] {
		acc += float64(v) * taps[off+i]
	}
	return acc
}
