// SPDX-License-Identifier: MIT
package resample

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestDesignFlatteningFilter_Errors(t *testing.T) {
	_, err := DesignFlatteningFilter(nil)
	assert.ErrorIs(t, err, ErrNoResponses)

	_, err = DesignFlatteningFilter([][]float64{{1}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = DesignFlatteningFilter([][]float64{make([]float64, 8), make([]float64, 6)})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDesignFlatteningFilter_FlatResponseGivesCenteredImpulse(t *testing.T) {
	const n = 256
	// A flat system answers the impulse with a pure delay of half the window.
	resp := make([]float64, n)
	resp[n/2] = 1000

	taps, err := DesignFlatteningFilter([][]float64{resp, resp, resp})
	require.NoError(t, err)
	require.Len(t, taps, n)

	assert.InDelta(t, 1.0, floats.Sum(taps), 1e-9)
	assert.Equal(t, n/2, floats.MaxIdx(taps))
	// Hann-windowed: both ends are pulled to zero.
	assert.InDelta(t, 0, taps[0], 1e-15)
	assert.InDelta(t, 0, taps[n-1], 1e-12)
	for i, v := range taps {
		require.False(t, math.IsNaN(v), "tap %d", i)
		if i != n/2 {
			assert.Less(t, math.Abs(v), 0.05*taps[n/2], "tap %d should be small", i)
		}
	}
}

func TestDesignFlatteningFilter_AveragesResponses(t *testing.T) {
	const n = 64
	a := make([]float64, n)
	b := make([]float64, n)
	a[n/2] = 900
	b[n/2] = 1100

	avg, err := DesignFlatteningFilter([][]float64{a, b})
	require.NoError(t, err)

	mid := make([]float64, n)
	mid[n/2] = 1000
	single, err := DesignFlatteningFilter([][]float64{mid})
	require.NoError(t, err)

	for i := range avg {
		assert.InDelta(t, single[i], avg[i], 1e-9, "tap %d", i)
	}
}

func TestFlatteningFilter_PreservesDC(t *testing.T) {
	const n = 64
	resp := make([]float64, n)
	resp[n/2] = 1
	taps, err := DesignFlatteningFilter([][]float64{resp})
	require.NoError(t, err)

	cfg := defaultEngineConfig()
	cfg.UpsampleRatio = 1
	cfg.UpsampleZeroCrossings = 1
	dac := &recorder{}
	e := newTestEngine(t, cfg, constantADC(0), dac)
	require.NoError(t, e.SetFlatteningFilter(taps))

	samples := make([]uint16, 4*n)
	for i := range samples {
		samples[i] = 2048
	}
	require.NoError(t, e.LoadPlayback(samples))
	for range samples {
		e.OutputSample()
	}

	// Unit-sum taps keep a settled constant at its level.
	assert.InDelta(t, 2048, float64(dac.values[len(dac.values)-1]), 2)
}

func TestTaps_WriteRead(t *testing.T) {
	taps := []float64{0.1, -2.5e-7, 1.0 / 3, 0}
	var buf bytes.Buffer
	require.NoError(t, WriteTaps(&buf, taps))

	got, err := ReadTaps(&buf)
	require.NoError(t, err)
	assert.Equal(t, taps, got)
}

func TestReadTaps(t *testing.T) {
	got, err := ReadTaps(strings.NewReader("# flattening taps\n0.5\n\n  0.25 \n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25}, got)

	_, err = ReadTaps(strings.NewReader("0.5\nabc\n"))
	assert.ErrorContains(t, err, "taps line 2")

	_, err = ReadTaps(strings.NewReader("NaN\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadTaps("/nonexistent/taps.txt")
	assert.Error(t, err)
}
