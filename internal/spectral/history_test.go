// SPDX-License-Identifier: MIT
package spectral

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewHistory_RejectsEmpty(t *testing.T) {
	_, err := NewHistory(0, 4)
	assert.ErrorIs(t, err, ErrCapacity)
	_, err = NewHistory(4, 0)
	assert.ErrorIs(t, err, ErrCapacity)
	_, err = NewSampleHistory(0)
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestHistory_PushRoundsAndWraps(t *testing.T) {
	h, err := NewHistory(2, 3)
	require.NoError(t, err)

	h.Push([]float64{1.4, 1.6})
	assert.Equal(t, 0, h.Latest())
	assert.Equal(t, []float64{1, 2}, h.Window(0, nil))

	h.Push([]float64{-2.5, 2.5})
	assert.Equal(t, []float64{-3, 3}, h.Window(1, nil), "half away from zero")

	h.Push([]float64{7, 7})
	h.Push([]float64{9, 9})
	assert.Equal(t, 0, h.Latest())
	assert.Equal(t, 1, h.Cursor(), "oldest column is next to be overwritten")
	assert.Equal(t, 9.0, h.At(1, 0))

	h.Clear()
	assert.Equal(t, 0, h.Cursor())
	assert.Equal(t, []float64{0, 0}, h.Window(0, nil))
}

func TestHistory_KeepsMostRecentWindows(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(t, "capacity")
		extra := rapid.IntRange(0, 40).Draw(t, "extra")

		h, err := NewHistory(3, capacity)
		if err != nil {
			t.Fatal(err)
		}
		total := capacity + extra
		for i := range total {
			v := float64(i)
			h.Push([]float64{v, v, v})
		}

		// Reading from the cursor forward yields pushes extra..total-1.
		dst := make([]float64, 3)
		for j := range capacity {
			col := (h.Cursor() + j) % capacity
			got := h.Window(col, dst)[0]
			if want := float64(extra + j); got != want {
				t.Fatalf("window %d: got %g, want %g", j, got, want)
			}
		}
		if got := h.Window(h.Latest(), dst)[0]; got != float64(total-1) {
			t.Fatalf("latest: got %g, want %d", got, total-1)
		}

		ordered := h.Ordered(nil)
		if len(ordered) != capacity {
			t.Fatalf("ordered: %d windows, want %d", len(ordered), capacity)
		}
		for j, w := range ordered {
			if want := float64(extra + j); w[0] != want {
				t.Fatalf("ordered %d: got %g, want %g", j, w[0], want)
			}
		}
	})
}

func TestHistory_OrderedReusesWindows(t *testing.T) {
	h, err := NewHistory(2, 3)
	require.NoError(t, err)
	for _, v := range []float64{1, 2, 3, 4} {
		h.Push([]float64{v, -v})
	}

	first := h.Ordered(nil)
	assert.Equal(t, [][]float64{{2, -2}, {3, -3}, {4, -4}}, first)

	h.Push([]float64{5, -5})
	again := h.Ordered(first)
	assert.Equal(t, [][]float64{{3, -3}, {4, -4}, {5, -5}}, again)
	assert.Same(t, &first[0][0], &again[0][0])
}

func TestSampleHistory(t *testing.T) {
	s, err := NewSampleHistory(5)
	require.NoError(t, err)
	assert.Empty(t, s.Ordered(nil))

	s.Write([]int32{1, 2, 3})
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []int32{1, 2, 3}, s.Ordered(nil))

	s.Write([]int32{4, 5, 6, 7})
	assert.Equal(t, 5, s.Len())
	assert.Equal(t, 5, s.Cap())
	assert.Equal(t, []int32{3, 4, 5, 6, 7}, s.Ordered(nil))

	buf := make([]int32, 0, 5)
	out := s.Ordered(buf)
	assert.Equal(t, []int32{3, 4, 5, 6, 7}, out)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Ordered(nil))
}
