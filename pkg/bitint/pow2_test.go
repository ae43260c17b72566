// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func TestIsPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected bool
	}{
		{-2, false},     // Negative number
		{0, false},      // Zero
		{1, true},       // One
		{128, true},     // FFT window
		{96, false},     // Not power of two
		{1 << 20, true}, // Large power of two
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%t", tt.n, tt.expected), func(t *testing.T) {
			result := IsPowerOfTwo(tt.n)
			if result != tt.expected {
				t.Errorf("IsPowerOfTwo(%d) = %v, expected %v", tt.n, result, tt.expected)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	tests := []struct{ i, n, want int }{
		{0, 128, 0},
		{127, 128, 127},
		{128, 128, 0},
		{-1, 128, 127},
		{5 - 13, 128, 120}, // latest window 5, template length 13
		{-129, 128, 127},
	}
	for _, tt := range tests {
		if got := Wrap(tt.i, tt.n); got != tt.want {
			t.Errorf("Wrap(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestWrapProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 1<<16).Draw(t, "n")
		i := rapid.IntRange(-1<<20, 1<<20).Draw(t, "i")
		w := Wrap(i, n)
		if w < 0 || w >= n {
			t.Fatalf("Wrap(%d, %d) = %d, outside [0, %d)", i, n, w, n)
		}
		if Wrap(w+n, n) != w {
			t.Fatalf("Wrap is not periodic in n")
		}
	})
}

func BenchmarkWrap(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		Wrap(i-5000, 128)
		i++
	}
}
