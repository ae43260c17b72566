// SPDX-License-Identifier: MIT

// Package bitint holds the small integer helpers used to size and index the
// trap's fixed-capacity buffers: FFT sizes must be powers of two, and every
// ring cursor wraps with the same modulo rule.
//
// All functions are allocation free and safe to call from the sampling tick.
package bitint

// IsPowerOfTwo reports whether n is a positive power of two.
// A power of two has one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Wrap maps i into [0, n) using the ring-cursor rule (i mod n), including
// for negative i. n must be positive.
func Wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
