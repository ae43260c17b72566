// SPDX-License-Identifier: MIT
package resample

import "trap/internal/sinc"

// ring is the convolution history of one resampler. Its capacity equals the
// filter length. After a push the cursor points at the oldest sample, so a
// convolution that starts at the cursor meets the samples oldest first.
type ring[S sinc.Sample] struct {
	buf    []S
	cursor int
}

func newRing[S sinc.Sample](n int) *ring[S] {
	return &ring[S]{buf: make([]S, n)}
}

func (r *ring[S]) push(v S) {
	r.buf[r.cursor] = v
	r.cursor++
	if r.cursor == len(r.buf) {
		r.cursor = 0
	}
}

func (r *ring[S]) convolve(taps []float64) float64 {
	return sinc.Convolve(taps, r.buf, r.cursor)
}

func (r *ring[S]) reset() {
	clear(r.buf)
	r.cursor = 0
}
