// SPDX-License-Identifier: MIT
package audio

// Sample conversions between signed PCM of one bit depth and the unsigned
// converter range of another. Unsigned values are offset binary: midscale
// is 1<<(bits-1).

// ToUnsigned converts a signed sample of fromBits to an unsigned toBits
// value, clamped to [0, 1<<toBits - 1].
func ToUnsigned(v, fromBits, toBits int) uint16 {
	u := shift(v, toBits-fromBits) + 1<<(toBits-1)
	return uint16(max(0, min(1<<toBits-1, u)))
}

// ToSigned converts an unsigned fromBits value to a signed sample of toBits.
func ToSigned(v uint16, fromBits, toBits int) int {
	return shift(int(v)-1<<(fromBits-1), toBits-fromBits)
}

func shift(v, by int) int {
	if by >= 0 {
		return v << by
	}
	return v >> -by
}

// PeakAmplitude returns the largest distance of any sample from mid.
// Branchless: no data-dependent jumps in the loop.
func PeakAmplitude(samples []int32, mid int32) int32 {
	var peak int32
	for _, s := range samples {
		d := s - mid
		mask := d >> 31
		amplitude := (d ^ mask) - mask
		diff := amplitude - peak
		peak += diff &^ (diff >> 31)
	}
	return peak
}
