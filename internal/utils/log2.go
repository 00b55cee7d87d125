package utils

import (
	"fmt"
	"math/bits"
)

// Log2FracBits is the number of fractional bits in the value returned by Log2Fixed.
const Log2FracBits = 32

// Log2Fixed returns log2(x) as an unsigned Q32.32 fixed-point number, truncated toward zero.
// It uses only integer operations, so the result is identical on every platform.
func Log2Fixed(x uint64) (uint64, error) {
	if x == 0 {
		return 0, fmt.Errorf("%w: log2 of zero", ErrMathOverflow)
	}
	intPart := uint64(bits.Len64(x) - 1)

	// m holds the mantissa in [1, 2) with 63 fractional bits.
	m := x << (63 - intPart)
	var frac uint64
	for i := 0; i < Log2FracBits; i++ {
		// Squaring a value in [1, 2) gives [1, 4); hi carries it with 62 fractional bits.
		hi, lo := bits.Mul64(m, m)
		frac <<= 1
		if hi >= 1<<63 {
			frac |= 1
			m = hi
		} else {
			m = hi<<1 | lo>>63
		}
	}
	return intPart<<Log2FracBits | frac, nil
}
