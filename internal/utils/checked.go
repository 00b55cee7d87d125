/*

This file contains the checked integer arithmetic used by the ranking and allocation engine.
Checked operations return an exact result or an error. The saturating variants are named as such.

*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrMathOverflow    = errors.New("math overflow")
	ErrBalanceOverflow = errors.New("balance overflow")
	ErrDivisionByZero  = errors.New("division by zero")
)

// CheckedAdd returns a+b or ErrMathOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrMathOverflow, a, b)
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrMathOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", ErrMathOverflow, a, b)
	}
	return diff, nil
}

// CheckedMul returns a*b or ErrMathOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", ErrMathOverflow, a, b)
	}
	return lo, nil
}

// SaturatingAdd returns a+b, or MaxUint64 when the sum overflows. Only cumulative statistics use it.
func SaturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// SaturatingSub returns a-b, or 0 when b > a.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// MulDiv computes floor(a*b/denom) with a 128-bit intermediate. The result must fit in 64 bits.
func MulDiv(a, b, denom uint64) (uint64, error) {
	if denom == 0 {
		return 0, ErrDivisionByZero
	}
	product := sdkmath.NewIntFromUint64(a).Mul(sdkmath.NewIntFromUint64(b))
	quotient := product.Quo(sdkmath.NewIntFromUint64(denom))
	if !quotient.IsUint64() {
		return 0, fmt.Errorf("%w: %d * %d / %d", ErrMathOverflow, a, b, denom)
	}
	return quotient.Uint64(), nil
}

// SumUint64 adds values with overflow checking.
func SumUint64(values ...uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		var err error
		if total, err = CheckedAdd(total, v); err != nil {
			return 0, err
		}
	}
	return total, nil
}
