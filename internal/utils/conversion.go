/*
This file contains utility functions for converting lamport amounts and basis points into
display values. Display values never feed back into the engine.
*/

package utils

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// LamportDecimals is the number of decimal places in one unit.
const LamportDecimals = 9

var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrConversionFailed = errors.New("conversion failed")
)

func pow10(precision int) sdkmath.LegacyDec {
	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}
	return factor
}

// LamportsToUnits converts an amount in lamports to whole units with the given precision.
func LamportsToUnits(amount uint64, precision int) (sdkmath.LegacyDec, error) {
	if precision < 0 || precision > 18 {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	dec := sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(amount))
	return dec.Quo(pow10(precision)), nil
}

// UnitsToLamports parses a decimal unit string such as "1.5" into lamports.
func UnitsToLamports(units string, precision int) (uint64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	dec, err := sdkmath.LegacyNewDecFromStr(units)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}
	if dec.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrConversionFailed, units)
	}
	result := dec.Mul(pow10(precision)).TruncateInt()
	if !result.IsUint64() {
		return 0, fmt.Errorf("%w: %s units does not fit in 64 bits", ErrMathOverflow, units)
	}
	return result.Uint64(), nil
}

// FormatUnits renders lamports as a unit string with all decimals, e.g. "1.500000000".
func FormatUnits(amount uint64) string {
	units, err := LamportsToUnits(amount, LamportDecimals)
	if err != nil {
		return fmt.Sprintf("%d", amount)
	}
	return trimDecimals(units, LamportDecimals)
}

// BpsToPercent renders basis points as a percentage string, e.g. 4500 -> "45.00".
func BpsToPercent(bps uint64) string {
	dec := sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(bps)).Quo(sdkmath.LegacyNewDec(100))
	return trimDecimals(dec, 2)
}

// trimDecimals truncates the fixed 18-decimal string form of a LegacyDec.
func trimDecimals(dec sdkmath.LegacyDec, keep int) string {
	s := dec.String()
	return s[:len(s)-(sdkmath.LegacyPrecision-keep)]
}
