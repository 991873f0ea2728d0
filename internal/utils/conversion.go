/*
This file contains the decimal arithmetic layer: conversions between on-chain
fixed-point integers, SDK decimals and float64, plus division and power helpers
that report degeneracy instead of panicking.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// maxPrecision is the number of fractional digits LegacyDec carries.
const maxPrecision = 18

// ScaleFactor returns 10^decimals as a decimal.
func ScaleFactor(decimals int) (sdkmath.LegacyDec, error) {
	if decimals < 0 || decimals > 36 {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %d (must be between 0 and 36)", ErrInvalidPrecision, decimals)
	}
	return sdkmath.LegacyNewDec(10).Power(uint64(decimals)), nil
}

// BigIntToDec converts an on-chain integer to a decimal without scaling.
// A nil input is treated as zero.
func BigIntToDec(amount *big.Int) sdkmath.LegacyDec {
	if amount == nil {
		return sdkmath.LegacyZeroDec()
	}
	return sdkmath.LegacyNewDecFromBigInt(amount)
}

// ScaledToDec converts an on-chain fixed-point integer (e.g. 1e18 = 1.0) to a decimal.
func ScaledToDec(amount *big.Int, decimals int) (sdkmath.LegacyDec, error) {
	if amount == nil {
		return sdkmath.LegacyZeroDec(), ErrAmountNil
	}
	factor, err := ScaleFactor(decimals)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	result, ok := SafeQuo(sdkmath.LegacyNewDecFromBigInt(amount), factor)
	if !ok {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: cannot scale %s by 1e%d", ErrConversionFailed, amount, decimals)
	}
	return result, nil
}

// ScaledToDecOrZero is ScaledToDec for callers that degrade failures to zero.
func ScaledToDecOrZero(amount *big.Int, decimals int) sdkmath.LegacyDec {
	d, err := ScaledToDec(amount, decimals)
	if err != nil {
		return sdkmath.LegacyZeroDec()
	}
	return d
}

// SafeQuo divides num by den. ok is false when the division is undefined
// (zero or nil denominator) or overflows the decimal range.
func SafeQuo(num, den sdkmath.LegacyDec) (result sdkmath.LegacyDec, ok bool) {
	if num.IsNil() || den.IsNil() || den.IsZero() {
		return sdkmath.LegacyZeroDec(), false
	}
	defer func() {
		if r := recover(); r != nil {
			result, ok = sdkmath.LegacyZeroDec(), false
		}
	}()
	return num.Quo(den), true
}

// QuoOrZero divides and returns zero for an undefined result.
func QuoOrZero(num, den sdkmath.LegacyDec) sdkmath.LegacyDec {
	result, _ := SafeQuo(num, den)
	return result
}

// SafePower raises base to n. ok is false on overflow.
func SafePower(base sdkmath.LegacyDec, n uint64) (result sdkmath.LegacyDec, ok bool) {
	if base.IsNil() {
		return sdkmath.LegacyZeroDec(), false
	}
	defer func() {
		if r := recover(); r != nil {
			result, ok = sdkmath.LegacyZeroDec(), false
		}
	}()
	return base.Power(n), true
}

// DecFromFloat64 converts a float64 to a decimal going through its decimal string
// representation to avoid binary floating point artifacts.
func DecFromFloat64(value float64) (sdkmath.LegacyDec, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: value is %f", ErrNotFinite, value)
	}
	str := strconv.FormatFloat(value, 'f', maxPrecision, 64)
	dec, err := sdkmath.LegacyNewDecFromStr(str)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}
	return dec, nil
}

// MustDecFromFloat64 is DecFromFloat64 for constants known to be finite.
func MustDecFromFloat64(value float64) sdkmath.LegacyDec {
	dec, err := DecFromFloat64(value)
	if err != nil {
		panic(err)
	}
	return dec
}

// DecFromFloat64OrZero converts and maps non-finite input to zero.
func DecFromFloat64OrZero(value float64) sdkmath.LegacyDec {
	dec, err := DecFromFloat64(value)
	if err != nil {
		return sdkmath.LegacyZeroDec()
	}
	return dec
}

// DecToFloat64 exports a decimal as float64. Nil, unparsable or non-finite
// values become 0 so callers can never leak NaN into a result.
func DecToFloat64(value sdkmath.LegacyDec) float64 {
	if value.IsNil() {
		return 0
	}
	f, err := value.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// FixedPointFraction converts a fixed-point integer (e.g. a fee of 2000 over a
// denominator of 10000) into a decimal fraction.
func FixedPointFraction(value, denominator int64) sdkmath.LegacyDec {
	return QuoOrZero(sdkmath.LegacyNewDec(value), sdkmath.LegacyNewDec(denominator))
}
