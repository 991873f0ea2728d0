package utils

import (
	"math"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaledToDec(t *testing.T) {
	raw, ok := new(big.Int).SetString("1500000000000000000", 10)
	require.True(t, ok)

	d, err := ScaledToDec(raw, 18)
	require.NoError(t, err)
	assert.True(t, d.Equal(sdkmath.LegacyMustNewDecFromStr("1.5")), "got %s", d)

	_, err = ScaledToDec(nil, 18)
	assert.ErrorIs(t, err, ErrAmountNil)

	_, err = ScaledToDec(raw, -1)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
}

func TestSafeQuo(t *testing.T) {
	res, ok := SafeQuo(sdkmath.LegacyNewDec(3), sdkmath.LegacyNewDec(2))
	require.True(t, ok)
	assert.True(t, res.Equal(sdkmath.LegacyMustNewDecFromStr("1.5")))

	res, ok = SafeQuo(sdkmath.LegacyNewDec(3), sdkmath.LegacyZeroDec())
	assert.False(t, ok, "division by zero must be reported")
	assert.True(t, res.IsZero())

	_, ok = SafeQuo(sdkmath.LegacyNewDec(3), sdkmath.LegacyDec{})
	assert.False(t, ok, "nil denominator must be reported")

	assert.True(t, QuoOrZero(sdkmath.LegacyOneDec(), sdkmath.LegacyZeroDec()).IsZero())
}

func TestSafePowerOverflow(t *testing.T) {
	huge := sdkmath.LegacyNewDec(1_000_000_000_000)
	_, ok := SafePower(huge, 64)
	assert.False(t, ok, "overflow must be reported instead of panicking")

	res, ok := SafePower(sdkmath.LegacyNewDec(2), 10)
	require.True(t, ok)
	assert.True(t, res.Equal(sdkmath.LegacyNewDec(1024)))
}

func TestFloatConversions(t *testing.T) {
	d, err := DecFromFloat64(0.25)
	require.NoError(t, err)
	assert.True(t, d.Equal(sdkmath.LegacyMustNewDecFromStr("0.25")))

	_, err = DecFromFloat64(math.NaN())
	assert.ErrorIs(t, err, ErrNotFinite)
	_, err = DecFromFloat64(math.Inf(1))
	assert.ErrorIs(t, err, ErrNotFinite)

	assert.Equal(t, 0.0, DecToFloat64(sdkmath.LegacyDec{}))
	assert.InDelta(t, 0.0618, DecToFloat64(sdkmath.LegacyMustNewDecFromStr("0.0618")), 1e-12)
}

func TestFixedPointFraction(t *testing.T) {
	assert.True(t, FixedPointFraction(2000, 10000).Equal(sdkmath.LegacyMustNewDecFromStr("0.2")))
	assert.True(t, FixedPointFraction(5, 0).IsZero())
}
