// Package boost computes the veCRV boost applied to gauge emissions.
package boost

import (
	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/vault-apy/internal/utils"
)

// CalculateBoost returns working / ((1/maxBoost) * gaugeBalance).
// An empty gauge position earns the maximum boost; an undefined ratio reads as no boost (1).
func CalculateBoost(working, gaugeBalance, maxBoost sdkmath.LegacyDec) sdkmath.LegacyDec {
	if gaugeBalance.IsNil() || !gaugeBalance.IsPositive() {
		return maxBoost
	}
	if working.IsNil() {
		return sdkmath.LegacyOneDec()
	}
	inverse, ok := utils.SafeQuo(sdkmath.LegacyOneDec(), maxBoost)
	if !ok {
		return sdkmath.LegacyOneDec()
	}
	boost, ok := utils.SafeQuo(working, inverse.Mul(gaugeBalance))
	if !ok {
		return sdkmath.LegacyOneDec()
	}
	return boost
}
