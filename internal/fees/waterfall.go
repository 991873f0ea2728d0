/*

The fee waterfall turns the gross yield sources of a vault into the net APY a
depositor earns. The order of the steps matters: the protocol-retained share
of emissions is removed before compounding, fees are taken from the compounded
yield's APR before it is compounded again, and pool growth is applied last as
an independent factor.

*/

package fees

import (
	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/elys-network/vault-apy/internal/utils"
)

// Fractions are the fee parameters of a vault as decimal fractions.
type Fractions struct {
	PerformanceFee sdkmath.LegacyDec
	ManagementFee  sdkmath.LegacyDec
	KeepCrv        sdkmath.LegacyDec
}

// FractionsFor converts a fee schedule into fractions of denominator.
// v1 vaults charge no management fee.
func FractionsFor(vaultType types.VaultType, schedule types.FeeSchedule, denominator int64) Fractions {
	f := Fractions{
		PerformanceFee: utils.FixedPointFraction(schedule.General.PerformanceFee, denominator),
		ManagementFee:  utils.FixedPointFraction(schedule.General.ManagementFee, denominator),
		KeepCrv:        utils.FixedPointFraction(schedule.KeepCrvOrZero(), denominator),
	}
	if vaultType == types.VaultTypeV1 {
		f.ManagementFee = sdkmath.LegacyZeroDec()
	}
	return f
}

// Inputs are the yield sources of one vault.
type Inputs struct {
	BaseApr   sdkmath.LegacyDec // unboosted emission APR
	Boost     sdkmath.LegacyDec
	RewardApr sdkmath.LegacyDec // extra reward streams, not subject to keepCrv
	PoolApy   sdkmath.LegacyDec // already compounded
	Fees      Fractions

	CompoundingPeriods uint64 // harvests per year
}

// Breakdown holds every intermediate figure of the waterfall.
type Breakdown struct {
	BaseApr         sdkmath.LegacyDec
	Boost           sdkmath.LegacyDec
	BoostedApr      sdkmath.LegacyDec
	RewardApr       sdkmath.LegacyDec
	CompoundableApr sdkmath.LegacyDec
	GrossFarmedApy  sdkmath.LegacyDec
	PoolApy         sdkmath.LegacyDec
	TotalApy        sdkmath.LegacyDec
	NetApr          sdkmath.LegacyDec
	NetFarmedApy    sdkmath.LegacyDec
	NetApy          sdkmath.LegacyDec
	Recommended     sdkmath.LegacyDec

	// Degenerate is set when a compounding step overflowed and was zeroed.
	Degenerate bool
}

// ComputeApy runs the waterfall.
func ComputeApy(in Inputs) Breakdown {
	one := sdkmath.LegacyOneDec()
	baseApr := orZero(in.BaseApr)
	boost := orZero(in.Boost)
	rewardApr := orZero(in.RewardApr)
	poolApy := orZero(in.PoolApy)
	keep := orZero(in.Fees.KeepCrv)
	performance := orZero(in.Fees.PerformanceFee)
	management := orZero(in.Fees.ManagementFee)

	b := Breakdown{BaseApr: baseApr, Boost: boost, RewardApr: rewardApr, PoolApy: poolApy}

	b.BoostedApr = baseApr.Mul(boost)
	b.CompoundableApr = b.BoostedApr.Mul(one.Sub(keep)).Add(rewardApr)

	compounded, ok := Compound(b.CompoundableApr, in.CompoundingPeriods)
	if !ok {
		b.Degenerate = true
	}
	b.GrossFarmedApy = b.BoostedApr.Mul(keep).Add(compounded)
	total, ok := chain(b.GrossFarmedApy, poolApy)
	if !ok {
		b.Degenerate = true
	}
	b.TotalApy = total

	b.NetApr = b.CompoundableApr.Mul(one.Sub(performance)).Sub(management)
	netFarmed, netOk := Compound(b.NetApr, in.CompoundingPeriods)
	b.NetFarmedApy = netFarmed
	netApy, chainOk := chain(netFarmed, poolApy)
	b.NetApy = netApy

	if netOk && chainOk {
		b.Recommended = b.NetApy
	} else {
		b.Degenerate = true
		b.Recommended = sdkmath.LegacyZeroDec()
	}
	return b
}

// Compound returns (apr/periods + 1)^periods - 1. ok is false on overflow, the result is then 0.
// Zero periods means no compounding and returns apr.
func Compound(apr sdkmath.LegacyDec, periods uint64) (sdkmath.LegacyDec, bool) {
	if periods == 0 {
		return apr, true
	}
	perPeriod, ok := utils.SafeQuo(apr, sdkmath.LegacyNewDec(int64(periods)))
	if !ok {
		return sdkmath.LegacyZeroDec(), false
	}
	grown, ok := utils.SafePower(perPeriod.Add(sdkmath.LegacyOneDec()), periods)
	if !ok {
		return sdkmath.LegacyZeroDec(), false
	}
	return grown.Sub(sdkmath.LegacyOneDec()), true
}

// CompoundPool annualizes a simple growth rate measured over one of periods windows per year:
// (1 + windowRate)^periods - 1.
func CompoundPool(windowRate sdkmath.LegacyDec, periods uint64) (sdkmath.LegacyDec, bool) {
	if windowRate.IsNil() {
		return sdkmath.LegacyZeroDec(), false
	}
	grown, ok := utils.SafePower(windowRate.Add(sdkmath.LegacyOneDec()), periods)
	if !ok {
		return sdkmath.LegacyZeroDec(), false
	}
	return grown.Sub(sdkmath.LegacyOneDec()), true
}

// chain combines two independent yields: (1+a)(1+b) - 1. ok is false on overflow.
func chain(a, b sdkmath.LegacyDec) (result sdkmath.LegacyDec, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			result, ok = sdkmath.LegacyZeroDec(), false
		}
	}()
	one := sdkmath.LegacyOneDec()
	return a.Add(one).Mul(b.Add(one)).Sub(one), true
}

func orZero(d sdkmath.LegacyDec) sdkmath.LegacyDec {
	if d.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	return d
}
