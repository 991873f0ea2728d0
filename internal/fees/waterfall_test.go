package fees

import (
	"math"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/elys-network/vault-apy/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func f(d sdkmath.LegacyDec) float64 {
	return utils.DecToFloat64(d)
}

func TestCompoundingOrder(t *testing.T) {
	b := ComputeApy(Inputs{
		BaseApr:            dec("0.10"),
		Boost:              sdkmath.LegacyOneDec(),
		Fees:               Fractions{KeepCrv: dec("0.1")},
		CompoundingPeriods: 52,
	})

	want := 0.10*0.1 + (math.Pow(0.10*0.9/52+1, 52) - 1)
	assert.InDelta(t, want, f(b.GrossFarmedApy), 1e-9)

	// Compounding the full APR and removing keepCrv afterwards gives a different number.
	wrongOrder := (math.Pow(0.10/52+1, 52) - 1) * 0.9
	assert.Greater(t, math.Abs(wrongOrder-f(b.GrossFarmedApy)), 1e-6)
}

func TestEndToEndNetApy(t *testing.T) {
	schedule := types.FeeSchedule{General: types.GeneralFees{PerformanceFee: 2000}}

	t.Run("emissions only", func(t *testing.T) {
		b := ComputeApy(Inputs{
			BaseApr:            dec("0.05"),
			Boost:              dec("1.5"),
			PoolApy:            sdkmath.LegacyZeroDec(),
			Fees:               FractionsFor(types.VaultTypeV2, schedule, 10000),
			CompoundingPeriods: 52,
		})
		assert.InDelta(t, 0.06, f(b.NetApr), 1e-12)
		assert.InDelta(t, math.Pow(0.06/52+1, 52)-1, f(b.NetFarmedApy), 1e-9)
		assert.InDelta(t, 0.0618, f(b.NetApy), 1e-4)
		assert.True(t, b.Recommended.Equal(b.NetApy))
	})

	t.Run("with reward stream", func(t *testing.T) {
		b := ComputeApy(Inputs{
			BaseApr:            dec("0.05"),
			Boost:              dec("1.5"),
			RewardApr:          dec("0.02"),
			Fees:               FractionsFor(types.VaultTypeV2, schedule, 10000),
			CompoundingPeriods: 52,
		})
		assert.InDelta(t, 0.076, f(b.NetApr), 1e-12)
		assert.InDelta(t, math.Pow(0.076/52+1, 52)-1, f(b.NetApy), 1e-9)
	})
}

func TestPoolApyChainsAsIndependentFactor(t *testing.T) {
	b := ComputeApy(Inputs{
		BaseApr:            dec("0.05"),
		Boost:              sdkmath.LegacyOneDec(),
		PoolApy:            dec("0.02"),
		CompoundingPeriods: 52,
	})
	gross := math.Pow(0.05/52+1, 52) - 1
	assert.InDelta(t, (1+gross)*1.02-1, f(b.TotalApy), 1e-9)
	assert.InDelta(t, (1+gross)*1.02-1, f(b.NetApy), 1e-9)
}

func TestAllZeroInputsAreFinite(t *testing.T) {
	b := ComputeApy(Inputs{CompoundingPeriods: 52})
	require.False(t, b.Recommended.IsNil())
	assert.True(t, b.Recommended.IsZero())
	assert.False(t, b.Degenerate)
}

func TestOverflowZeroesRecommended(t *testing.T) {
	b := ComputeApy(Inputs{
		BaseApr:            sdkmath.LegacyNewDec(1_000_000_000_000),
		Boost:              sdkmath.LegacyOneDec(),
		CompoundingPeriods: 52,
	})
	assert.True(t, b.Degenerate)
	assert.True(t, b.Recommended.IsZero())
}

func TestFractionsFor(t *testing.T) {
	keep := int64(1000)
	schedule := types.FeeSchedule{
		General: types.GeneralFees{PerformanceFee: 2000, ManagementFee: 200},
		Special: types.SpecialFees{KeepCrv: &keep},
	}

	v1 := FractionsFor(types.VaultTypeV1, schedule, 10000)
	assert.True(t, v1.ManagementFee.IsZero())
	assert.True(t, v1.PerformanceFee.Equal(dec("0.2")))
	assert.True(t, v1.KeepCrv.Equal(dec("0.1")))

	v2 := FractionsFor(types.VaultTypeV2, schedule, 10000)
	assert.True(t, v2.ManagementFee.Equal(dec("0.02")))

	none := FractionsFor(types.VaultTypeV2, types.FeeSchedule{}, 10000)
	assert.True(t, none.KeepCrv.IsZero())
}

func TestCompoundPool(t *testing.T) {
	got, ok := CompoundPool(dec("0.0001"), 365)
	require.True(t, ok)
	assert.InDelta(t, math.Pow(1.0001, 365)-1, f(got), 1e-12)

	_, ok = CompoundPool(sdkmath.LegacyDec{}, 365)
	assert.False(t, ok)
}
