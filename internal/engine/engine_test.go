package engine

import (
	"context"
	"math"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/elys-network/vault-apy/internal/blocks"
	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/chain/chaintest"
	"github.com/elys-network/vault-apy/internal/config"
	"github.com/elys-network/vault-apy/internal/overrides"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	head       = uint64(20_000)
	genesis    = int64(1_600_000_000)
	blockTime  = int64(12)
	vaultAddr  = "0x2994529C0652D127b7842094103715ec5299bBed"
	lpToken    = "0x6c3F90f043a72FA612cbac8115EE7e52BDe6E490"
	poolAddr   = "0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7"
	gaugeAddr  = "0xbFcF63294aD7105dEa65aA58F8AE5BE2D9d0952A"
	controller = "0x2F50D538606Fa9EDD2B11E2446BEb18C9D5846bB"
	daiAddr    = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
	hbtcVault  = "0x46AFc2dfBd1ea0c0760CAD8262A5838e803A37e5"
)

type fakePrices map[string]float64

func (p fakePrices) Price(_ context.Context, asset string) (*types.PriceQuote, error) {
	if usd, ok := p[strings.ToLower(asset)]; ok {
		return &types.PriceQuote{USD: usd}, nil
	}
	return nil, nil
}

func (p fakePrices) PriceOr(ctx context.Context, asset string, fallback float64) float64 {
	quote, _ := p.Price(ctx, asset)
	if quote == nil {
		return fallback
	}
	return quote.USD
}

func newEngine(t *testing.T, reader chain.Reader, prices PriceOracle) *Engine {
	t.Helper()
	table, err := overrides.Default()
	require.NoError(t, err)

	e, err := New(Config{
		Reader:    reader,
		Prices:    prices,
		Blocks:    blocks.NewEstimator(chaintest.LinearChain(head, genesis, blockTime), float64(blockTime), nil),
		Overrides: table,
		Params:    config.DefaultEngineParameters,
		Clock:     func() time.Time { return time.Unix(genesis+int64(head)*blockTime, 0) },
	})
	require.NoError(t, err)
	return e
}

func coins(addresses ...string) []byte {
	out := make([]byte, 0, 8*32)
	for i := 0; i < 8; i++ {
		addr := chain.NullAddress
		if i < len(addresses) {
			addr = addresses[i]
		}
		out = append(out, chain.EncodeAddress(addr)...)
	}
	return out
}

// setCurveVault mocks a gauge emitting 0.1 CRV/s with 10% of the weight,
// 1M working supply and a yearn position boosted 1.5x.
func setCurveVault(reader *chaintest.Reader) {
	lp := chain.EncodeAddress(lpToken)
	voter := chain.EncodeAddress(config.YearnVoterAddress)

	reader.SetUint(config.CurveRegistryAddress, "get_virtual_price_from_lp_token(address)", chaintest.Scaled("1"), lp)
	reader.SetAt(head, config.CurveRegistryAddress, "get_virtual_price_from_lp_token(address)",
		chain.EncodeUint256(chaintest.Scaled("1.0001")), lp)
	reader.Set(config.CurveRegistryAddress, "get_underlying_coins(address)", coins(daiAddr), chain.EncodeAddress(poolAddr))

	reader.SetAddress(gaugeAddr, "controller()", controller)
	reader.SetUint(controller, "gauge_relative_weight(address)", chaintest.Scaled("0.1"), chain.EncodeAddress(gaugeAddr))
	reader.SetUint(gaugeAddr, "working_supply()", chaintest.Wei(1_000_000))
	reader.SetUint(gaugeAddr, "inflation_rate()", chaintest.Scaled("0.1"))
	reader.SetUint(gaugeAddr, "working_balances(address)", chaintest.Wei(600_000), voter)
	reader.SetUint(gaugeAddr, "balanceOf(address)", chaintest.Wei(1_000_000), voter)
}

func curveVault(address string) types.Vault {
	keep := int64(1000)
	return types.Vault{
		Address:  address,
		Name:     "curve 3pool yVault",
		Token:    types.Token{Address: lpToken, Symbol: "3Crv", Decimals: 18},
		Type:     types.VaultTypeV2,
		Protocol: types.ProtocolCurve,
		Pool:     poolAddr,
		Gauge:    gaugeAddr,
		Fees: types.FeeSchedule{
			General: types.GeneralFees{PerformanceFee: 2000},
			Special: types.SpecialFees{KeepCrv: &keep},
		},
	}
}

func TestComputeApyMissingIdentity(t *testing.T) {
	e := newEngine(t, chaintest.NewReader(), fakePrices{})

	_, err := e.ComputeApy(context.Background(), types.Vault{Token: types.Token{Address: lpToken}})
	assert.ErrorIs(t, err, ErrMissingIdentity)

	_, err = e.ComputeApy(context.Background(), types.Vault{Address: vaultAddr})
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingReader)
	assert.ErrorIs(t, err, ErrMissingPrices)
	assert.ErrorIs(t, err, ErrMissingBlocks)
}

func TestComputeApyUnsupportedProtocol(t *testing.T) {
	e := newEngine(t, chaintest.NewReader(), fakePrices{})

	vault := curveVault(vaultAddr)
	vault.Protocol = "balancer"
	apy, err := e.ComputeApy(context.Background(), vault)
	require.NoError(t, err)
	assert.Equal(t, types.EmptyApy("balancer", "Unsupported protocol"), apy)
}

func TestCurveApy(t *testing.T) {
	reader := chaintest.NewReader()
	setCurveVault(reader)
	e := newEngine(t, reader, fakePrices{strings.ToLower(config.CRVAddress): 0.5})

	apy, err := e.ComputeApy(context.Background(), curveVault(vaultAddr))
	require.NoError(t, err)

	// 0.1 * 0.1 * 31557600 * 0.4 * 0.5 / 1e6
	baseApr := 0.0631152
	boosted := baseApr * 1.5
	compoundable := boosted * 0.9
	poolApy := math.Pow(1.0001, 365) - 1
	netApr := compoundable * 0.8
	netApy := (math.Pow(netApr/52+1, 52))*(1+poolApy) - 1
	gross := boosted*0.1 + math.Pow(compoundable/52+1, 52) - 1

	assert.Equal(t, "curve", apy.Type)
	assert.True(t, apy.Composite)
	assert.Equal(t, "Pool APY + Boosted CRV APY", apy.Description)
	assert.InDelta(t, baseApr, apy.Data[types.ApyDataBaseApr], 1e-9)
	assert.InDelta(t, 1.5, apy.Data[types.ApyDataCurrentBoost], 1e-9)
	assert.InDelta(t, boosted, apy.Data[types.ApyDataBoostedApr], 1e-9)
	assert.InDelta(t, poolApy, apy.Data[types.ApyDataPoolApy], 1e-9)
	assert.InDelta(t, gross, apy.Data[types.ApyDataGrossFarmedApy], 1e-9)
	assert.InDelta(t, (1+gross)*(1+poolApy)-1, apy.Data[types.ApyDataTotalApy], 1e-9)
	assert.InDelta(t, netApy, apy.Data[types.ApyDataNetApy], 1e-9)
	assert.InDelta(t, netApy, apy.Recommended, 1e-9)
	assert.Zero(t, apy.Data[types.ApyDataTokenRewardsApr])
	assert.InDelta(t, 0.1, apy.Data[types.ApyDataKeepCrv], 1e-12)
	assert.InDelta(t, 0.2, apy.Data[types.ApyDataPerformanceFee], 1e-12)
	assert.Zero(t, apy.Data[types.ApyDataManagementFee])
}

func TestCurveApyResolvesPoolAndGaugeFromRegistry(t *testing.T) {
	reader := chaintest.NewReader()
	setCurveVault(reader)
	reader.SetAddress(config.CurveRegistryAddress, "get_pool_from_lp_token(address)", poolAddr, chain.EncodeAddress(lpToken))
	reader.SetAddress(config.CurveRegistryAddress, "get_gauges(address)", gaugeAddr, chain.EncodeAddress(poolAddr))
	e := newEngine(t, reader, fakePrices{strings.ToLower(config.CRVAddress): 0.5})

	vault := curveVault(vaultAddr)
	vault.Pool = ""
	vault.Gauge = ""
	apy, err := e.ComputeApy(context.Background(), vault)
	require.NoError(t, err)
	assert.InDelta(t, 0.0631152, apy.Data[types.ApyDataBaseApr], 1e-9)
}

func TestCurveApyBTCPoolUsesWBTCPrice(t *testing.T) {
	reader := chaintest.NewReader()
	setCurveVault(reader)
	reader.Set(config.CurveRegistryAddress, "get_underlying_coins(address)",
		coins(config.RenBTCAddress, config.WBTCAddress), chain.EncodeAddress(poolAddr))
	e := newEngine(t, reader, fakePrices{
		strings.ToLower(config.CRVAddress):  0.5,
		strings.ToLower(config.WBTCAddress): 40_000,
	})

	apy, err := e.ComputeApy(context.Background(), curveVault(vaultAddr))
	require.NoError(t, err)
	assert.InDelta(t, 0.0631152/40_000, apy.Data[types.ApyDataBaseApr], 1e-12)
}

func TestCurveApyBoostOverride(t *testing.T) {
	reader := chaintest.NewReader()
	setCurveVault(reader)
	e := newEngine(t, reader, fakePrices{strings.ToLower(config.CRVAddress): 0.5})

	apy, err := e.ComputeApy(context.Background(), curveVault(hbtcVault))
	require.NoError(t, err)
	assert.Equal(t, 1.0, apy.Data[types.ApyDataCurrentBoost])
	assert.InDelta(t, apy.Data[types.ApyDataBaseApr], apy.Data[types.ApyDataBoostedApr], 1e-12)
}

func TestCurveApyWithoutGaugeDegrades(t *testing.T) {
	reader := chaintest.NewReader()
	setCurveVault(reader)
	e := newEngine(t, reader, fakePrices{strings.ToLower(config.CRVAddress): 0.5})

	vault := curveVault(vaultAddr)
	vault.Gauge = ""
	apy, err := e.ComputeApy(context.Background(), vault)
	require.NoError(t, err)

	poolApy := math.Pow(1.0001, 365) - 1
	assert.Zero(t, apy.Data[types.ApyDataBaseApr])
	assert.InDelta(t, config.DefaultEngineParameters.MaxBoost, apy.Data[types.ApyDataCurrentBoost], 1e-12)
	assert.InDelta(t, poolApy, apy.Recommended, 1e-9)
}

func TestCurveApyWithRewardContract(t *testing.T) {
	reader := chaintest.NewReader()
	setCurveVault(reader)
	staking := "0x99ac10631f69c753ddb595d074422a0922d9056b"
	reward := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	reader.SetAddress(gaugeAddr, "reward_contract()", staking)
	reader.SetUint(staking, "periodFinish()", big.NewInt(genesis+int64(head)*blockTime+3600))
	reader.SetAddress(staking, "rewardToken()", reward)
	reader.SetUint(staking, "rewardRate()", chaintest.Scaled("0.01"))
	reader.SetUint(staking, "totalSupply()", chaintest.Wei(1_000_000))
	e := newEngine(t, reader, fakePrices{strings.ToLower(config.CRVAddress): 0.5, reward: 0.5})

	apy, err := e.ComputeApy(context.Background(), curveVault(vaultAddr))
	require.NoError(t, err)
	assert.InDelta(t, 0.157788, apy.Data[types.ApyDataTokenRewardsApr], 1e-9)
}

func TestPricePerShareApy(t *testing.T) {
	for _, tc := range []struct {
		name   string
		typ    types.VaultType
		getter string
	}{
		{name: "v1", typ: types.VaultTypeV1, getter: "getPricePerFullShare()"},
		{name: "v2", typ: types.VaultTypeV2, getter: "pricePerShare()"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			reader := chaintest.NewReader()
			reader.SetUint(vaultAddr, tc.getter, chaintest.Scaled("1"))
			reader.SetAt(head, vaultAddr, tc.getter, chain.EncodeUint256(chaintest.Scaled("1.0002")))
			e := newEngine(t, reader, fakePrices{})

			apy, err := e.ComputeApy(context.Background(), types.Vault{
				Address:  vaultAddr,
				Token:    types.Token{Address: lpToken},
				Type:     tc.typ,
				Protocol: types.ProtocolPricePerShare,
			})
			require.NoError(t, err)

			want := math.Pow(1.0002, 365) - 1
			assert.Equal(t, "pricePerShare", apy.Type)
			assert.False(t, apy.Composite)
			assert.InDelta(t, want, apy.Recommended, 1e-9)
			assert.InDelta(t, want, apy.Data[types.ApyDataOneDaySample], 1e-9)
		})
	}
}

func TestPricePerShareWithoutSampleIsZero(t *testing.T) {
	e := newEngine(t, chaintest.NewReader(), fakePrices{})

	apy, err := e.ComputeApy(context.Background(), types.Vault{
		Address:  vaultAddr,
		Token:    types.Token{Address: lpToken},
		Type:     types.VaultTypeV2,
		Protocol: types.ProtocolPricePerShare,
	})
	require.NoError(t, err)
	assert.Zero(t, apy.Recommended)
	assert.Contains(t, apy.Data, types.ApyDataOneDaySample)
}
