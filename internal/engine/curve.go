package engine

import (
	"context"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/vault-apy/internal/boost"
	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/config"
	"github.com/elys-network/vault-apy/internal/fees"
	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/overrides"
	"github.com/elys-network/vault-apy/internal/poolapr"
	"github.com/elys-network/vault-apy/internal/rewards"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/elys-network/vault-apy/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	curveApyType        = "curve"
	curveApyDescription = "Pool APY + Boosted CRV APY"
)

// curveCalculator prices Curve LP vaults whose deposits are staked in a gauge by the yearn voter.
type curveCalculator struct {
	reader     chain.Reader
	prices     PriceOracle
	registry   curveRegistry
	sampler    *poolapr.Sampler
	accountant *rewards.Accountant
	overrides  *overrides.Table
	params     types.EngineParameters
	metrics    *metrics.Collector
	logger     zerolog.Logger
}

func newCurveCalculator(cfg Config, sampler *poolapr.Sampler, accountant *rewards.Accountant) *curveCalculator {
	return &curveCalculator{
		reader:     cfg.Reader,
		prices:     cfg.Prices,
		registry:   newCurveRegistry(cfg.Reader, config.CurveRegistryAddress),
		sampler:    sampler,
		accountant: accountant,
		overrides:  cfg.Overrides,
		params:     cfg.Params,
		metrics:    cfg.Metrics,
		logger:     logger.GetForComponent("curve_calculator"),
	}
}

func (c *curveCalculator) Protocol() types.Protocol {
	return types.ProtocolCurve
}

// gaugeState holds the reads of one computation. Every field defaults to zero.
type gaugeState struct {
	inflationRate  sdkmath.LegacyDec
	relativeWeight sdkmath.LegacyDec
	workingSupply  sdkmath.LegacyDec
	virtualPrice   sdkmath.LegacyDec
	workingBalance sdkmath.LegacyDec
	gaugeBalance   sdkmath.LegacyDec
	rewardContract string
	crvPrice       float64
	basePrice      float64
	poolWindowRate sdkmath.LegacyDec
	poolSampled    bool
}

func (c *curveCalculator) Calculate(ctx context.Context, vault types.Vault) types.Apy {
	lpToken := vault.Token.Address

	pool := vault.Pool
	if pool == "" {
		resolved, err := c.registry.poolFromLPToken(ctx, lpToken)
		if err != nil {
			c.degraded(err, vault, "pool", "Failed to resolve pool from registry")
		} else {
			pool = resolved
		}
	}

	gauge := vault.Gauge
	if gauge == "" && !chain.IsNullAddress(pool) {
		resolved, err := c.registry.firstGauge(ctx, pool)
		if err != nil {
			c.degraded(err, vault, "gauge", "Failed to resolve gauge from registry")
		} else {
			gauge = resolved
		}
	}
	gauge = c.overrides.Gauge(vault.Address, gauge)

	s := c.readState(ctx, vault, pool, gauge)

	baseApr := c.baseApr(s)

	computedBoost := boost.CalculateBoost(s.workingBalance, s.gaugeBalance, utils.MustDecFromFloat64(c.params.MaxBoost))
	currentBoost := c.overrides.Boost(vault.Address, computedBoost)

	rewardApr := sdkmath.LegacyZeroDec()
	if !chain.IsNullAddress(s.rewardContract) {
		rewardApr = c.accountant.CalculateRewardsApr(ctx, s.rewardContract, s.virtualPrice, s.basePrice)
	}

	poolApy := sdkmath.LegacyZeroDec()
	if s.poolSampled {
		if compounded, ok := fees.CompoundPool(s.poolWindowRate, c.params.PoolCompoundingPeriodsPerYear); ok {
			poolApy = compounded
		}
	}
	poolApy = c.overrides.PoolApy(vault.Address, poolApy)

	fractions := fees.FractionsFor(vault.Type, vault.Fees, c.params.FeeDenominator)
	b := fees.ComputeApy(fees.Inputs{
		BaseApr:            baseApr,
		Boost:              currentBoost,
		RewardApr:          rewardApr,
		PoolApy:            poolApy,
		Fees:               fractions,
		CompoundingPeriods: c.params.CompoundingPeriodsPerYear,
	})
	if b.Degenerate {
		c.logger.Warn().Str("vault", vault.Address).Msg("Yield overflowed during compounding, reporting 0")
	}

	return types.Apy{
		Recommended: utils.DecToFloat64(b.Recommended),
		Type:        curveApyType,
		Composite:   true,
		Description: curveApyDescription,
		Data: map[string]float64{
			types.ApyDataCurrentBoost:    utils.DecToFloat64(b.Boost),
			types.ApyDataTotalApy:        utils.DecToFloat64(b.TotalApy),
			types.ApyDataPoolApy:         utils.DecToFloat64(b.PoolApy),
			types.ApyDataBoostedApr:      utils.DecToFloat64(b.BoostedApr),
			types.ApyDataBaseApr:         utils.DecToFloat64(b.BaseApr),
			types.ApyDataNetApy:          utils.DecToFloat64(b.NetApy),
			types.ApyDataTokenRewardsApr: utils.DecToFloat64(b.RewardApr),
			types.ApyDataGrossFarmedApy:  utils.DecToFloat64(b.GrossFarmedApy),
			types.ApyDataKeepCrv:         utils.DecToFloat64(fractions.KeepCrv),
			types.ApyDataPerformanceFee:  utils.DecToFloat64(fractions.PerformanceFee),
			types.ApyDataManagementFee:   utils.DecToFloat64(fractions.ManagementFee),
		},
	}
}

// readState performs the independent reads concurrently. A failed read leaves its zero value.
func (c *curveCalculator) readState(ctx context.Context, vault types.Vault, pool, gauge string) gaugeState {
	s := gaugeState{
		inflationRate:  sdkmath.LegacyZeroDec(),
		relativeWeight: sdkmath.LegacyZeroDec(),
		workingSupply:  sdkmath.LegacyZeroDec(),
		virtualPrice:   sdkmath.LegacyZeroDec(),
		workingBalance: sdkmath.LegacyZeroDec(),
		gaugeBalance:   sdkmath.LegacyZeroDec(),
		poolWindowRate: sdkmath.LegacyZeroDec(),
	}
	decimals := c.params.TokenDecimals
	hasGauge := !chain.IsNullAddress(gauge)
	gaugeContract := chain.NewContract(c.reader, gauge)
	voter := chain.EncodeAddress(config.YearnVoterAddress)

	readScaled := func(ctx context.Context, dst *sdkmath.LegacyDec, source string, read func(context.Context) (*big.Int, error)) {
		v, err := read(ctx)
		if err != nil {
			c.degraded(err, vault, source, "Read failed, using 0")
			return
		}
		*dst = utils.ScaledToDecOrZero(v, decimals)
	}

	g, gctx := errgroup.WithContext(ctx)
	if hasGauge {
		g.Go(func() error {
			controller, err := gaugeContract.AddressResult(gctx, "controller()")
			if err != nil {
				c.degraded(err, vault, "gauge_controller", "Failed to read gauge controller")
				return nil
			}
			readScaled(gctx, &s.relativeWeight, "relative_weight", func(ctx context.Context) (*big.Int, error) {
				return chain.NewContract(c.reader, controller).Uint(ctx, "gauge_relative_weight(address)", chain.EncodeAddress(gauge))
			})
			return nil
		})
		g.Go(func() error {
			readScaled(gctx, &s.workingSupply, "working_supply", func(ctx context.Context) (*big.Int, error) {
				return gaugeContract.Uint(ctx, "working_supply()")
			})
			return nil
		})
		g.Go(func() error {
			readScaled(gctx, &s.inflationRate, "inflation_rate", func(ctx context.Context) (*big.Int, error) {
				return gaugeContract.Uint(ctx, "inflation_rate()")
			})
			return nil
		})
		g.Go(func() error {
			readScaled(gctx, &s.workingBalance, "working_balance", func(ctx context.Context) (*big.Int, error) {
				return gaugeContract.Uint(ctx, "working_balances(address)", voter)
			})
			return nil
		})
		g.Go(func() error {
			readScaled(gctx, &s.gaugeBalance, "gauge_balance", func(ctx context.Context) (*big.Int, error) {
				return gaugeContract.Uint(ctx, "balanceOf(address)", voter)
			})
			return nil
		})
		g.Go(func() error {
			// Gauges without extra rewards do not implement reward_contract().
			if addr, err := gaugeContract.AddressResult(gctx, "reward_contract()"); err == nil {
				s.rewardContract = addr
			}
			return nil
		})
	}
	g.Go(func() error {
		readScaled(gctx, &s.virtualPrice, "virtual_price", func(ctx context.Context) (*big.Int, error) {
			return c.registry.virtualPrice(ctx, vault.Token.Address)
		})
		return nil
	})
	g.Go(func() error {
		s.basePrice = c.basePrice(gctx, vault, pool)
		return nil
	})
	g.Go(func() error {
		s.crvPrice = c.prices.PriceOr(gctx, config.CRVAddress, 0)
		return nil
	})
	g.Go(func() error {
		s.poolWindowRate, s.poolSampled = c.sampler.CalculatePoolApr(gctx, vault)
		return nil
	})
	_ = g.Wait()

	if !hasGauge {
		c.logger.Warn().Str("vault", vault.Address).Msg("No gauge for vault, emissions count as 0")
	}
	return s
}

// baseApr is the unboosted CRV emission yield of one dollar deposited:
// inflationRate * relativeWeight * secondsPerYear / workingSupply * (1/maxBoost) / virtualPrice * crvPrice / basePrice.
func (c *curveCalculator) baseApr(s gaugeState) sdkmath.LegacyDec {
	inverseMaxBoost, ok := utils.SafeQuo(sdkmath.LegacyOneDec(), utils.MustDecFromFloat64(c.params.MaxBoost))
	if !ok {
		return sdkmath.LegacyZeroDec()
	}
	numerator := s.inflationRate.
		Mul(s.relativeWeight).
		Mul(sdkmath.LegacyNewDec(c.params.SecondsPerYear)).
		Mul(inverseMaxBoost).
		Mul(utils.DecFromFloat64OrZero(s.crvPrice))
	denominator := s.workingSupply.
		Mul(s.virtualPrice).
		Mul(utils.DecFromFloat64OrZero(s.basePrice))
	return utils.QuoOrZero(numerator, denominator)
}

// basePrice returns the USD price of the asset the pool is denominated in.
// The first BTC-like or ETH-like coin prices the pool as WBTC or WETH;
// otherwise the first coin is used, assumed to be a dollar stable when unpriced.
func (c *curveCalculator) basePrice(ctx context.Context, vault types.Vault, pool string) float64 {
	var coins []string
	if !chain.IsNullAddress(pool) {
		var err error
		coins, err = c.registry.underlyingCoins(ctx, pool)
		if err != nil {
			c.degraded(err, vault, "underlying_coins", "Failed to read underlying coins")
		}
	}

	for _, coin := range coins {
		if config.IsBTCLike(coin) {
			return c.prices.PriceOr(ctx, config.WBTCAddress, 0)
		}
		if config.IsETHLike(coin) {
			return c.prices.PriceOr(ctx, config.WETHAddress, 0)
		}
	}
	if len(coins) == 0 {
		return 1
	}
	return c.prices.PriceOr(ctx, coins[0], 1)
}

func (c *curveCalculator) degraded(err error, vault types.Vault, source, msg string) {
	c.metrics.DegradedRead(source)
	c.logger.Warn().Err(err).Str("vault", vault.Address).Str("source", source).Msg(msg)
}
