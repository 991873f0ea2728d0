// Package poolapr measures the trailing growth of a share price over a sampling window.
package poolapr

import (
	"context"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/config"
	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/elys-network/vault-apy/internal/utils"
	"github.com/rs/zerolog"
)

// BlockEstimator is the part of blocks.Estimator the sampler needs.
type BlockEstimator interface {
	LatestBlock(ctx context.Context) (types.Block, error)
	EstimateBlockBefore(ctx context.Context, latest types.Block, target int64) (uint64, error)
}

// FetchFunc reads a monotonic share price at a block.
type FetchFunc func(ctx context.Context, block *big.Int) (*big.Int, error)

// Sampler compares a share price now and one window ago.
type Sampler struct {
	reader        chain.Reader
	blocks        BlockEstimator
	registry      string
	windowSeconds int64
	metrics       *metrics.Collector
	logger        zerolog.Logger
}

// NewSampler creates a sampler reading virtual prices from the Curve registry.
func NewSampler(reader chain.Reader, blocks BlockEstimator, windowSeconds int64, m *metrics.Collector) *Sampler {
	if windowSeconds <= 0 {
		windowSeconds = 86400
	}
	return &Sampler{
		reader:        reader,
		blocks:        blocks,
		registry:      config.CurveRegistryAddress,
		windowSeconds: windowSeconds,
		metrics:       m,
		logger:        logger.GetForComponent("pool_apr_sampler"),
	}
}

// CalculatePoolApr returns the simple growth rate of the pool virtual price over
// the window, not annualized. ok is false when no rate can be measured.
func (s *Sampler) CalculatePoolApr(ctx context.Context, vault types.Vault) (sdkmath.LegacyDec, bool) {
	registry := chain.NewContract(s.reader, s.registry)
	lpToken := chain.EncodeAddress(vault.Token.Address)
	return s.Sample(ctx, func(ctx context.Context, block *big.Int) (*big.Int, error) {
		return registry.UintAt(ctx, block, "get_virtual_price_from_lp_token(address)", lpToken)
	})
}

// Sample applies the window measurement to any share price reader.
func (s *Sampler) Sample(ctx context.Context, fetch FetchFunc) (sdkmath.LegacyDec, bool) {
	latest, err := s.blocks.LatestBlock(ctx)
	if err != nil {
		s.degraded(err, "failed to fetch latest block")
		return sdkmath.LegacyZeroDec(), false
	}
	past, err := s.blocks.EstimateBlockBefore(ctx, latest, latest.Timestamp-s.windowSeconds)
	if err != nil {
		s.degraded(err, "failed to estimate sample block")
		return sdkmath.LegacyZeroDec(), false
	}
	if past >= latest.Number {
		s.logger.Debug().Uint64("block", latest.Number).Msg("Chain younger than the sampling window")
		return sdkmath.LegacyZeroDec(), false
	}

	now, err := fetch(ctx, new(big.Int).SetUint64(latest.Number))
	if err != nil {
		s.degraded(err, "failed to read current share price")
		return sdkmath.LegacyZeroDec(), false
	}
	then, err := fetch(ctx, new(big.Int).SetUint64(past))
	if err != nil {
		s.degraded(err, "failed to read past share price")
		return sdkmath.LegacyZeroDec(), false
	}

	nowDec := utils.BigIntToDec(now)
	thenDec := utils.BigIntToDec(then)
	rate, ok := utils.SafeQuo(nowDec.Sub(thenDec), thenDec)
	if !ok {
		return sdkmath.LegacyZeroDec(), false
	}
	s.logger.Debug().Uint64("from", past).Uint64("to", latest.Number).Str("rate", rate.String()).Msg("Sampled share price")
	return rate, true
}

func (s *Sampler) degraded(err error, msg string) {
	s.metrics.DegradedRead("pool_sample")
	s.logger.Warn().Err(err).Msg(msg)
}
