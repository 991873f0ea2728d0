// Package blocks maps wall-clock timestamps to block heights.
package blocks

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/elys-network/vault-apy/internal/cache"
	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/rs/zerolog"
)

// Block timestamps never change, the TTL only bounds memory in shared caches.
const timestampTTL = 7 * 24 * time.Hour

// Estimator finds the block mined at or before a given time.
type Estimator struct {
	source       chain.BlockSource
	avgBlockTime float64
	cache        cache.Cache
	logger       zerolog.Logger
}

// NewEstimator creates an estimator. avgBlockTime seeds the first guess; c may be nil.
func NewEstimator(source chain.BlockSource, avgBlockTime float64, c cache.Cache) *Estimator {
	if avgBlockTime <= 0 {
		avgBlockTime = 12
	}
	return &Estimator{
		source:       source,
		avgBlockTime: avgBlockTime,
		cache:        c,
		logger:       logger.GetForComponent("block_estimator"),
	}
}

// LatestBlock returns the chain head.
func (e *Estimator) LatestBlock(ctx context.Context) (types.Block, error) {
	return e.source.LatestBlock(ctx)
}

// Timestamp returns the timestamp of block number, cached.
func (e *Estimator) Timestamp(ctx context.Context, number uint64) (int64, error) {
	key := "block:" + strconv.FormatUint(number, 10)
	if e.cache != nil {
		if raw, ok, err := e.cache.Get(ctx, key); err == nil && ok {
			if ts, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
				return ts, nil
			}
		}
	}

	b, err := e.source.BlockByNumber(ctx, number)
	if err != nil {
		return 0, err
	}
	if e.cache != nil {
		if err := e.cache.Set(ctx, key, []byte(strconv.FormatInt(b.Timestamp, 10)), timestampTTL); err != nil {
			e.logger.Debug().Err(err).Uint64("block", number).Msg("Failed to cache block timestamp")
		}
	}
	return b.Timestamp, nil
}

// EstimateBlockPrecise returns the largest block whose timestamp is <= target (unix seconds).
// Targets before genesis return 0, targets at or after the head return the head.
func (e *Estimator) EstimateBlockPrecise(ctx context.Context, target int64) (uint64, error) {
	latest, err := e.source.LatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch latest block: %w", err)
	}
	return e.EstimateBlockBefore(ctx, latest, target)
}

// EstimateBlockBefore is EstimateBlockPrecise against an already fetched head.
func (e *Estimator) EstimateBlockBefore(ctx context.Context, latest types.Block, target int64) (uint64, error) {
	if target >= latest.Timestamp {
		return latest.Number, nil
	}
	genesis, err := e.Timestamp(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("fetch genesis block: %w", err)
	}
	if target < genesis || latest.Number == 0 {
		return 0, nil
	}

	// ts(lo) <= target < ts(hi) holds from here on.
	lo, hi := uint64(0), latest.Number

	behind := math.Ceil(float64(latest.Timestamp-target) / e.avgBlockTime)
	guess := uint64(0)
	if behind < float64(latest.Number) {
		guess = latest.Number - uint64(behind)
	}

	if guess > lo && guess < hi {
		ts, err := e.Timestamp(ctx, guess)
		if err != nil {
			return 0, err
		}
		step := uint64(math.Max(1, behind/16))
		if ts <= target {
			lo = guess
			for lo+step < hi {
				probeTs, err := e.Timestamp(ctx, lo+step)
				if err != nil {
					return 0, err
				}
				if probeTs > target {
					hi = lo + step
					break
				}
				lo += step
				step *= 2
			}
		} else {
			hi = guess
			for hi > lo+step {
				probeTs, err := e.Timestamp(ctx, hi-step)
				if err != nil {
					return 0, err
				}
				if probeTs <= target {
					lo = hi - step
					break
				}
				hi -= step
				step *= 2
			}
		}
	}

	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		ts, err := e.Timestamp(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ts <= target {
			lo = mid
		} else {
			hi = mid
		}
	}

	e.logger.Debug().Int64("target", target).Uint64("block", lo).Msg("Estimated block for timestamp")
	return lo, nil
}
