/*

The aggregator is the single entry point for prices. It resolves aliases,
serves cached quotes and falls back to the USD source. It never invents a
price: an unknown asset is reported as absent and callers decide the fallback.

*/

package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/vault-apy/internal/cache"
	"github.com/elys-network/vault-apy/internal/config"
	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// fetchTimeout bounds one shared price request, which is detached from the
// cancellation of the caller that started it.
const fetchTimeout = 15 * time.Second

// Config wires an Aggregator.
type Config struct {
	Source   USDSource
	Quoter   Quoter            // optional, required for RouterPrice
	Cache    cache.Cache       // optional
	CacheTTL time.Duration     // TTL of cached USD quotes
	Aliases  map[string]string // lowercase asset -> lowercase asset carrying its price
	Metrics  *metrics.Collector
}

// Aggregator is the price oracle used by the engine.
type Aggregator struct {
	source   USDSource
	quoter   Quoter
	cache    cache.Cache
	cacheTTL time.Duration
	aliases  map[string]string
	metrics  *metrics.Collector
	group    singleflight.Group
	logger   zerolog.Logger
}

// NewAggregator creates an aggregator. Aliases default to config.PriceAliases.
func NewAggregator(cfg Config) *Aggregator {
	aliases := cfg.Aliases
	if aliases == nil {
		aliases = config.PriceAliases
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Aggregator{
		source:   cfg.Source,
		quoter:   cfg.Quoter,
		cache:    cfg.Cache,
		cacheTTL: ttl,
		aliases:  aliases,
		metrics:  cfg.Metrics,
		logger:   logger.GetForComponent("price_oracle"),
	}
}

// Aliased returns the asset whose price stands in for asset.
func (a *Aggregator) Aliased(asset string) string {
	key := strings.ToLower(asset)
	if alias, ok := a.aliases[key]; ok {
		return alias
	}
	return key
}

// Price returns the USD price of asset. An unknown asset yields (nil, nil);
// an error means the price service could not be reached.
func (a *Aggregator) Price(ctx context.Context, asset string) (*types.PriceQuote, error) {
	key := a.Aliased(asset)
	cacheKey := "price:" + key

	if a.cache != nil {
		if raw, ok, err := a.cache.Get(ctx, cacheKey); err == nil && ok {
			if usd, err := strconv.ParseFloat(string(raw), 64); err == nil {
				a.metrics.OracleRequest("hit")
				return &types.PriceQuote{USD: usd}, nil
			}
		}
	}

	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		prices, err := a.source.TokenPrices(fctx, []string{key})
		if err != nil {
			return nil, err
		}
		usd, ok := prices[key]
		if !ok {
			return nil, nil
		}
		if a.cache != nil {
			if err := a.cache.Set(fctx, cacheKey, []byte(strconv.FormatFloat(usd, 'g', -1, 64)), a.cacheTTL); err != nil {
				a.logger.Debug().Err(err).Str("asset", key).Msg("Failed to cache price")
			}
		}
		return &types.PriceQuote{USD: usd}, nil
	})
	if err != nil {
		a.metrics.OracleRequest("error")
		return nil, fmt.Errorf("price of %s: %w", key, err)
	}
	quote, _ := v.(*types.PriceQuote)
	if quote == nil {
		a.metrics.OracleRequest("missing")
		return nil, nil
	}
	a.metrics.OracleRequest("fetched")
	return quote, nil
}

// PriceOr returns the USD price of asset or fallback when it is unknown or unreachable.
func (a *Aggregator) PriceOr(ctx context.Context, asset string, fallback float64) float64 {
	quote, err := a.Price(ctx, asset)
	if err != nil {
		a.logger.Warn().Err(err).Str("asset", asset).Float64("fallback", fallback).Msg("Price lookup failed, using fallback")
		a.metrics.DegradedRead("price")
		return fallback
	}
	if quote == nil {
		a.logger.Debug().Str("asset", asset).Float64("fallback", fallback).Msg("No price for asset, using fallback")
		return fallback
	}
	return quote.USD
}

// RouterPrice returns the price of start denominated in end, scaled by the decimals of end.
// USDC priced in USDC is answered locally.
func (a *Aggregator) RouterPrice(ctx context.Context, start, end string) (sdkmath.Int, error) {
	start = a.Aliased(start)
	end = a.Aliased(end)
	usdc := strings.ToLower(config.USDCAddress)
	if start == end && end == usdc {
		return sdkmath.NewIntWithDecimal(1, config.USDCDecimals), nil
	}
	if a.quoter == nil {
		return sdkmath.ZeroInt(), fmt.Errorf("no router configured to price %s in %s", start, end)
	}
	raw, err := a.quoter.GetPriceFromRouter(ctx, start, end)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("router price of %s in %s: %w", start, end, err)
	}
	if raw == nil {
		raw = new(big.Int)
	}
	return sdkmath.NewIntFromBigInt(raw), nil
}
