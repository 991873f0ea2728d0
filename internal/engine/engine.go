// Package engine computes the yield of a vault by composing prices, block
// sampling, reward accounting, boost and the fee waterfall.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/overrides"
	"github.com/elys-network/vault-apy/internal/poolapr"
	"github.com/elys-network/vault-apy/internal/rewards"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/rs/zerolog"
)

var (
	// ErrMissingIdentity is the only fatal input error: without a vault or token address nothing can be read.
	ErrMissingIdentity = errors.New("vault address or token address is missing")

	ErrMissingReader = errors.New("engine: chain reader is required")
	ErrMissingPrices = errors.New("engine: price oracle is required")
	ErrMissingBlocks = errors.New("engine: block estimator is required")
)

// PriceOracle is the part of oracle.Aggregator the engine needs.
type PriceOracle interface {
	Price(ctx context.Context, asset string) (*types.PriceQuote, error)
	PriceOr(ctx context.Context, asset string, fallback float64) float64
}

// Calculator computes the yield of vaults of one protocol.
type Calculator interface {
	Protocol() types.Protocol
	Calculate(ctx context.Context, vault types.Vault) types.Apy
}

// Config wires an Engine.
type Config struct {
	Reader    chain.Reader
	Prices    PriceOracle
	Blocks    poolapr.BlockEstimator
	Overrides *overrides.Table
	Router    RouterPricer // optional, enables ComputeTvl
	Params    types.EngineParameters
	Metrics   *metrics.Collector
	Clock     func() time.Time // defaults to time.Now
}

// Engine dispatches vaults to their protocol calculator.
type Engine struct {
	calculators map[types.Protocol]Calculator
	reader      chain.Reader
	router      RouterPricer
	metrics     *metrics.Collector
	logger      zerolog.Logger
}

// New creates an engine with the curve and pricePerShare calculators.
func New(cfg Config) (*Engine, error) {
	var errs []error
	if cfg.Reader == nil {
		errs = append(errs, ErrMissingReader)
	}
	if cfg.Prices == nil {
		errs = append(errs, ErrMissingPrices)
	}
	if cfg.Blocks == nil {
		errs = append(errs, ErrMissingBlocks)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	sampler := poolapr.NewSampler(cfg.Reader, cfg.Blocks, cfg.Params.SamplingWindowSeconds, cfg.Metrics)
	accountant := rewards.NewAccountant(cfg.Reader, cfg.Prices, cfg.Params, cfg.Metrics).WithClock(cfg.Clock)

	e := &Engine{
		calculators: map[types.Protocol]Calculator{},
		reader:      cfg.Reader,
		router:      cfg.Router,
		metrics:     cfg.Metrics,
		logger:      logger.GetForComponent("yield_engine"),
	}
	e.Register(newCurveCalculator(cfg, sampler, accountant))
	e.Register(newPricePerShareCalculator(cfg, sampler))
	return e, nil
}

// Register adds or replaces the calculator of a protocol.
func (e *Engine) Register(c Calculator) {
	e.calculators[c.Protocol()] = c
}

// ComputeApy returns the yield of vault. Missing data degrades the result;
// only a vault without identity is an error.
func (e *Engine) ComputeApy(ctx context.Context, vault types.Vault) (types.Apy, error) {
	if vault.Address == "" || vault.Token.Address == "" {
		return types.Apy{}, fmt.Errorf("%w: vault %q token %q", ErrMissingIdentity, vault.Address, vault.Token.Address)
	}

	protocol := vault.Protocol
	if protocol == "" {
		protocol = types.ProtocolCurve
	}
	calculator, ok := e.calculators[protocol]
	if !ok {
		e.logger.Warn().Str("vault", vault.Address).Str("protocol", string(protocol)).Msg("No calculator for protocol")
		return types.EmptyApy(string(protocol), "Unsupported protocol"), nil
	}

	start := time.Now()
	apy := calculator.Calculate(ctx, vault)
	e.metrics.ObserveComputation(string(protocol), nil, time.Since(start))
	e.metrics.SetRecommendedApy(vault.Key(), apy.Recommended)

	e.logger.Info().
		Str("vault", vault.Address).
		Str("protocol", string(protocol)).
		Float64("recommended", apy.Recommended).
		Dur("took", time.Since(start)).
		Msg("Computed vault APY")
	return apy, nil
}
