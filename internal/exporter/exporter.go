// Package exporter periodically computes the yield of every vault and persists the results.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/state"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/elys-network/vault-apy/internal/vaults"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Computer computes the yield of one vault. *engine.Engine implements it.
type Computer interface {
	ComputeApy(ctx context.Context, vault types.Vault) (types.Apy, error)
}

// TvlComputer values the assets of a vault. When the Computer also implements it,
// stored vaults carry their TVL.
type TvlComputer interface {
	ComputeTvl(ctx context.Context, vault types.Vault) *float64
}

// Config holds the dependencies of an Exporter.
type Config struct {
	Source      vaults.Source
	Engine      Computer
	Store       state.Store
	Concurrency int
	Metrics     *metrics.Collector
	Clock       func() time.Time
}

// CycleResult summarizes one export cycle.
type CycleResult struct {
	ID       string        `json:"id"`
	Number   int64         `json:"number"`
	Started  time.Time     `json:"started"`
	Took     time.Duration `json:"took"`
	Vaults   int           `json:"vaults"`
	Failed   int           `json:"failed"`
	Written  int           `json:"written"`
	Deleted  int           `json:"deleted"`
	ErrorMsg string        `json:"error,omitempty"`
}

// Exporter runs export cycles.
type Exporter struct {
	source      vaults.Source
	engine      Computer
	store       state.Store
	concurrency int
	metrics     *metrics.Collector
	now         func() time.Time
	logger      zerolog.Logger

	mu   sync.RWMutex
	last *CycleResult
}

// New validates cfg and creates an exporter.
func New(cfg Config) (*Exporter, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("exporter configuration validation failed: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Exporter{
		source:      cfg.Source,
		engine:      cfg.Engine,
		store:       cfg.Store,
		concurrency: cfg.Concurrency,
		metrics:     cfg.Metrics,
		now:         cfg.Clock,
		logger:      logger.GetForComponent("exporter"),
	}, nil
}

func validateConfig(cfg Config) error {
	var errs []error
	if cfg.Source == nil {
		errs = append(errs, errors.New("vault source cannot be nil"))
	}
	if cfg.Engine == nil {
		errs = append(errs, errors.New("engine cannot be nil"))
	}
	if cfg.Store == nil {
		errs = append(errs, errors.New("store cannot be nil"))
	}
	if cfg.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	return errors.Join(errs...)
}

// RunLoop runs a cycle immediately and then on every tick until ctx is cancelled.
func (e *Exporter) RunLoop(ctx context.Context, interval time.Duration) {
	e.logger.Info().Dur("interval", interval).Msg("Starting export loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Export loop stopped due to context cancellation")
			return
		case <-ticker.C:
			e.runLogged(ctx)
		}
	}
}

func (e *Exporter) runLogged(ctx context.Context) {
	if _, err := e.RunCycle(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Export cycle failed")
	}
}

// RunCycle computes every vault, writes the results and removes vaults no longer listed.
// Vaults whose computation fails are skipped; the error is only returned when
// the vault list or the store cannot be used at all.
func (e *Exporter) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	result := CycleResult{ID: uuid.New().String(), Started: e.now()}
	cycleLogger := e.logger.With().Str("cycle_id", result.ID).Logger()

	number, err := e.store.NextCycle(ctx)
	if err != nil {
		cycleLogger.Warn().Err(err).Msg("Failed to increment cycle number")
	}
	result.Number = number
	cycleLogger.Info().Int64("cycle", number).Msg("--- Starting export cycle ---")

	err = e.runCycle(ctx, cycleLogger, &result)
	result.Took = time.Since(start)
	if err != nil {
		result.ErrorMsg = err.Error()
	}
	e.metrics.ObserveCycle(result.Took)
	e.setLast(result)

	cycleLogger.Info().
		Int("vaults", result.Vaults).
		Int("failed", result.Failed).
		Int("written", result.Written).
		Int("deleted", result.Deleted).
		Dur("took", result.Took).
		Msg("--- Export cycle completed ---")
	return result, err
}

func (e *Exporter) runCycle(ctx context.Context, cycleLogger zerolog.Logger, result *CycleResult) error {
	list, err := e.source.Vaults(ctx)
	if err != nil {
		return fmt.Errorf("failed to list vaults: %w", err)
	}
	result.Vaults = len(list)

	computed := e.computeAll(ctx, cycleLogger, list, result.Started)
	batch := make([]types.CachedVault, 0, len(computed))
	for _, c := range computed {
		if c != nil {
			batch = append(batch, *c)
		}
	}
	result.Failed = len(list) - len(batch)

	written, err := e.store.BatchPut(ctx, batch)
	result.Written = written
	if err != nil {
		cycleLogger.Warn().Err(err).Msg("Some vault chunks were not written")
	}

	deleted, err := e.deleteStale(ctx, list)
	result.Deleted = deleted
	if err != nil {
		return fmt.Errorf("failed to delete stale vaults: %w", err)
	}
	return nil
}

// computeAll computes vaults with bounded parallelism. Failed vaults are nil.
func (e *Exporter) computeAll(ctx context.Context, cycleLogger zerolog.Logger, list []types.Vault, now time.Time) []*types.CachedVault {
	out := make([]*types.CachedVault, len(list))
	tvl, _ := e.engine.(TvlComputer)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, v := range list {
		i, v := i, v
		g.Go(func() error {
			apy, err := e.engine.ComputeApy(gctx, v)
			if err != nil {
				cycleLogger.Error().Err(err).Str("vault", v.Address).Msg("Failed to compute vault, skipping")
				return nil
			}
			cached := types.NewCachedVault(v, &apy, now)
			if tvl != nil {
				cached.TVL = tvl.ComputeTvl(gctx, v)
			}
			out[i] = &cached
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// deleteStale removes stored keys that are not in list.
func (e *Exporter) deleteStale(ctx context.Context, list []types.Vault) (int, error) {
	stored, err := e.store.Scan(ctx)
	if err != nil {
		return 0, err
	}
	current := make(map[string]struct{}, len(list))
	for _, v := range list {
		current[v.Key()] = struct{}{}
	}
	var stale []string
	for _, k := range stored {
		if _, ok := current[k]; !ok {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := e.store.Delete(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (e *Exporter) setLast(r CycleResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = &r
}

// LastCycle returns the result of the most recent cycle.
func (e *Exporter) LastCycle() (CycleResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return CycleResult{}, false
	}
	return *e.last, true
}
