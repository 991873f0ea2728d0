/*

Persistence of computed vaults. Every adapter stores one CachedVault per
normalized vault address and exposes the same batched operations: reads go
out in chunks of 50 keys, writes in chunks of 5 vaults. A failed write chunk
is logged and skipped so one bad batch never loses a whole export cycle.

*/

package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/rs/zerolog"
)

const (
	// GetChunkSize is the number of keys read per round trip.
	GetChunkSize = 50
	// PutChunkSize is the number of vaults written per round trip.
	PutChunkSize = 5
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("vault not found")

// Store persists computed vaults.
type Store interface {
	// BatchGet returns the stored vaults among keys. Unknown keys are absent from the map.
	BatchGet(ctx context.Context, keys []string) (map[string]types.CachedVault, error)
	// BatchPut writes vaults and returns how many were written. The error joins the failed chunks.
	BatchPut(ctx context.Context, vaults []types.CachedVault) (int, error)
	// Scan lists every stored key.
	Scan(ctx context.Context) ([]string, error)
	// Delete removes keys. Unknown keys are ignored.
	Delete(ctx context.Context, keys []string) error
	// NextCycle increments and returns the export cycle counter.
	NextCycle(ctx context.Context) (int64, error)
}

// Get reads a single vault.
func Get(ctx context.Context, s Store, key string) (types.CachedVault, error) {
	key = types.NormalizeAddress(key)
	found, err := s.BatchGet(ctx, []string{key})
	if err != nil {
		return types.CachedVault{}, err
	}
	v, ok := found[key]
	if !ok {
		return types.CachedVault{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.NormalizeAddress(k))
	}
	return out
}

// batchGet runs get over chunks of GetChunkSize keys and merges the results.
func batchGet(ctx context.Context, keys []string, get func(context.Context, []string) (map[string]types.CachedVault, error)) (map[string]types.CachedVault, error) {
	out := make(map[string]types.CachedVault, len(keys))
	for _, part := range chunk(normalizeKeys(keys), GetChunkSize) {
		found, err := get(ctx, part)
		if err != nil {
			return nil, err
		}
		for k, v := range found {
			out[k] = v
		}
	}
	return out, nil
}

// batchPut runs put over chunks of PutChunkSize vaults. Failed chunks are logged and skipped.
func batchPut(ctx context.Context, logger zerolog.Logger, m *metrics.Collector, vaults []types.CachedVault, put func(context.Context, []types.CachedVault) error) (int, error) {
	written := 0
	var errs []error
	for i, part := range chunk(vaults, PutChunkSize) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := put(ctx, part); err != nil {
			logger.Error().Err(err).Int("chunk", i).Int("size", len(part)).Msg("Failed to write vault chunk, skipping")
			m.StoreWrites("failed", len(part))
			errs = append(errs, fmt.Errorf("chunk %d: %w", i, err))
			continue
		}
		m.StoreWrites("ok", len(part))
		written += len(part)
	}
	return written, errors.Join(errs...)
}
