package state

import (
	"context"
	"sort"
	"sync"

	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/rs/zerolog"
)

// MemoryStore keeps vaults in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	vaults  map[string]types.CachedVault
	cycle   int64
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(m *metrics.Collector) *MemoryStore {
	return &MemoryStore{
		vaults:  map[string]types.CachedVault{},
		metrics: m,
		logger:  logger.GetForComponent("memory_store"),
	}
}

func (s *MemoryStore) BatchGet(ctx context.Context, keys []string) (map[string]types.CachedVault, error) {
	return batchGet(ctx, keys, func(_ context.Context, part []string) (map[string]types.CachedVault, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := make(map[string]types.CachedVault, len(part))
		for _, k := range part {
			if v, ok := s.vaults[k]; ok {
				out[k] = v
			}
		}
		return out, nil
	})
}

func (s *MemoryStore) BatchPut(ctx context.Context, vaults []types.CachedVault) (int, error) {
	return batchPut(ctx, s.logger, s.metrics, vaults, func(_ context.Context, part []types.CachedVault) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, v := range part {
			s.vaults[v.Key()] = v
		}
		return nil
	})
}

func (s *MemoryStore) Scan(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.vaults))
	for k := range s.vaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range normalizeKeys(keys) {
		delete(s.vaults, k)
	}
	return nil
}

func (s *MemoryStore) NextCycle(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle++
	return s.cycle, nil
}
