package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	redisVaultPrefix = "vault:"
	redisCycleKey    = "cycle"
	redisScanCount   = 100
)

// RedisStore keeps each vault as a JSON string under <prefix>vault:<address>.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewRedisStore wraps an existing client. Keys are namespaced by prefix.
func NewRedisStore(client *redis.Client, prefix string, m *metrics.Collector) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		metrics: m,
		logger:  logger.GetForComponent("redis_store"),
	}
}

func (s *RedisStore) vaultKey(key string) string {
	return s.prefix + redisVaultPrefix + key
}

func (s *RedisStore) BatchGet(ctx context.Context, keys []string) (map[string]types.CachedVault, error) {
	return batchGet(ctx, keys, s.getChunk)
}

func (s *RedisStore) getChunk(ctx context.Context, keys []string) (map[string]types.CachedVault, error) {
	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		redisKeys = append(redisKeys, s.vaultKey(k))
	}
	values, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make(map[string]types.CachedVault, len(keys))
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var v types.CachedVault
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			s.logger.Warn().Err(err).Str("key", keys[i]).Msg("Skipping undecodable vault payload")
			continue
		}
		out[keys[i]] = v
	}
	return out, nil
}

func (s *RedisStore) BatchPut(ctx context.Context, vaults []types.CachedVault) (int, error) {
	return batchPut(ctx, s.logger, s.metrics, vaults, s.putChunk)
}

// putChunk writes one chunk in a single pipeline round trip.
func (s *RedisStore) putChunk(ctx context.Context, vaults []types.CachedVault) error {
	payloads := make([][]byte, len(vaults))
	for i, v := range vaults {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal vault %s: %w", v.Address, err)
		}
		payloads[i] = payload
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, v := range vaults {
			pipe.Set(ctx, s.vaultKey(v.Key()), payloads[i], 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func (s *RedisStore) Scan(ctx context.Context) ([]string, error) {
	prefix := s.vaultKey("")
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", redisScanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *RedisStore) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, 0, len(keys))
	for _, k := range normalizeKeys(keys) {
		redisKeys = append(redisKeys, s.vaultKey(k))
	}
	n, err := s.client.Del(ctx, redisKeys...).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	s.logger.Info().Int64("deleted", n).Msg("Deleted stale vaults")
	return nil
}

func (s *RedisStore) NextCycle(ctx context.Context) (int64, error) {
	n, err := s.client.Incr(ctx, s.prefix+redisCycleKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}
