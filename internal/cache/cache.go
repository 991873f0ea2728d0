// Package cache holds the short-lived caches shared by the oracle and the block estimator.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/go-redis/redis/v8"
)

// Cache stores opaque values with a TTL. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Memory is an in-process cache backed by ristretto.
type Memory struct {
	cache *ristretto.Cache
}

// NewMemory creates an in-process cache holding up to maxItems entries.
func NewMemory(maxItems int64) (*Memory, error) {
	if maxItems <= 0 {
		maxItems = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &Memory{cache: c}, nil
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	return b, ok, nil
}

// Set implements Cache. A zero TTL keeps the entry until evicted.
// Writes are buffered, the value becomes visible once ristretto applies them.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.cache.SetWithTTL(key, value, 1, ttl)
	return nil
}

// Wait blocks until buffered writes are applied.
func (m *Memory) Wait() {
	m.cache.Wait()
}

// Close stops the cache goroutines.
func (m *Memory) Close() {
	m.cache.Close()
}

// Redis is a cache shared between processes.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. Keys are namespaced by prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
