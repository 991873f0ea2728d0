package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c, err := NewMemory(100)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, ok, err := c.Get(ctx, "price:crv")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "price:crv", []byte("0.5"), time.Minute))
	c.Wait()

	v, ok, err := c.Get(ctx, "price:crv")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("0.5"), v)
}

func TestRedisCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "apy:")
	ctx := context.Background()

	mock.ExpectGet("apy:block:100").RedisNil()
	_, ok, err := c.Get(ctx, "block:100")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSet("apy:block:100", []byte("1600000000"), time.Hour).SetVal("OK")
	require.NoError(t, c.Set(ctx, "block:100", []byte("1600000000"), time.Hour))

	mock.ExpectGet("apy:block:100").SetVal("1600000000")
	v, ok, err := c.Get(ctx, "block:100")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1600000000", string(v))

	mock.ExpectGet("apy:block:101").SetErr(errors.New("connection refused"))
	_, _, err = c.Get(ctx, "block:101")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
