package blocks

import (
	"context"
	"testing"

	"github.com/elys-network/vault-apy/internal/cache"
	"github.com/elys-network/vault-apy/internal/chain/chaintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const genesis = int64(1_600_000_000)

func TestEstimateBlockPrecise(t *testing.T) {
	// Real block time differs from the configured average to force bracketing.
	fake := chaintest.LinearChain(100_000, genesis, 13)
	e := NewEstimator(fake, 12, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		target int64
		want   uint64
	}{
		{"exact block timestamp", genesis + 50_000*13, 50_000},
		{"between two blocks", genesis + 50_000*13 + 5, 50_000},
		{"one second before a block", genesis + 50_001*13 - 1, 50_000},
		{"genesis", genesis, 0},
		{"before genesis", genesis - 1000, 0},
		{"head", genesis + 100_000*13, 100_000},
		{"after head", genesis + 200_000*13, 100_000},
		{"near head", genesis + 99_999*13 + 1, 99_999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EstimateBlockPrecise(ctx, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimateBlockPreciseIrregularChain(t *testing.T) {
	// Block time grows over the life of the chain.
	fake := &chaintest.Chain{
		Head: 20_000,
		TimestampOf: func(n uint64) int64 {
			return genesis + int64(n)*int64(n)/1000 + int64(n)
		},
	}
	e := NewEstimator(fake, 12, nil)
	ctx := context.Background()

	for _, n := range []uint64{1, 777, 5_000, 12_345, 19_999} {
		got, err := e.EstimateBlockPrecise(ctx, fake.TimestampOf(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

func TestEstimateBlockPreciseIsMonotonic(t *testing.T) {
	fake := chaintest.LinearChain(10_000, genesis, 15)
	e := NewEstimator(fake, 12, nil)
	ctx := context.Background()

	var previous uint64
	for target := genesis - 100; target < genesis+10_000*15+100; target += 997 {
		got, err := e.EstimateBlockPrecise(ctx, target)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, previous, "target %d", target)
		previous = got
	}
}

func TestTimestampsAreCached(t *testing.T) {
	fake := chaintest.LinearChain(10_000, genesis, 12)
	mem, err := cache.NewMemory(1000)
	require.NoError(t, err)
	defer mem.Close()

	e := NewEstimator(fake, 12, mem)
	ctx := context.Background()

	_, err = e.Timestamp(ctx, 42)
	require.NoError(t, err)
	mem.Wait()
	before := fake.Lookups()

	ts, err := e.Timestamp(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, genesis+42*12, ts)
	assert.Equal(t, before, fake.Lookups())
}
