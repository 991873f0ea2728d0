package poolapr

import (
	"context"
	"errors"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/vault-apy/internal/blocks"
	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/chain/chaintest"
	"github.com/elys-network/vault-apy/internal/config"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	genesis   = int64(1_600_000_000)
	blockTime = int64(12)
	head      = uint64(100_000)
	lpToken   = "0x6c3F90f043a72FA612cbac8115EE7e52BDe6E490"
)

func newSampler(reader chain.Reader, chainHead uint64) *Sampler {
	fake := chaintest.LinearChain(chainHead, genesis, blockTime)
	return NewSampler(reader, blocks.NewEstimator(fake, float64(blockTime), nil), 86400, nil)
}

func TestCalculatePoolApr(t *testing.T) {
	reader := chaintest.NewReader()
	dayAgo := head - uint64(86400/blockTime)
	reader.SetAt(head, config.CurveRegistryAddress, "get_virtual_price_from_lp_token(address)",
		chain.EncodeUint256(chaintest.Scaled("1.0201")), chain.EncodeAddress(lpToken))
	reader.SetAt(dayAgo, config.CurveRegistryAddress, "get_virtual_price_from_lp_token(address)",
		chain.EncodeUint256(chaintest.Scaled("1.02")), chain.EncodeAddress(lpToken))

	rate, ok := newSampler(reader, head).CalculatePoolApr(context.Background(), types.Vault{Token: types.Token{Address: lpToken}})
	require.True(t, ok)
	assert.True(t, rate.Sub(sdkmath.LegacyMustNewDecFromStr("0.000098039215686275")).Abs().LT(sdkmath.LegacyNewDecWithPrec(1, 15)), "got %s", rate)
}

func TestSampleChainTooYoung(t *testing.T) {
	s := newSampler(chaintest.NewReader(), 10)
	_, ok := s.Sample(context.Background(), func(context.Context, *big.Int) (*big.Int, error) {
		return big.NewInt(1), nil
	})
	assert.False(t, ok)
}

func TestSampleMissingOrZeroSample(t *testing.T) {
	s := newSampler(chaintest.NewReader(), head)
	ctx := context.Background()

	_, ok := s.Sample(ctx, func(_ context.Context, block *big.Int) (*big.Int, error) {
		if block.Uint64() == head {
			return big.NewInt(100), nil
		}
		return nil, errors.New("missing trie node")
	})
	assert.False(t, ok, "a failed past read has no rate")

	_, ok = s.Sample(ctx, func(_ context.Context, block *big.Int) (*big.Int, error) {
		if block.Uint64() == head {
			return big.NewInt(100), nil
		}
		return big.NewInt(0), nil
	})
	assert.False(t, ok, "a zero past sample has no rate")
}
