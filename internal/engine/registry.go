package engine

import (
	"context"
	"math/big"

	"github.com/elys-network/vault-apy/internal/chain"
)

const maxRegistryCoins = 8

// curveRegistry reads pool metadata from the Curve registry.
type curveRegistry struct {
	contract chain.Contract
}

func newCurveRegistry(reader chain.Reader, address string) curveRegistry {
	return curveRegistry{contract: chain.NewContract(reader, address)}
}

func (r curveRegistry) poolFromLPToken(ctx context.Context, lpToken string) (string, error) {
	return r.contract.AddressResult(ctx, "get_pool_from_lp_token(address)", chain.EncodeAddress(lpToken))
}

// firstGauge returns gauges[0] of get_gauges(pool) -> (address[10], int128[10]).
func (r curveRegistry) firstGauge(ctx context.Context, pool string) (string, error) {
	return r.contract.AddressResult(ctx, "get_gauges(address)", chain.EncodeAddress(pool))
}

func (r curveRegistry) virtualPrice(ctx context.Context, lpToken string) (*big.Int, error) {
	return r.contract.Uint(ctx, "get_virtual_price_from_lp_token(address)", chain.EncodeAddress(lpToken))
}

// underlyingCoins returns the non-null entries of get_underlying_coins(pool) -> address[8].
func (r curveRegistry) underlyingCoins(ctx context.Context, pool string) ([]string, error) {
	out, err := r.contract.Raw(ctx, nil, "get_underlying_coins(address)", chain.EncodeAddress(pool))
	if err != nil {
		return nil, err
	}
	coins := make([]string, 0, maxRegistryCoins)
	for i := 0; i < maxRegistryCoins; i++ {
		coin, err := chain.DecodeAddress(out, i)
		if err != nil {
			break
		}
		if chain.IsNullAddress(coin) {
			continue
		}
		coins = append(coins, coin)
	}
	return coins, nil
}
