package resolver

import (
	"context"

	"github.com/elys-network/vault-apy/internal/types"
	"github.com/elys-network/vault-apy/internal/vaults"
	"golang.org/x/sync/errgroup"
)

// refreshConcurrency bounds the vaults refreshed at once.
const refreshConcurrency = 4

// Source wraps a vaults.Source and refreshes every vault it returns.
type Source struct {
	inner    vaults.Source
	resolver *Resolver
}

// NewSource returns inner with on-chain refresh applied.
func NewSource(inner vaults.Source, r *Resolver) *Source {
	return &Source{inner: inner, resolver: r}
}

func (s *Source) Vaults(ctx context.Context) ([]types.Vault, error) {
	all, err := s.inner.Vaults(ctx)
	if err != nil {
		return nil, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for i, v := range all {
		i, v := i, v
		g.Go(func() error {
			all[i] = s.resolver.Refresh(gctx, v)
			return nil
		})
	}
	_ = g.Wait()
	return all, nil
}

func (s *Source) Vault(ctx context.Context, address string) (types.Vault, error) {
	v, err := s.inner.Vault(ctx, address)
	if err != nil {
		return types.Vault{}, err
	}
	return s.resolver.Refresh(ctx, v), nil
}
