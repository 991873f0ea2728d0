/*

The resolver refreshes vault snapshots from chain: the withdrawal queue of v2
vaults, strategy names and the fee schedule. Every read is optional. A failed
read falls back to the documented default and never fails the vault.

*/

package resolver

import (
	"context"
	"math/big"
	"strings"

	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/overrides"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxWithdrawalQueue is the length of the fixed withdrawal queue array of v2 vaults.
const maxWithdrawalQueue = 20

// SpecialFeesMode selects how ResolveSpecialFees decides to read keepCRV.
type SpecialFeesMode string

const (
	// ModeSource keeps the historical rule: keepCRV is read only when the vault has no strategy.
	ModeSource SpecialFeesMode = "source"
	// ModeSingle reads keepCRV from the only strategy of single-strategy vaults.
	ModeSingle SpecialFeesMode = "single"
)

// Resolver reads vault structure and fees on-chain.
type Resolver struct {
	reader    chain.Reader
	overrides *overrides.Table
	mode      SpecialFeesMode
	logger    zerolog.Logger
}

// New creates a resolver. An unknown mode falls back to ModeSource.
func New(reader chain.Reader, table *overrides.Table, mode SpecialFeesMode) *Resolver {
	l := logger.GetForComponent("vault_resolver")
	if mode != ModeSource && mode != ModeSingle {
		l.Warn().Str("mode", string(mode)).Msg("Unknown special fees mode, using source")
		mode = ModeSource
	}
	return &Resolver{reader: reader, overrides: table, mode: mode, logger: l}
}

// Refresh returns vault with its on-chain state. v2 vaults get their strategies,
// fees, apiVersion and emergencyShutdown re-read; v1 vaults only their special fees.
func (r *Resolver) Refresh(ctx context.Context, vault types.Vault) types.Vault {
	if vault.Type == types.VaultTypeV1 {
		if special, ok := r.ResolveSpecialFees(ctx, vault.StrategyAddresses()); ok {
			vault.Fees.Special = special
		}
		return vault
	}

	contract := chain.NewContract(r.reader, vault.Address)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if v, err := contract.String(gctx, "apiVersion()"); err == nil {
			vault.APIVersion = v
		}
		return nil
	})
	g.Go(func() error {
		if v, err := contract.Uint(gctx, "emergencyShutdown()"); err == nil {
			vault.EmergencyShutdown = v.Sign() != 0
		}
		return nil
	})
	_ = g.Wait()

	addresses := r.StrategyAddresses(ctx, vault.Address)
	vault.Strategies = r.ResolveStrategies(ctx, addresses)
	vault.Fees = r.ResolveFees(ctx, vault.Address, addresses)
	return vault
}

// StrategyAddresses walks withdrawalQueue(i) until the null address or a failed
// read, then appends the override strategies of the vault.
func (r *Resolver) StrategyAddresses(ctx context.Context, vault string) []string {
	contract := chain.NewContract(r.reader, vault)
	var out []string
	for i := uint64(0); i < maxWithdrawalQueue; i++ {
		addr, err := contract.AddressResult(ctx, "withdrawalQueue(uint256)", chain.EncodeUint64(i))
		if err != nil {
			if i == 0 {
				r.logger.Warn().Err(err).Str("vault", vault).Msg("Failed to read withdrawal queue")
			}
			break
		}
		if chain.IsNullAddress(addr) {
			break
		}
		out = append(out, addr)
	}

	for _, extra := range r.overrides.Strategies(vault) {
		if !containsAddress(out, extra) {
			out = append(out, strings.ToLower(extra))
		}
	}
	return out
}

// ResolveStrategies reads the name of every strategy concurrently. A failed read leaves the name empty.
func (r *Resolver) ResolveStrategies(ctx context.Context, addresses []string) []types.Strategy {
	out := make([]types.Strategy, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range addresses {
		i, addr := i, addr
		out[i] = types.Strategy{Address: addr}
		g.Go(func() error {
			name, err := chain.NewContract(r.reader, addr).String(gctx, "name()")
			if err != nil {
				r.logger.Debug().Err(err).Str("strategy", addr).Msg("Failed to read strategy name")
				return nil
			}
			out[i].Name = name
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// ResolveFees reads the v2 fee schedule. The performance fee is charged twice,
// once for the strategist and once for the treasury. The management fee falls
// back to that doubled performance fee when unreadable. keepCRV is only
// resolved for single-strategy vaults.
func (r *Resolver) ResolveFees(ctx context.Context, vault string, strategies []string) types.FeeSchedule {
	contract := chain.NewContract(r.reader, vault)

	var performanceFee int64
	if v, err := contract.Uint(ctx, "performanceFee()"); err == nil {
		performanceFee = clampInt64(v) * 2
	}
	managementFee := performanceFee
	if v, err := contract.Uint(ctx, "managementFee()"); err == nil {
		managementFee = clampInt64(v)
	}

	fees := types.FeeSchedule{General: types.GeneralFees{PerformanceFee: performanceFee, ManagementFee: managementFee}}
	if len(strategies) != 1 {
		return fees
	}

	var keepCrv *int64
	for _, strategy := range strategies {
		fee, err := chain.NewContract(r.reader, strategy).Uint(ctx, "keepCRV()")
		if err != nil {
			continue
		}
		sum := clampInt64(fee)
		if keepCrv != nil {
			sum += *keepCrv
		}
		keepCrv = &sum
	}
	fees.Special.KeepCrv = keepCrv
	return fees
}

// ResolveSpecialFees reads keepCRV as selected by the resolver mode. A failed read counts as 0.
// ok is false when the mode skips the read. A warning is logged whenever the two
// modes disagree on whether to read.
func (r *Resolver) ResolveSpecialFees(ctx context.Context, strategies []string) (types.SpecialFees, bool) {
	sourceReads := len(strategies) == 0
	singleReads := len(strategies) == 1
	if sourceReads != singleReads {
		r.logger.Warn().
			Str("mode", string(r.mode)).
			Int("strategies", len(strategies)).
			Msg("Special fees resolution depends on mode")
	}

	read := sourceReads
	if r.mode == ModeSingle {
		read = singleReads
	}
	if !read {
		return types.SpecialFees{}, false
	}

	var keepCrv int64
	if len(strategies) > 0 {
		if v, err := chain.NewContract(r.reader, strategies[0]).Uint(ctx, "keepCRV()"); err == nil {
			keepCrv = clampInt64(v)
		}
	}
	return types.SpecialFees{KeepCrv: &keepCrv}, true
}

func containsAddress(list []string, address string) bool {
	for _, a := range list {
		if types.SameAddress(a, address) {
			return true
		}
	}
	return false
}

func clampInt64(v *big.Int) int64 {
	if v == nil || v.Sign() < 0 {
		return 0
	}
	if !v.IsInt64() {
		return int64(^uint64(0) >> 1)
	}
	return v.Int64()
}
