package engine

import (
	"context"
	"math/big"

	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/fees"
	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/poolapr"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/elys-network/vault-apy/internal/utils"
	"github.com/rs/zerolog"
)

const (
	ppsApyType        = "pricePerShare"
	ppsApyDescription = "Price per share growth"
)

// pricePerShareCalculator annualizes the one-day growth of the vault share price.
type pricePerShareCalculator struct {
	reader  chain.Reader
	sampler *poolapr.Sampler
	periods uint64
	logger  zerolog.Logger
}

func newPricePerShareCalculator(cfg Config, sampler *poolapr.Sampler) *pricePerShareCalculator {
	return &pricePerShareCalculator{
		reader:  cfg.Reader,
		sampler: sampler,
		periods: cfg.Params.PoolCompoundingPeriodsPerYear,
		logger:  logger.GetForComponent("pps_calculator"),
	}
}

func (c *pricePerShareCalculator) Protocol() types.Protocol {
	return types.ProtocolPricePerShare
}

// shareGetter returns the share price getter for the vault generation.
func shareGetter(vaultType types.VaultType) string {
	if vaultType == types.VaultTypeV1 {
		return "getPricePerFullShare()"
	}
	return "pricePerShare()"
}

func (c *pricePerShareCalculator) Calculate(ctx context.Context, vault types.Vault) types.Apy {
	contract := chain.NewContract(c.reader, vault.Address)
	getter := shareGetter(vault.Type)

	rate, ok := c.sampler.Sample(ctx, func(ctx context.Context, block *big.Int) (*big.Int, error) {
		return contract.UintAt(ctx, block, getter)
	})
	if !ok {
		c.logger.Warn().Str("vault", vault.Address).Msg("No share price sample, reporting 0")
		apy := types.EmptyApy(ppsApyType, ppsApyDescription)
		apy.Data[types.ApyDataOneDaySample] = 0
		return apy
	}

	annual, ok := fees.CompoundPool(rate, c.periods)
	if !ok {
		c.logger.Warn().Str("vault", vault.Address).Str("rate", rate.String()).Msg("Share price growth overflowed, reporting 0")
	}
	recommended := utils.DecToFloat64(annual)

	return types.Apy{
		Recommended: recommended,
		Type:        ppsApyType,
		Composite:   false,
		Description: ppsApyDescription,
		Data: map[string]float64{
			types.ApyDataOneDaySample: recommended,
		},
	}
}
