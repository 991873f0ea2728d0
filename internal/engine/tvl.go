package engine

import (
	"context"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/config"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/elys-network/vault-apy/internal/utils"
)

// RouterPricer quotes one token in another through the on-chain router. *oracle.Aggregator implements it.
type RouterPricer interface {
	RouterPrice(ctx context.Context, start, end string) (sdkmath.Int, error)
}

// ComputeTvl returns the USD value of the assets held by vault, priced in USDC
// through the router. It is nil when no router is configured or a read fails.
func (e *Engine) ComputeTvl(ctx context.Context, vault types.Vault) *float64 {
	if e.router == nil || vault.Address == "" || vault.Token.Address == "" {
		return nil
	}
	l := e.logger.With().Str("vault", vault.Address).Logger()

	// v1 vaults report their holdings through balance().
	signature := "totalAssets()"
	if vault.Type == types.VaultTypeV1 {
		signature = "balance()"
	}
	assets, err := chain.NewContract(e.reader, vault.Address).Uint(ctx, signature)
	if err != nil {
		l.Debug().Err(err).Str("call", signature).Msg("Failed to read vault assets")
		e.metrics.DegradedRead("tvl_assets")
		return nil
	}

	var price sdkmath.Int
	if strings.EqualFold(vault.Token.Address, config.USDCAddress) {
		price = sdkmath.NewIntWithDecimal(1, config.USDCDecimals)
	} else {
		price, err = e.router.RouterPrice(ctx, vault.Token.Address, config.USDCAddress)
		if err != nil {
			l.Debug().Err(err).Msg("Failed to price vault token")
			e.metrics.DegradedRead("tvl_price")
			return nil
		}
	}

	amount := utils.ScaledToDecOrZero(assets, vault.Token.Decimals)
	usd := utils.ScaledToDecOrZero(price.BigInt(), config.USDCDecimals)
	tvl := utils.DecToFloat64(amount.Mul(usd))
	return &tvl
}
