package oracle

import (
	"context"
	"math/big"

	"github.com/elys-network/vault-apy/internal/chain"
)

// Quoter prices one token in another through an on-chain router.
type Quoter interface {
	GetPriceFromRouter(ctx context.Context, start, end string) (*big.Int, error)
}

// RouterQuoter calls the Quote contract.
type RouterQuoter struct {
	quote chain.Contract
}

// NewRouterQuoter binds the Quote contract at address.
func NewRouterQuoter(reader chain.Reader, address string) *RouterQuoter {
	return &RouterQuoter{quote: chain.NewContract(reader, address)}
}

// GetPriceFromRouter implements Quoter. The result is scaled by the decimals of end.
func (q *RouterQuoter) GetPriceFromRouter(ctx context.Context, start, end string) (*big.Int, error) {
	return q.quote.Uint(ctx, "getPriceFromRouter(address,address)", chain.EncodeAddress(start), chain.EncodeAddress(end))
}
