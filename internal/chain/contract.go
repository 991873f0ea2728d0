package chain

import (
	"context"
	"fmt"
	"math/big"
)

// Contract binds a Reader to one contract address.
type Contract struct {
	reader  Reader
	address string
}

// NewContract returns a read-only binding of address.
func NewContract(reader Reader, address string) Contract {
	return Contract{reader: reader, address: address}
}

// Address returns the bound contract address.
func (c Contract) Address() string {
	return c.address
}

// Raw performs the call and returns the undecoded result.
func (c Contract) Raw(ctx context.Context, block *big.Int, signature string, args ...[]byte) ([]byte, error) {
	out, err := c.reader.Call(ctx, c.address, EncodeCall(signature, args...), block)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c.address, signature, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s.%s: %w", c.address, signature, ErrEmptyResult)
	}
	return out, nil
}

// Uint reads a uint256 getter at the latest block.
func (c Contract) Uint(ctx context.Context, signature string, args ...[]byte) (*big.Int, error) {
	return c.UintAt(ctx, nil, signature, args...)
}

// UintAt reads a uint256 getter at a historical block.
func (c Contract) UintAt(ctx context.Context, block *big.Int, signature string, args ...[]byte) (*big.Int, error) {
	out, err := c.Raw(ctx, block, signature, args...)
	if err != nil {
		return nil, err
	}
	return DecodeUint256(out, 0)
}

// AddressResult reads an address getter at the latest block.
func (c Contract) AddressResult(ctx context.Context, signature string, args ...[]byte) (string, error) {
	out, err := c.Raw(ctx, nil, signature, args...)
	if err != nil {
		return "", err
	}
	return DecodeAddress(out, 0)
}

// String reads a string getter at the latest block.
func (c Contract) String(ctx context.Context, signature string, args ...[]byte) (string, error) {
	out, err := c.Raw(ctx, nil, signature, args...)
	if err != nil {
		return "", err
	}
	return DecodeString(out)
}
