// Package chaintest provides in-memory chain fakes for tests.
package chaintest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/types"
)

// ErrNotMocked is returned for calls without a registered answer, like a revert would.
var ErrNotMocked = &chain.RPCError{Code: 3, Message: "execution reverted"}

type answer struct {
	result []byte
	err    error
}

// Reader is a chain.Reader answering from a table keyed by address, calldata and block.
type Reader struct {
	mu      sync.Mutex
	answers map[string]answer
	calls   map[string]int
}

// NewReader returns an empty fake.
func NewReader() *Reader {
	return &Reader{answers: map[string]answer{}, calls: map[string]int{}}
}

func key(address string, data []byte, block string) string {
	return strings.ToLower(address) + "|" + hex.EncodeToString(data) + "|" + block
}

// Set answers signature(args) on address at every block.
func (r *Reader) Set(address, signature string, result []byte, args ...[]byte) {
	r.put(key(address, chain.EncodeCall(signature, args...), "*"), answer{result: result})
}

// SetAt answers signature(args) on address at one block.
func (r *Reader) SetAt(block uint64, address, signature string, result []byte, args ...[]byte) {
	r.put(key(address, chain.EncodeCall(signature, args...), chain.BlockTag(new(big.Int).SetUint64(block))), answer{result: result})
}

// SetUint answers a uint256 getter.
func (r *Reader) SetUint(address, signature string, value *big.Int, args ...[]byte) {
	r.Set(address, signature, chain.EncodeUint256(value), args...)
}

// SetAddress answers an address getter.
func (r *Reader) SetAddress(address, signature, value string, args ...[]byte) {
	r.Set(address, signature, chain.EncodeAddress(value), args...)
}

// SetString answers a string getter with ABI encoded output.
func (r *Reader) SetString(address, signature, value string, args ...[]byte) {
	out := chain.EncodeUint64(32)
	out = append(out, chain.EncodeUint64(uint64(len(value)))...)
	padded := make([]byte, (len(value)+31)/32*32)
	copy(padded, value)
	r.Set(address, signature, append(out, padded...), args...)
}

// Fail makes signature(args) on address return err.
func (r *Reader) Fail(address, signature string, err error, args ...[]byte) {
	r.put(key(address, chain.EncodeCall(signature, args...), "*"), answer{err: err})
}

func (r *Reader) put(k string, a answer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers[k] = a
}

// Calls returns how many times signature(args) was called on address.
func (r *Reader) Calls(address, signature string, args ...[]byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := strings.ToLower(address) + "|" + hex.EncodeToString(chain.EncodeCall(signature, args...)) + "|"
	total := 0
	for k, n := range r.calls {
		if strings.HasPrefix(k, prefix) {
			total += n
		}
	}
	return total
}

// Call implements chain.Reader.
func (r *Reader) Call(_ context.Context, to string, data []byte, block *big.Int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag := chain.BlockTag(block)
	exact := key(to, data, tag)
	r.calls[exact]++
	if a, ok := r.answers[exact]; ok {
		return a.result, a.err
	}
	if a, ok := r.answers[key(to, data, "*")]; ok {
		return a.result, a.err
	}
	return nil, ErrNotMocked
}

// Chain is a chain.BlockSource whose timestamps come from a function.
type Chain struct {
	Head        uint64
	TimestampOf func(number uint64) int64

	mu      sync.Mutex
	lookups int
}

// LinearChain returns a chain of head+1 blocks spaced blockTime seconds from genesis.
func LinearChain(head uint64, genesis, blockTime int64) *Chain {
	return &Chain{
		Head:        head,
		TimestampOf: func(n uint64) int64 { return genesis + int64(n)*blockTime },
	}
}

// LatestBlock implements chain.BlockSource.
func (c *Chain) LatestBlock(ctx context.Context) (types.Block, error) {
	return c.BlockByNumber(ctx, c.Head)
}

// BlockByNumber implements chain.BlockSource.
func (c *Chain) BlockByNumber(_ context.Context, number uint64) (types.Block, error) {
	c.mu.Lock()
	c.lookups++
	c.mu.Unlock()
	if number > c.Head {
		return types.Block{}, fmt.Errorf("%w: %d", chain.ErrBlockNotFound, number)
	}
	return types.Block{Number: number, Timestamp: c.TimestampOf(number)}, nil
}

// Lookups returns how many headers were fetched.
func (c *Chain) Lookups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups
}

// Wei returns v * 10^18 for building fixed-point fixtures.
func Wei(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// Scaled parses a decimal string into an 18-decimal fixed-point integer.
func Scaled(v string) *big.Int {
	parts := strings.SplitN(v, ".", 2)
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	for len(frac) < 18 {
		frac += "0"
	}
	n, ok := new(big.Int).SetString(parts[0]+frac[:18], 10)
	if !ok {
		panic(errors.New("chaintest: invalid decimal " + v))
	}
	return n
}
