package oracle

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elys-network/vault-apy/internal/cache"
	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/chain/chaintest"
	"github.com/elys-network/vault-apy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
	calls  int
}

func (f *fakeSource) TokenPrices(_ context.Context, addresses []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]float64{}
	for _, a := range addresses {
		if p, ok := f.prices[a]; ok {
			out[a] = p
		}
	}
	return out, nil
}

// ctxSource fails like an HTTP client would when its context is done.
type ctxSource struct {
	price float64
}

func (s ctxSource) TokenPrices(ctx context.Context, addresses []string) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("price request without deadline")
	}
	return map[string]float64{addresses[0]: s.price}, nil
}

type countingQuoter struct {
	calls int
	price *big.Int
}

func (q *countingQuoter) GetPriceFromRouter(context.Context, string, string) (*big.Int, error) {
	q.calls++
	return q.price, nil
}

var (
	crv  = strings.ToLower(config.CRVAddress)
	weth = strings.ToLower(config.WETHAddress)
)

func TestPriceMissingIsNilNotError(t *testing.T) {
	agg := NewAggregator(Config{Source: &fakeSource{prices: map[string]float64{}}})

	quote, err := agg.Price(context.Background(), "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Nil(t, quote)
}

func TestPriceTransportFailureIsError(t *testing.T) {
	agg := NewAggregator(Config{Source: &fakeSource{err: errors.New("timeout")}})

	quote, err := agg.Price(context.Background(), config.CRVAddress)
	assert.Error(t, err)
	assert.Nil(t, quote)
	assert.Equal(t, 7.0, agg.PriceOr(context.Background(), config.CRVAddress, 7))
}

func TestSharedFetchIgnoresCallerCancellation(t *testing.T) {
	agg := NewAggregator(Config{Source: ctxSource{price: 0.5}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	quote, err := agg.Price(ctx, config.CRVAddress)
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, 0.5, quote.USD)
}

func TestPriceUsesAliasAndCache(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{weth: 3000, crv: 0.5}}
	mem, err := cache.NewMemory(100)
	require.NoError(t, err)
	defer mem.Close()

	agg := NewAggregator(Config{Source: src, Cache: mem})
	ctx := context.Background()

	quote, err := agg.Price(ctx, config.ETHPlaceholder)
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, 3000.0, quote.USD)

	mem.Wait()
	quote, err = agg.Price(ctx, config.WETHAddress)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, quote.USD)
	assert.Equal(t, 1, src.calls)
}

func TestPriceOrFallback(t *testing.T) {
	agg := NewAggregator(Config{Source: &fakeSource{prices: map[string]float64{crv: 0.5}}})
	ctx := context.Background()

	assert.Equal(t, 0.5, agg.PriceOr(ctx, config.CRVAddress, 0))
	assert.Equal(t, 1.0, agg.PriceOr(ctx, "0x2222222222222222222222222222222222222222", 1))
}

func TestRouterPriceUSDCSelfShortCircuits(t *testing.T) {
	quoter := &countingQuoter{price: big.NewInt(123)}
	agg := NewAggregator(Config{Source: &fakeSource{}, Quoter: quoter})

	p, err := agg.RouterPrice(context.Background(), config.USDCAddress, strings.ToLower(config.USDCAddress))
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), p.Int64())
	assert.Equal(t, 0, quoter.calls)

	p, err = agg.RouterPrice(context.Background(), config.CRVAddress, config.USDCAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(123), p.Int64())
	assert.Equal(t, 1, quoter.calls)
}

func TestRouterQuoterCallsQuoteContract(t *testing.T) {
	reader := chaintest.NewReader()
	reader.SetUint(config.QuoteAddress, "getPriceFromRouter(address,address)", big.NewInt(510_000),
		chain.EncodeAddress(config.CRVAddress), chain.EncodeAddress(config.USDCAddress))

	agg := NewAggregator(Config{Source: &fakeSource{}, Quoter: NewRouterQuoter(reader, config.QuoteAddress)})
	p, err := agg.RouterPrice(context.Background(), config.CRVAddress, config.USDCAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(510_000), p.Int64())
}

func TestGeckoClientTokenPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/token_price/ethereum", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		assert.Equal(t, crv, r.URL.Query().Get("contract_addresses"))
		_, _ = w.Write([]byte(`{"` + crv + `":{"usd":0.52}}`))
	}))
	defer srv.Close()

	client := NewGeckoClient(srv.URL, 600)
	prices, err := client.TokenPrices(context.Background(), []string{config.CRVAddress})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{crv: 0.52}, prices)
}

func TestGeckoClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewGeckoClient(srv.URL, 600)
	_, err := client.TokenPrices(context.Background(), []string{config.CRVAddress})
	assert.Error(t, err)
}
