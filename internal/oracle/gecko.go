package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// USDSource returns USD prices of ERC20 tokens keyed by lowercase address.
// Tokens the source does not know are absent from the result.
type USDSource interface {
	TokenPrices(ctx context.Context, addresses []string) (map[string]float64, error)
}

// GeckoClient is a USDSource backed by the CoinGecko token price endpoint.
type GeckoClient struct {
	baseURL  string
	platform string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   zerolog.Logger
}

// NewGeckoClient creates a client for the ethereum platform.
// requestsPerMinute caps the request rate, the free tier allows about 30.
func NewGeckoClient(baseURL string, requestsPerMinute int) *GeckoClient {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	g := &GeckoClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		platform: "ethereum",
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 5),
		logger:   logger.GetForComponent("coingecko"),
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "coingecko",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Price service circuit breaker changed state")
		},
	})
	return g
}

// TokenPrices implements USDSource.
func (g *GeckoClient) TokenPrices(ctx context.Context, addresses []string) (map[string]float64, error) {
	if len(addresses) == 0 {
		return map[string]float64{}, nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.fetch(ctx, addresses)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]float64), nil
}

func (g *GeckoClient) fetch(ctx context.Context, addresses []string) (map[string]float64, error) {
	params := url.Values{}
	params.Set("contract_addresses", strings.ToLower(strings.Join(addresses, ",")))
	params.Set("vs_currencies", "usd")
	fullURL := fmt.Sprintf("%s/simple/token_price/%s?%s", g.baseURL, g.platform, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var payload map[string]struct {
		USD *float64 `json:"usd"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	prices := make(map[string]float64, len(payload))
	for address, quote := range payload {
		if quote.USD == nil {
			continue
		}
		prices[strings.ToLower(address)] = *quote.USD
	}
	return prices, nil
}
