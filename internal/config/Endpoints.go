package config

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// EthRPCURLs are the JSON-RPC endpoints of the Ethereum node, tried in order.
	EthRPCURLs []string
	// CoinGeckoAPI is the base URL of the USD price service.
	CoinGeckoAPI string
	// RedisAddr is the Redis endpoint used by the redis store backend and the shared cache.
	RedisAddr string
	// WebPort is the port of the HTTP API.
	WebPort string
	// GRPCPort is the port of the gRPC health service. Empty disables it.
	GRPCPort string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	rawURLs, err := getEnv("ETH_RPC_URLS")
	if err != nil {
		return err
	}
	EthRPCURLs = splitList(rawURLs)

	CoinGeckoAPI = strings.TrimRight(getEnvOrDefault("COINGECKO_API_URL", "https://api.coingecko.com/api/v3"), "/")
	RedisAddr = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	GRPCPort = getEnvOrDefault("GRPC_PORT", "")

	log.Debug().
		Strs("EthRPCURLs", EthRPCURLs).
		Str("CoinGeckoAPI", CoinGeckoAPI).
		Str("RedisAddr", RedisAddr).
		Str("WebPort", WebPort).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
