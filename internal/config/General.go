package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is "console" or "json".
	LogFormat string

	// VaultsFile is the path of the JSON file holding resolved vault snapshots.
	VaultsFile string
	// OverridesFile optionally points at a YAML override table merged over the embedded defaults.
	OverridesFile string

	// StoreBackend selects the persistence adapter: postgres, redis or memory.
	StoreBackend string

	// LoopInterval is the delay between two export cycles.
	LoopInterval time.Duration
	// ExportConcurrency bounds the number of vaults computed in parallel.
	ExportConcurrency int

	// ResolveOnchain enables refreshing v2 strategies and fees from chain before computing.
	ResolveOnchain bool
	// SpecialFeesMode is "source" (historical zero-strategy check) or "single" (one strategy).
	SpecialFeesMode string

	// PriceCacheTTL is how long a USD quote is reused.
	PriceCacheTTL time.Duration
	// AvgBlockTimeSeconds seeds the block height estimate before refinement.
	AvgBlockTimeSeconds float64
	// RPCRateLimit is the sustained requests per second sent to the node.
	RPCRateLimit float64
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// VAULTS_FILE and ETH_RPC_URLS are required, everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFormat = getEnvOrDefault("LOG_FORMAT", "console")

	VaultsFile, err = getEnv("VAULTS_FILE")
	if err != nil {
		return err
	}
	OverridesFile = getEnvOrDefault("OVERRIDES_FILE", "")

	StoreBackend = strings.ToLower(getEnvOrDefault("STORE_BACKEND", "memory"))
	switch StoreBackend {
	case "postgres", "redis", "memory":
	default:
		return errors.New("environment variable STORE_BACKEND must be one of postgres, redis, memory, got: " + StoreBackend)
	}

	LoopInterval, err = getEnvAsDurationOrDefault("LOOP_INTERVAL", 10*time.Minute)
	if err != nil {
		return err
	}

	concurrency, err := getEnvAsUint64OrDefault("EXPORT_CONCURRENCY", 8)
	if err != nil {
		return err
	}
	if concurrency == 0 {
		return errors.New("environment variable EXPORT_CONCURRENCY must be positive")
	}
	ExportConcurrency = int(concurrency)

	ResolveOnchain, err = getEnvAsBoolOrDefault("RESOLVE_ONCHAIN", false)
	if err != nil {
		return err
	}

	SpecialFeesMode = strings.ToLower(getEnvOrDefault("SPECIAL_FEES_MODE", "source"))
	if SpecialFeesMode != "source" && SpecialFeesMode != "single" {
		return errors.New("environment variable SPECIAL_FEES_MODE must be source or single, got: " + SpecialFeesMode)
	}

	PriceCacheTTL, err = getEnvAsDurationOrDefault("PRICE_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return err
	}

	AvgBlockTimeSeconds, err = getEnvAsFloat64OrDefault("AVG_BLOCK_TIME_SECONDS", 12.0)
	if err != nil {
		return err
	}
	if AvgBlockTimeSeconds <= 0 {
		return errors.New("environment variable AVG_BLOCK_TIME_SECONDS must be positive")
	}

	RPCRateLimit, err = getEnvAsFloat64OrDefault("RPC_RATE_LIMIT", 25)
	if err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("VaultsFile", VaultsFile).
		Str("StoreBackend", StoreBackend).
		Dur("LoopInterval", LoopInterval).
		Bool("ResolveOnchain", ResolveOnchain).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable or the fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if value, err := getEnv(key); err == nil {
		return value
	}
	return fallback
}

// getEnvAsUint64OrDefault retrieves an environment variable as a uint64. Returns error if set but invalid.
func getEnvAsUint64OrDefault(key string, fallback uint64) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return fallback, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64OrDefault retrieves an environment variable as a float64. Returns error if set but invalid.
func getEnvAsFloat64OrDefault(key string, fallback float64) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBoolOrDefault retrieves an environment variable as a bool. Returns error if set but invalid.
func getEnvAsBoolOrDefault(key string, fallback bool) (bool, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDurationOrDefault retrieves an environment variable as a time.Duration (e.g. "10m").
func getEnvAsDurationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}
