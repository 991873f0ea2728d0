package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/elys-network/vault-apy/internal/blocks"
	"github.com/elys-network/vault-apy/internal/cache"
	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/config"
	"github.com/elys-network/vault-apy/internal/engine"
	"github.com/elys-network/vault-apy/internal/exporter"
	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/oracle"
	"github.com/elys-network/vault-apy/internal/overrides"
	"github.com/elys-network/vault-apy/internal/resolver"
	"github.com/elys-network/vault-apy/internal/state"
	"github.com/elys-network/vault-apy/internal/vaults"
	"github.com/elys-network/vault-apy/internal/web"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	geckoRequestsPerMinute = 30
	memoryCacheItems       = 50_000
	healthPollInterval     = 15 * time.Second
)

// app holds the wired components shared by the commands.
type app struct {
	engine  *engine.Engine
	source  vaults.Source
	metrics *metrics.Collector
	redis   *redis.Client
	cache   cache.Cache
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd(ctx).Execute(); err != nil {
		log.Error().Err(err).Msg("apyd failed")
		os.Exit(1)
	}
}

func rootCmd(ctx context.Context) *cobra.Command {
	root := &cobra.Command{
		Use:           "apyd",
		Short:         "Computes and serves the APY of yield vaults",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
			}
			if err := config.LoadConfig(); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger.Initialize(config.LogLevel, config.LogFormat)
			return nil
		},
	}
	root.AddCommand(serveCmd(ctx))
	root.AddCommand(computeCmd(ctx))
	return root
}

func serveCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the export loop and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(ctx)
		},
	}
}

func computeCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "compute <vault address>",
		Short: "Compute the APY of one vault and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			defer a.close()

			v, err := a.source.Vault(ctx, args[0])
			if err != nil {
				return err
			}
			apy, err := a.engine.ComputeApy(ctx, v)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(apy)
		},
	}
}

// build wires the yield engine and the vault source from the loaded configuration.
func build() (*app, error) {
	table, err := overrides.Load(config.OverridesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}
	log.Info().Int("vaults", table.Len()).Msg("Override table loaded")

	client, err := chain.NewClient(chain.ClientConfig{
		URLs:           config.EthRPCURLs,
		RequestsPerSec: config.RPCRateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}

	a := &app{metrics: metrics.NewCollector("vault_apy")}
	if config.StoreBackend == "redis" {
		a.redis = redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		a.cache = cache.NewRedis(a.redis, "apy:cache:")
	} else {
		mem, err := cache.NewMemory(memoryCacheItems)
		if err != nil {
			return nil, err
		}
		a.cache = mem
	}

	estimator := blocks.NewEstimator(client, config.AvgBlockTimeSeconds, a.cache)
	prices := oracle.NewAggregator(oracle.Config{
		Source:   oracle.NewGeckoClient(config.CoinGeckoAPI, geckoRequestsPerMinute),
		Quoter:   oracle.NewRouterQuoter(client, config.QuoteAddress),
		Cache:    a.cache,
		CacheTTL: config.PriceCacheTTL,
		Aliases:  config.PriceAliases,
		Metrics:  a.metrics,
	})

	a.engine, err = engine.New(engine.Config{
		Reader:    client,
		Prices:    prices,
		Blocks:    estimator,
		Overrides: table,
		Router:    prices,
		Params:    config.DefaultEngineParameters,
		Metrics:   a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create yield engine: %w", err)
	}

	a.source = vaults.NewFileSource(config.VaultsFile)
	if config.ResolveOnchain {
		r := resolver.New(client, table, resolver.SpecialFeesMode(config.SpecialFeesMode))
		a.source = resolver.NewSource(a.source, r)
	}
	return a, nil
}

func (a *app) close() {
	if closer, ok := a.cache.(interface{ Close() }); ok {
		closer.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing redis client")
		}
	}
}

// openStore returns the configured store and, for postgres, a database health check.
func (a *app) openStore(ctx context.Context) (state.Store, func() error, error) {
	switch config.StoreBackend {
	case "postgres":
		dbCfg := state.DBConfig{
			Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
			User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
			DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
		}
		if err := state.InitDB(dbCfg); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := state.EnsureSchema(); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		return state.NewPostgresStore(state.DB, a.metrics), state.TestDBConnection, nil
	case "redis":
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", config.RedisAddr, err)
		}
		check := func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.redis.Ping(pingCtx).Err()
		}
		return state.NewRedisStore(a.redis, "apy:", a.metrics), check, nil
	default:
		log.Warn().Msg("Using the in-memory store. Computed vaults are lost on restart.")
		return state.NewMemoryStore(a.metrics), nil, nil
	}
}

func serve(ctx context.Context) error {
	log.Info().Msg("Vault APY exporter starting...")

	a, err := build()
	if err != nil {
		return err
	}
	defer a.close()

	store, dbCheck, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer state.CloseDB()

	exp, err := exporter.New(exporter.Config{
		Source:      a.source,
		Engine:      a.engine,
		Store:       store,
		Concurrency: config.ExportConcurrency,
		Metrics:     a.metrics,
	})
	if err != nil {
		return err
	}

	webServer := web.NewWebServer(web.Config{
		Port:    config.WebPort,
		Store:   store,
		Source:  a.source,
		Engine:  a.engine,
		Cycles:  exp,
		Metrics: a.metrics,
		DBCheck: dbCheck,
	})
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting HTTP API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	if config.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+config.GRPCPort)
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port %s: %w", config.GRPCPort, err)
		}
		hs := web.NewHealthServer(webServer.Healthy)
		go func() {
			if err := hs.Serve(ctx, lis, healthPollInterval); err != nil {
				log.Error().Err(err).Msg("gRPC health server failed")
			}
		}()
	}

	exp.RunLoop(ctx, config.LoopInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	log.Info().Msg("Vault APY exporter stopped")
	return nil
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
