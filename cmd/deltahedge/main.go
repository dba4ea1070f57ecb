package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"deltaHedge/internal/chain"
	"deltaHedge/internal/config"
	"deltaHedge/internal/engine"
	"deltaHedge/internal/model"
	"deltaHedge/internal/onchain"
	"deltaHedge/internal/registry"
	"deltaHedge/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "deltahedge",
		Short:        "Concentrated-liquidity position and hedge calculator",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(newServeCmd())
	root.AddCommand(newPositionsCmd())
	root.AddCommand(newSimulateCmd())
	root.AddCommand(newPairsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(fs *pflag.FlagSet) {
	fs.String("rpc", "", "EVM RPC URL")
	fs.String("pg-dsn", "", "Postgres DSN for the pair catalog (optional)")
	fs.Float64("rpc-rps", 10, "maximum RPC calls per second, 0 disables limiting")
	fs.Int("rpc-burst", 5, "RPC rate limiter burst")
	fs.Int("max-retries", 3, "maximum retry attempts per RPC call")
	fs.Duration("retry-backoff", 250*time.Millisecond, "initial retry backoff")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addWalletFlags(fs *pflag.FlagSet) {
	fs.String("wallet", "", "wallet address whose positions are tracked")
	fs.String("position-manager", "", "NonfungiblePositionManager contract address")
	fs.Int("price-workers", 4, "concurrent pool price lookups")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// loadRegistry builds the pair catalog from Postgres when a DSN is set and the
// table is populated, otherwise from the config file.
func loadRegistry(ctx context.Context, cfg config.Config, logger *zap.Logger) (*registry.Registry, error) {
	pairs := cfg.Pairs
	source := "config"

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		stored, err := store.LoadPairs(ctx)
		if err != nil {
			return nil, err
		}
		if len(stored) > 0 {
			pairs = stored
			source = "postgres"
		}
	}

	reg, err := registry.New(pairs)
	if err != nil {
		return nil, fmt.Errorf("pair catalog: %w", err)
	}
	if reg.Len() == 0 {
		return nil, fmt.Errorf("no pairs configured")
	}
	logger.Info("pair catalog loaded", zap.String("source", source), zap.Int("pairs", reg.Len()))
	return reg, nil
}

func newEngine(ctx context.Context, cfg config.Config, logger *zap.Logger) (*engine.Engine, *registry.Registry, error) {
	reg, err := loadRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(reg)
	if err != nil {
		return nil, nil, err
	}
	return eng, reg, nil
}

func dialChain(ctx context.Context, cfg config.Config) (*chain.Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	client, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{RPS: cfg.RPCRPS, Burst: cfg.RPCBurst})
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	return client, nil
}

// verifyPools refuses to start when a pair's pool does not quote token B per
// token A. Pairs without a pool address are skipped.
func verifyPools(ctx context.Context, source *onchain.PoolPriceSource, pairs []model.Pair, logger *zap.Logger) error {
	checked := 0
	for _, pair := range pairs {
		if pair.PoolAddress == "" {
			continue
		}
		if err := source.VerifyPair(ctx, pair); err != nil {
			return fmt.Errorf("pool check: %w", err)
		}
		checked++
	}
	logger.Info("pool orientation verified", zap.Int("pools", checked))
	return nil
}

func retryPolicy(cfg config.Config) onchain.RetryPolicy {
	return onchain.RetryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBackoff}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pairIDs(pairs []model.Pair) []string {
	ids := make([]string, 0, len(pairs))
	for _, p := range pairs {
		ids = append(ids, p.ID)
	}
	return ids
}
