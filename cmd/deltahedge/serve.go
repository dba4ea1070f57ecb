package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deltaHedge/internal/httpapi"
	"deltaHedge/internal/onchain"
	"deltaHedge/internal/service"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the position and simulation API",
		RunE:  runServe,
	}
	addChainFlags(cmd.Flags())
	addWalletFlags(cmd.Flags())
	cmd.Flags().String("listen", ":3000", "HTTP listen address")
	cmd.Flags().String("password", "", "shared password for the dashboard, empty means open access")
	cmd.Flags().String("static-dir", "", "directory of static dashboard files")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, reg, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}

	chainClient, err := dialChain(ctx, cfg)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	var positions service.PositionSource
	if cfg.Wallet != "" && cfg.PositionManager != "" {
		fetcher, err := onchain.NewPositionFetcher(chainClient, cfg.PositionManager, reg, retryPolicy(cfg), logger)
		if err != nil {
			return err
		}
		positions = fetcher
	} else {
		logger.Warn("wallet or position manager not set, live positions disabled")
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := service.NewMetrics(promRegistry)
	if err != nil {
		return err
	}

	prices := onchain.NewPoolPriceSource(chainClient, retryPolicy(cfg), logger)
	if err := verifyPools(ctx, prices, eng.Pairs(), logger); err != nil {
		return err
	}

	svc, err := service.New(eng,
		positions,
		prices,
		service.Config{Wallet: cfg.Wallet, PriceConcurrency: cfg.PriceWorkers},
		metrics,
		logger,
	)
	if err != nil {
		return err
	}

	server, err := httpapi.New(svc, httpapi.Options{
		Listen:          cfg.Listen,
		Password:        cfg.Password,
		StaticDir:       cfg.StaticDir,
		Registry:        promRegistry,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.String("wallet", cfg.Wallet),
		zap.Strings("pairs", pairIDs(eng.Pairs())),
		zap.Bool("password", cfg.Password != ""),
		zap.String("static_dir", cfg.StaticDir),
	)
	return server.Run(ctx)
}
