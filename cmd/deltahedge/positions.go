package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deltaHedge/internal/model"
	"deltaHedge/internal/onchain"
	"deltaHedge/internal/service"
	"deltaHedge/internal/storage"
)

func newPositionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Print live positions with their hedges",
		RunE:  runPositions,
	}
	addChainFlags(cmd.Flags())
	addWalletFlags(cmd.Flags())
	cmd.Flags().String("out", "", "append the report snapshot to this JSONL file")
	return cmd
}

func runPositions(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Wallet == "" {
		return fmt.Errorf("wallet is required")
	}
	if cfg.PositionManager == "" {
		return fmt.Errorf("position manager is required")
	}

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

	fetcher, err := onchain.NewPositionFetcher(chainClient, cfg.PositionManager, reg, retryPolicy(cfg), logger)
	if err != nil {
		return err
	}
	prices := onchain.NewPoolPriceSource(chainClient, retryPolicy(cfg), logger)
	if err := verifyPools(ctx, prices, eng.Pairs(), logger); err != nil {
		return err
	}
	svc, err := service.New(eng, fetcher, prices,
		service.Config{Wallet: cfg.Wallet, PriceConcurrency: cfg.PriceWorkers},
		nil, logger)
	if err != nil {
		return err
	}

	result, err := svc.GetPositionsWithHedges(ctx)
	if err != nil {
		return err
	}
	if result.PositionsUnavailable {
		return fmt.Errorf("live positions unavailable for %s", cfg.Wallet)
	}
	for _, failure := range result.Failures {
		fmt.Fprintf(os.Stderr, "position %s (%s): %v\n", failure.PositionID, failure.Pair, failure.Err)
	}

	views := model.Views(result.Reports)
	if cfg.Out != "" {
		var sink storage.ReportSink = storage.NewJsonlStorage(cfg.Out)
		snapshot := storage.Snapshot{
			TakenAt: time.Now().UTC().Format(time.RFC3339),
			Wallet:  cfg.Wallet,
			Reports: views,
		}
		if err := sink.PutReports(snapshot); err != nil {
			return err
		}
		logger.Info("snapshot written", zap.String("out", cfg.Out), zap.Int("reports", len(views)))
	}
	return writeJSON(cmd.OutOrStdout(), views)
}
