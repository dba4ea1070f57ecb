package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deltaHedge/internal/model"
	"deltaHedge/internal/onchain"
	"deltaHedge/internal/registry"
	"deltaHedge/internal/storage/postgres"
)

func newPairsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairs",
		Short: "Inspect and maintain the pair catalog",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the supported pairs",
		RunE:  runPairsList,
	}
	addChainFlags(listCmd.Flags())

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Resolve pool metadata on chain and upsert it into Postgres",
		RunE:  runPairsSync,
	}
	addChainFlags(syncCmd.Flags())
	syncCmd.Flags().StringSlice("pool", nil, "pools to resolve as ADDRESS or ID=ADDRESS; defaults to configured pairs")

	cmd.AddCommand(listCmd, syncCmd)
	return cmd
}

func runPairsList(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg, err := loadRegistry(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), reg.Pairs())
}

type poolTarget struct {
	id      string
	address common.Address
}

func runPairsSync(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	pools, _ := cmd.Flags().GetStringSlice("pool")
	targets, err := syncTargets(pools, cfg.Pairs)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no pools to sync")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := dialChain(ctx, cfg)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	block, err := chainClient.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}
	logger.Info("pairs sync start",
		zap.Uint64("chain_id", chainID.Uint64()),
		zap.Uint64("block", block),
		zap.Int("pools", len(targets)),
	)

	resolver := onchain.NewMetadataResolver(chainClient, retryPolicy(cfg), logger)
	pairs := make([]model.Pair, 0, len(targets))
	for _, target := range targets {
		pair, err := resolver.ResolvePair(ctx, target.id, target.address)
		if err != nil {
			return err
		}
		pair.ChainID = chainID.Uint64()
		pairs = append(pairs, pair)
		logger.Info("pool resolved",
			zap.String("pair", pair.ID),
			zap.String("pool", pair.PoolAddress),
			zap.Uint32("fee", pair.FeeTier),
			zap.Int32("tick_spacing", pair.TickSpacing),
		)
	}

	if _, err := registry.New(pairs); err != nil {
		return fmt.Errorf("resolved pairs: %w", err)
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := store.UpsertPairs(ctx, pairs); err != nil {
		return err
	}
	logger.Info("pairs synced", zap.Int("pairs", len(pairs)))
	return writeJSON(cmd.OutOrStdout(), pairs)
}

func syncTargets(pools []string, configured []model.Pair) ([]poolTarget, error) {
	targets := make([]poolTarget, 0, len(pools))
	for _, item := range pools {
		id, addr := "", strings.TrimSpace(item)
		if idx := strings.LastIndex(addr, "="); idx >= 0 {
			id, addr = strings.TrimSpace(addr[:idx]), strings.TrimSpace(addr[idx+1:])
		}
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid pool address: %q", item)
		}
		targets = append(targets, poolTarget{id: id, address: common.HexToAddress(addr)})
	}
	if len(targets) > 0 {
		return targets, nil
	}

	for _, pair := range configured {
		if !common.IsHexAddress(pair.PoolAddress) {
			continue
		}
		targets = append(targets, poolTarget{id: pair.ID, address: common.HexToAddress(pair.PoolAddress)})
	}
	return targets, nil
}
