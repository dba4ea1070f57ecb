package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"deltaHedge/internal/config"
	"deltaHedge/internal/engine"
	"deltaHedge/internal/model"
	"deltaHedge/internal/onchain"
	"deltaHedge/internal/service"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Evaluate a hypothetical position at the current price",
		RunE:  runSimulate,
	}
	addChainFlags(cmd.Flags())
	cmd.Flags().String("pair", "", "pair id, e.g. WETH/USDC")
	cmd.Flags().String("range-low", "", "lower price bound")
	cmd.Flags().String("range-high", "", "upper price bound")
	cmd.Flags().String("amount", "", "quantity of the entry token deposited")
	cmd.Flags().String("entry-token", "", "symbol of the deposited token")
	cmd.Flags().String("entry-price", "", "entry price, defaults to the current price")
	cmd.Flags().StringSlice("price", nil, "manual price overrides (PAIR=price, repeatable)")
	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	req, err := engine.ParseSimulationRequest(cfg.Request)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, _, err := newEngine(ctx, cfg.Config, logger)
	if err != nil {
		return err
	}

	var prices service.PriceSource
	if !hasOverride(eng, cfg.Prices, req.Pair) {
		chainClient, err := dialChain(ctx, cfg.Config)
		if err != nil {
			return err
		}
		defer chainClient.Close()
		source := onchain.NewPoolPriceSource(chainClient, retryPolicy(cfg.Config), logger)
		pair, err := eng.Pair(req.Pair)
		if err != nil {
			return err
		}
		if err := verifyPools(ctx, source, []model.Pair{pair}, logger); err != nil {
			return err
		}
		prices = source
	}

	svc, err := service.New(eng, nil, prices, service.Config{PriceOverrides: cfg.Prices}, nil, logger)
	if err != nil {
		return err
	}
	report, err := svc.SimulatePosition(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), report.View())
}

// hasOverride reports whether a manual price covers the requested pair.
func hasOverride(eng *engine.Engine, prices map[string]float64, pairID string) bool {
	want, err := eng.Pair(pairID)
	if err != nil {
		return false
	}
	for id := range prices {
		if pair, err := eng.Pair(id); err == nil && pair.ID == want.ID {
			return true
		}
	}
	return false
}
