// Package service exposes the externally visible operations, joining the
// engine with live position and price sources.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deltaHedge/internal/engine"
	"deltaHedge/internal/hedge"
	"deltaHedge/internal/model"
)

// PositionSource supplies a wallet's live positions.
type PositionSource interface {
	FetchLivePositions(ctx context.Context, wallet string) ([]model.LiquidityPosition, error)
}

// PriceSource supplies a pair's current price (token B per token A).
// Implementations must not cache prices.
type PriceSource interface {
	FetchCurrentPrice(ctx context.Context, pair model.Pair) (float64, error)
}

// Config holds service options.
type Config struct {
	Wallet string
	// PriceConcurrency bounds concurrent price lookups. Zero means 4.
	PriceConcurrency int
	// PriceOverrides replaces the price source for the listed pair ids.
	PriceOverrides map[string]float64
}

// PositionsResult is the outcome of GetPositionsWithHedges.
type PositionsResult struct {
	Reports  []model.PositionReport
	Failures []engine.PositionFailure
	// PositionsUnavailable is set when the live positions could not be fetched.
	PositionsUnavailable bool
}

type Service struct {
	engine      *engine.Engine
	positions   PositionSource
	prices      PriceSource
	wallet      string
	concurrency int
	overrides   map[string]float64
	metrics     *Metrics
	logger      *zap.Logger
}

// New creates a service. positions may be nil when no wallet is tracked.
func New(eng *engine.Engine, positions PositionSource, prices PriceSource, cfg Config, metrics *Metrics, logger *zap.Logger) (*Service, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is nil")
	}
	if prices == nil && len(cfg.PriceOverrides) == 0 {
		return nil, fmt.Errorf("price source is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.PriceConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	overrides := make(map[string]float64, len(cfg.PriceOverrides))
	for id, price := range cfg.PriceOverrides {
		pair, err := eng.Pair(id)
		if err != nil {
			return nil, fmt.Errorf("price override: %w", err)
		}
		overrides[pair.ID] = price
	}

	return &Service{
		engine:      eng,
		positions:   positions,
		prices:      prices,
		wallet:      strings.TrimSpace(cfg.Wallet),
		concurrency: concurrency,
		overrides:   overrides,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// GetPositionsWithHedges reports every live position of the configured
// wallet. A failed position fetch yields an empty result flagged
// PositionsUnavailable; per-position failures are listed in Failures.
func (s *Service) GetPositionsWithHedges(ctx context.Context) (PositionsResult, error) {
	if s.positions == nil || s.wallet == "" {
		s.logger.Warn("no wallet configured, live positions unavailable")
		return PositionsResult{Reports: []model.PositionReport{}, PositionsUnavailable: true}, nil
	}

	positions, err := s.positions.FetchLivePositions(ctx, s.wallet)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return PositionsResult{}, ctxErr
		}
		s.logger.Warn("live positions unavailable", zap.String("wallet", s.wallet), zap.Error(err))
		return PositionsResult{Reports: []model.PositionReport{}, PositionsUnavailable: true}, nil
	}
	s.metrics.livePositions(len(positions))

	pairs := make([]model.Pair, 0)
	seen := make(map[string]struct{})
	for _, pos := range positions {
		if _, ok := seen[pos.Pair.ID]; ok {
			continue
		}
		seen[pos.Pair.ID] = struct{}{}
		pairs = append(pairs, pos.Pair)
	}

	prices, priceErrs, err := s.fetchPrices(ctx, pairs)
	if err != nil {
		return PositionsResult{}, err
	}

	batch := s.engine.ReportWithPriceErrors(positions, prices, priceErrs)
	for _, failure := range batch.Failures {
		s.logFailure(failure)
	}
	s.metrics.reports(len(batch.Reports), len(batch.Failures))

	return PositionsResult{Reports: batch.Reports, Failures: batch.Failures}, nil
}

// SimulatePosition evaluates a hypothetical position at the pair's current price.
func (s *Service) SimulatePosition(ctx context.Context, req engine.SimulationRequest) (model.PositionReport, error) {
	pair, err := s.engine.Pair(req.Pair)
	if err != nil {
		s.metrics.simulation("rejected")
		return model.PositionReport{}, err
	}

	price, err := s.currentPrice(ctx, pair)
	if err != nil {
		s.metrics.simulation("price_unavailable")
		s.logger.Warn("simulation price unavailable", zap.String("pair", pair.ID), zap.Error(err))
		return model.PositionReport{}, &engine.PriceUnavailableError{Pair: pair.ID, Err: err}
	}

	report, err := s.engine.Simulate(req, price)
	if err != nil {
		if engine.IsCallerError(err) {
			s.metrics.simulation("rejected")
		} else {
			s.metrics.simulation("failed")
			s.logComputation(err, zap.String("pair", pair.ID))
		}
		return model.PositionReport{}, err
	}

	s.metrics.simulation("ok")
	return report, nil
}

// GetAvailablePairs lists the supported pairs in registration order.
func (s *Service) GetAvailablePairs() []model.Pair {
	return s.engine.Pairs()
}

// fetchPrices looks up each pair's price. A failed lookup is recorded in the
// error map rather than aborting the batch.
func (s *Service) fetchPrices(ctx context.Context, pairs []model.Pair) (map[string]float64, map[string]error, error) {
	var mu sync.Mutex
	prices := make(map[string]float64, len(pairs))
	failures := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			price, err := s.currentPrice(gctx, pair)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("price unavailable", zap.String("pair", pair.ID), zap.Error(err))
				failures[pair.ID] = err
				return nil
			}
			prices[pair.ID] = price
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return prices, failures, nil
}

func (s *Service) currentPrice(ctx context.Context, pair model.Pair) (float64, error) {
	if price, ok := s.overrides[pair.ID]; ok {
		return price, nil
	}
	if s.prices == nil {
		return 0, fmt.Errorf("no price source for %s", pair.ID)
	}
	price, err := s.prices.FetchCurrentPrice(ctx, pair)
	s.metrics.priceFetch(pair.ID, err)
	return price, err
}

func (s *Service) logFailure(failure engine.PositionFailure) {
	fields := []zap.Field{
		zap.Int("index", failure.Index),
		zap.String("position", failure.PositionID),
		zap.String("pair", failure.Pair),
	}
	var priceErr *engine.PriceUnavailableError
	switch {
	case errors.As(failure.Err, &priceErr):
		s.logger.Warn("position skipped", append(fields, zap.Error(failure.Err))...)
	default:
		s.logComputation(failure.Err, fields...)
	}
}

func (s *Service) logComputation(err error, fields ...zap.Field) {
	var compErr *hedge.ComputationError
	if errors.As(err, &compErr) {
		s.logger.Error("hedge computation failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Warn("position evaluation failed", append(fields, zap.Error(err))...)
}
