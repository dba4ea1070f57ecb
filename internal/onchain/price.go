package onchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"deltaHedge/internal/curve"
	"deltaHedge/internal/model"
)

// PoolPriceSource reads the current pool price from slot0. Each pair gets its
// own circuit breaker so one failing pool does not block the others. A pool
// whose token order disagrees with its pair is refused before slot0 is read.
type PoolPriceSource struct {
	reader   contractReader
	resolver *MetadataResolver
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewPoolPriceSource(caller ContractCaller, retry RetryPolicy, logger *zap.Logger) *PoolPriceSource {
	reader := newContractReader(caller, retry, logger)
	return &PoolPriceSource{
		reader:   reader,
		resolver: NewMetadataResolver(caller, retry, reader.logger),
		logger:   reader.logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// VerifyPair checks the pair's pool orientation. Results are cached per pool.
func (s *PoolPriceSource) VerifyPair(ctx context.Context, pair model.Pair) error {
	return s.resolver.VerifyPair(ctx, pair)
}

// FetchCurrentPrice returns the pool price as token B per token A.
func (s *PoolPriceSource) FetchCurrentPrice(ctx context.Context, pair model.Pair) (float64, error) {
	if !common.IsHexAddress(pair.PoolAddress) {
		return 0, fmt.Errorf("pair %s has no pool address", pair.ID)
	}
	pool := common.HexToAddress(pair.PoolAddress)

	result, err := s.breaker(pair.ID).Execute(func() (interface{}, error) {
		if err := s.resolver.VerifyPair(ctx, pair); err != nil {
			return nil, err
		}
		return s.Slot0(ctx, pool)
	})
	if err != nil {
		return 0, err
	}

	slot0 := result.(model.PoolSlot0)
	sqrt, ok := new(big.Int).SetString(slot0.SqrtPriceX96, 10)
	if !ok {
		return 0, fmt.Errorf("slot0: bad sqrtPriceX96 %q", slot0.SqrtPriceX96)
	}
	price, err := curve.PriceFromSqrtX96(sqrt, pair.TokenA.Decimals, pair.TokenB.Decimals)
	if err != nil {
		return 0, fmt.Errorf("pair %s: %w", pair.ID, err)
	}
	return price, nil
}

// Slot0 reads the pool's current sqrt price and tick.
func (s *PoolPriceSource) Slot0(ctx context.Context, pool common.Address) (model.PoolSlot0, error) {
	parsed, err := PoolABI()
	if err != nil {
		return model.PoolSlot0{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := s.reader.call(ctx, pool, parsed, "slot0")
	if err != nil {
		return model.PoolSlot0{}, err
	}
	if len(values) < 2 {
		return model.PoolSlot0{}, fmt.Errorf("slot0: expected 7 outputs, got %d", len(values))
	}
	sqrt, err := asBigInt(values[0])
	if err != nil {
		return model.PoolSlot0{}, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	tick, err := asInt24(values[1])
	if err != nil {
		return model.PoolSlot0{}, fmt.Errorf("tick: %w", err)
	}
	return model.PoolSlot0{SqrtPriceX96: sqrt.String(), Tick: tick}, nil
}

func (s *PoolPriceSource) breaker(pairID string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[pairID]; ok {
		return cb
	}
	settings := gobreaker.Settings{
		Name:     "price:" + pairID,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("price breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	cb := gobreaker.NewCircuitBreaker(settings)
	s.breakers[pairID] = cb
	return cb
}
