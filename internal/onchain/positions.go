package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"deltaHedge/internal/curve"
	"deltaHedge/internal/model"
	"deltaHedge/internal/registry"
)

const maxPositions = 10_000

// PositionFetcher enumerates a wallet's position NFTs on a
// NonfungiblePositionManager and maps them onto registry pairs.
type PositionFetcher struct {
	reader   contractReader
	manager  common.Address
	registry *registry.Registry
	logger   *zap.Logger
}

func NewPositionFetcher(caller ContractCaller, manager string, reg *registry.Registry, retry RetryPolicy, logger *zap.Logger) (*PositionFetcher, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if !common.IsHexAddress(manager) {
		return nil, fmt.Errorf("invalid position manager address: %q", manager)
	}
	reader := newContractReader(caller, retry, logger)
	return &PositionFetcher{
		reader:   reader,
		manager:  common.HexToAddress(manager),
		registry: reg,
		logger:   reader.logger,
	}, nil
}

type rawPosition struct {
	tokenID   *big.Int
	token0    common.Address
	token1    common.Address
	fee       uint32
	tickLower int32
	tickUpper int32
	liquidity *big.Int
}

// FetchLivePositions returns the wallet's open positions in enumeration order.
// Closed (zero-liquidity) positions and positions on unregistered pools are skipped.
func (f *PositionFetcher) FetchLivePositions(ctx context.Context, wallet string) ([]model.LiquidityPosition, error) {
	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("invalid wallet address: %q", wallet)
	}
	owner := common.HexToAddress(wallet)

	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}

	values, err := f.reader.call(ctx, f.manager, parsed, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	balance, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	if !balance.IsInt64() || balance.Int64() > maxPositions {
		return nil, fmt.Errorf("balanceOf: implausible balance %s", balance.String())
	}

	count := balance.Int64()
	positions := make([]model.LiquidityPosition, 0, count)
	for i := int64(0); i < count; i++ {
		values, err := f.reader.call(ctx, f.manager, parsed, "tokenOfOwnerByIndex", owner, big.NewInt(i))
		if err != nil {
			return nil, err
		}
		tokenID, err := asBigInt(values[0])
		if err != nil {
			return nil, fmt.Errorf("tokenOfOwnerByIndex: %w", err)
		}

		raw, err := f.readPosition(ctx, tokenID)
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", tokenID.String(), err)
		}
		if raw.liquidity.Sign() == 0 {
			continue
		}

		pair, ok := f.registry.FindByTokens(raw.token0, raw.token1, raw.fee)
		if !ok {
			f.logger.Warn("position on unregistered pool",
				zap.String("token_id", tokenID.String()),
				zap.String("token0", raw.token0.Hex()),
				zap.String("token1", raw.token1.Hex()),
				zap.Uint32("fee", raw.fee),
			)
			continue
		}

		low, high, err := curve.RangeAtTicks(raw.tickLower, raw.tickUpper, pair.TokenA.Decimals, pair.TokenB.Decimals)
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", tokenID.String(), err)
		}

		positions = append(positions, model.LiquidityPosition{
			ID:        tokenID.String(),
			Pair:      pair,
			Range:     model.PriceRange{Low: low, High: high},
			Liquidity: curve.LiquidityFromRaw(raw.liquidity, pair.TokenA.Decimals, pair.TokenB.Decimals),
			Ticks:     &model.TickRange{Lower: raw.tickLower, Upper: raw.tickUpper},
		})
	}

	f.logger.Debug("live positions fetched",
		zap.String("wallet", owner.Hex()),
		zap.Int64("nfts", count),
		zap.Int("open", len(positions)),
	)
	return positions, nil
}

func (f *PositionFetcher) readPosition(ctx context.Context, tokenID *big.Int) (rawPosition, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return rawPosition{}, err
	}
	values, err := f.reader.call(ctx, f.manager, parsed, "positions", tokenID)
	if err != nil {
		return rawPosition{}, err
	}
	if len(values) < 8 {
		return rawPosition{}, fmt.Errorf("positions: expected 12 outputs, got %d", len(values))
	}

	out := rawPosition{tokenID: tokenID}
	if out.token0, err = asAddress(values[2]); err != nil {
		return rawPosition{}, fmt.Errorf("token0: %w", err)
	}
	if out.token1, err = asAddress(values[3]); err != nil {
		return rawPosition{}, fmt.Errorf("token1: %w", err)
	}
	fee, err := asBigInt(values[4])
	if err != nil {
		return rawPosition{}, fmt.Errorf("fee: %w", err)
	}
	out.fee = uint32(fee.Uint64())
	if out.tickLower, err = asInt24(values[5]); err != nil {
		return rawPosition{}, fmt.Errorf("tickLower: %w", err)
	}
	if out.tickUpper, err = asInt24(values[6]); err != nil {
		return rawPosition{}, fmt.Errorf("tickUpper: %w", err)
	}
	if out.liquidity, err = asBigInt(values[7]); err != nil {
		return rawPosition{}, fmt.Errorf("liquidity: %w", err)
	}
	return out, nil
}
