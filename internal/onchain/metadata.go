package onchain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"deltaHedge/internal/model"
)

// addressCache holds immutable per-contract metadata. Entries never expire:
// pool tokens, fee, tick spacing and ERC20 decimals cannot change once deployed.
type addressCache[V any] struct {
	mu   sync.RWMutex
	data map[common.Address]V
}

func newAddressCache[V any]() *addressCache[V] {
	return &addressCache[V]{data: make(map[common.Address]V)}
}

func (c *addressCache[V]) get(address common.Address) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[address]
	return v, ok
}

func (c *addressCache[V]) put(address common.Address, v V) {
	c.mu.Lock()
	c.data[address] = v
	c.mu.Unlock()
}

// PoolMismatchError reports a configured pair whose pool does not trade the
// pair's tokens as token0 = token A and token1 = token B, or whose fee tier or
// tick spacing disagree with the pool.
type PoolMismatchError struct {
	Pair  string
	Pool  string
	Field string
	Want  string
	Got   string
}

func (e *PoolMismatchError) Error() string {
	return fmt.Sprintf("pair %s: pool %s %s is %s, pair expects %s", e.Pair, e.Pool, e.Field, e.Got, e.Want)
}

// MetadataResolver loads pool and token metadata, caching immutable fields.
type MetadataResolver struct {
	reader contractReader
	pools  *addressCache[model.PoolMeta]
	tokens *addressCache[model.TokenMeta]
	logger *zap.Logger
}

func NewMetadataResolver(caller ContractCaller, retry RetryPolicy, logger *zap.Logger) *MetadataResolver {
	reader := newContractReader(caller, retry, logger)
	return &MetadataResolver{
		reader: reader,
		pools:  newAddressCache[model.PoolMeta](),
		tokens: newAddressCache[model.TokenMeta](),
		logger: reader.logger,
	}
}

// PoolMeta loads token0/token1/fee/tickSpacing for a pool.
func (r *MetadataResolver) PoolMeta(ctx context.Context, pool common.Address) (model.PoolMeta, error) {
	if meta, ok := r.pools.get(pool); ok {
		return meta, nil
	}

	parsed, err := PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := r.reader.call(ctx, pool, parsed, "token0")
	if err != nil {
		return model.PoolMeta{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("token0: %w", err)
	}

	values, err = r.reader.call(ctx, pool, parsed, "token1")
	if err != nil {
		return model.PoolMeta{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("token1: %w", err)
	}

	values, err = r.reader.call(ctx, pool, parsed, "fee")
	if err != nil {
		return model.PoolMeta{}, err
	}
	fee, err := asBigInt(values[0])
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("fee: %w", err)
	}

	values, err = r.reader.call(ctx, pool, parsed, "tickSpacing")
	if err != nil {
		return model.PoolMeta{}, err
	}
	spacing, err := asInt24(values[0])
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("tick spacing: %w", err)
	}

	meta := model.PoolMeta{
		Token0:      token0.Hex(),
		Token1:      token1.Hex(),
		Fee:         uint32(fee.Uint64()),
		TickSpacing: spacing,
	}
	r.pools.put(pool, meta)
	return meta, nil
}

// TokenMeta loads ERC20 decimals, symbol and name. Decimals are required;
// symbol and name fall back to the bytes32 encoding and are otherwise left empty.
func (r *MetadataResolver) TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	if meta, ok := r.tokens.get(token); ok {
		return meta, nil
	}
	meta := model.TokenMeta{Address: token.Hex()}

	stringABI, err := erc20StringABI.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32ABI.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := r.reader.call(ctx, token, stringABI, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals: unsupported type %T", values[0])
	}
	meta.Decimals = decimals

	readText := func(method string) string {
		if values, err := r.reader.call(ctx, token, stringABI, method); err == nil {
			if s, ok := values[0].(string); ok {
				return s
			}
		}
		values, err := r.reader.call(ctx, token, bytes32ABI, method)
		if err != nil {
			r.logger.Debug("token metadata call failed", zap.String("token", token.Hex()), zap.String("method", method), zap.Error(err))
			return ""
		}
		s, _ := bytes32ToString(values[0])
		return s
	}
	meta.Symbol = readText("symbol")
	meta.Name = readText("name")

	r.tokens.put(token, meta)
	return meta, nil
}

// ResolvePair builds a catalog pair for a pool: token A is token0 and token B
// token1. An empty id derives one from the token symbols.
func (r *MetadataResolver) ResolvePair(ctx context.Context, id string, pool common.Address) (model.Pair, error) {
	meta, err := r.PoolMeta(ctx, pool)
	if err != nil {
		return model.Pair{}, fmt.Errorf("pool %s: %w", pool.Hex(), err)
	}
	tokenA, err := r.TokenMeta(ctx, common.HexToAddress(meta.Token0))
	if err != nil {
		return model.Pair{}, fmt.Errorf("token0 %s: %w", meta.Token0, err)
	}
	tokenB, err := r.TokenMeta(ctx, common.HexToAddress(meta.Token1))
	if err != nil {
		return model.Pair{}, fmt.Errorf("token1 %s: %w", meta.Token1, err)
	}
	if tokenA.Symbol == "" || tokenB.Symbol == "" {
		return model.Pair{}, fmt.Errorf("pool %s: token symbols unavailable", pool.Hex())
	}

	id = strings.TrimSpace(id)
	if id == "" {
		id = strings.ToUpper(tokenA.Symbol + "/" + tokenB.Symbol)
	}
	return model.Pair{
		ID:          id,
		PoolAddress: pool.Hex(),
		TokenA:      tokenA,
		TokenB:      tokenB,
		TickSpacing: meta.TickSpacing,
		FeeTier:     meta.Fee,
	}, nil
}

// VerifyPair checks that pair's pool quotes token B per token A: token0 must
// be token A and token1 token B. Fee tier and tick spacing are compared when
// the pair sets them. Pairs without a pool address are not checked.
func (r *MetadataResolver) VerifyPair(ctx context.Context, pair model.Pair) error {
	if pair.PoolAddress == "" {
		return nil
	}
	if !common.IsHexAddress(pair.PoolAddress) {
		return fmt.Errorf("pair %s: invalid pool address %q", pair.ID, pair.PoolAddress)
	}
	if !common.IsHexAddress(pair.TokenA.Address) || !common.IsHexAddress(pair.TokenB.Address) {
		return fmt.Errorf("pair %s: token addresses are required to check pool %s", pair.ID, pair.PoolAddress)
	}

	pool := common.HexToAddress(pair.PoolAddress)
	meta, err := r.PoolMeta(ctx, pool)
	if err != nil {
		return fmt.Errorf("pair %s: pool %s: %w", pair.ID, pool.Hex(), err)
	}

	mismatch := func(field, want, got string) error {
		return &PoolMismatchError{Pair: pair.ID, Pool: pool.Hex(), Field: field, Want: want, Got: got}
	}
	tokenA, tokenB := common.HexToAddress(pair.TokenA.Address), common.HexToAddress(pair.TokenB.Address)
	if got := common.HexToAddress(meta.Token0); got != tokenA {
		return mismatch("token0", tokenA.Hex(), got.Hex())
	}
	if got := common.HexToAddress(meta.Token1); got != tokenB {
		return mismatch("token1", tokenB.Hex(), got.Hex())
	}
	if pair.FeeTier != 0 && pair.FeeTier != meta.Fee {
		return mismatch("fee", fmt.Sprint(pair.FeeTier), fmt.Sprint(meta.Fee))
	}
	if pair.TickSpacing != 0 && pair.TickSpacing != meta.TickSpacing {
		return mismatch("tick spacing", fmt.Sprint(pair.TickSpacing), fmt.Sprint(meta.TickSpacing))
	}
	return nil
}
