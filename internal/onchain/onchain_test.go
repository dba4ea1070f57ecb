package onchain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"deltaHedge/internal/curve"
	"deltaHedge/internal/model"
	"deltaHedge/internal/registry"
)

var (
	managerAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	poolAddr    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	wethAddr    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	usdcAddr    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	otherAddr   = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	walletAddr  = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

type fakeCaller struct {
	t         *testing.T
	mu        sync.Mutex
	responses map[string][]byte
	failures  map[string]int
	calls     int
}

func newFakeCaller(t *testing.T) *fakeCaller {
	return &fakeCaller{t: t, responses: make(map[string][]byte), failures: make(map[string]int)}
}

func callKey(to common.Address, data []byte) string {
	return to.Hex() + ":" + hexutil.Encode(data)
}

func (f *fakeCaller) expect(to common.Address, parsed abi.ABI, method string, args []interface{}, outputs ...interface{}) string {
	f.t.Helper()
	input, err := parsed.Pack(method, args...)
	if err != nil {
		f.t.Fatalf("pack %s input: %v", method, err)
	}
	output, err := parsed.Methods[method].Outputs.Pack(outputs...)
	if err != nil {
		f.t.Fatalf("pack %s output: %v", method, err)
	}
	key := callKey(to, input)
	f.responses[key] = output
	return key
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	key := callKey(*msg.To, msg.Data)
	if n := f.failures[key]; n > 0 {
		f.failures[key] = n - 1
		return nil, fmt.Errorf("rpc unavailable")
	}
	resp, ok := f.responses[key]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return resp, nil
}

func testPair() model.Pair {
	return model.Pair{
		ID:          "WETH/USDC",
		PoolAddress: poolAddr.Hex(),
		TokenA:      model.TokenMeta{Address: wethAddr.Hex(), Symbol: "WETH", Decimals: 18},
		TokenB:      model.TokenMeta{Address: usdcAddr.Hex(), Symbol: "USDC", Decimals: 6},
		TickSpacing: 10,
		FeeTier:     500,
	}
}

func mustABI(t *testing.T, get func() (abi.ABI, error)) abi.ABI {
	t.Helper()
	parsed, err := get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	return parsed
}

func expectPosition(caller *fakeCaller, manager abi.ABI, index int64, tokenID int64, token0, token1 common.Address, fee int64, lower, upper int64, liquidity *big.Int) {
	caller.expect(managerAddr, manager, "tokenOfOwnerByIndex", []interface{}{walletAddr, big.NewInt(index)}, big.NewInt(tokenID))
	caller.expect(managerAddr, manager, "positions", []interface{}{big.NewInt(tokenID)},
		big.NewInt(0),
		common.Address{},
		token0,
		token1,
		big.NewInt(fee),
		big.NewInt(lower),
		big.NewInt(upper),
		liquidity,
		big.NewInt(0),
		big.NewInt(0),
		big.NewInt(0),
		big.NewInt(0),
	)
}

func TestFetchLivePositions(t *testing.T) {
	manager := mustABI(t, PositionManagerABI)
	caller := newFakeCaller(t)

	reg, err := registry.New([]model.Pair{testPair()})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	liquidity, _ := new(big.Int).SetString("1500000000000000", 10)
	caller.expect(managerAddr, manager, "balanceOf", []interface{}{walletAddr}, big.NewInt(3))
	expectPosition(caller, manager, 0, 11, wethAddr, usdcAddr, 500, -201000, -199000, liquidity)
	expectPosition(caller, manager, 1, 12, wethAddr, usdcAddr, 500, -201000, -199000, big.NewInt(0))
	expectPosition(caller, manager, 2, 13, wethAddr, otherAddr, 3000, -60, 60, liquidity)

	fetcher, err := NewPositionFetcher(caller, managerAddr.Hex(), reg, RetryPolicy{}, zap.NewNop())
	if err != nil {
		t.Fatalf("fetcher: %v", err)
	}

	positions, err := fetcher.FetchLivePositions(context.Background(), walletAddr.Hex())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 open registered position, got %d", len(positions))
	}

	pos := positions[0]
	if pos.ID != "11" || pos.Pair.ID != "WETH/USDC" {
		t.Fatalf("unexpected position: %+v", pos)
	}
	if pos.Ticks == nil || pos.Ticks.Lower != -201000 || pos.Ticks.Upper != -199000 {
		t.Fatalf("ticks mismatch: %+v", pos.Ticks)
	}
	low, high, _ := curve.RangeAtTicks(-201000, -199000, 18, 6)
	if pos.Range.Low != low || pos.Range.High != high {
		t.Fatalf("range mismatch: %+v", pos.Range)
	}
	if pos.Range.Low < 1800 || pos.Range.High > 2300 {
		t.Fatalf("range not near ETH/USDC prices: %+v", pos.Range)
	}
	if want := curve.LiquidityFromRaw(liquidity, 18, 6); pos.Liquidity != want {
		t.Fatalf("liquidity mismatch: got %v want %v", pos.Liquidity, want)
	}
	if pos.EntryPrice != 0 || pos.EntryToken != "" {
		t.Fatalf("live positions carry no entry data: %+v", pos)
	}
}

func TestFetchLivePositionsRejectsBadWallet(t *testing.T) {
	reg, _ := registry.New([]model.Pair{testPair()})
	fetcher, err := NewPositionFetcher(newFakeCaller(t), managerAddr.Hex(), reg, RetryPolicy{}, nil)
	if err != nil {
		t.Fatalf("fetcher: %v", err)
	}
	if _, err := fetcher.FetchLivePositions(context.Background(), "not-a-wallet"); err == nil {
		t.Fatalf("expected error for invalid wallet")
	}
}

func TestFetchLivePositionsPropagatesCallFailure(t *testing.T) {
	reg, _ := registry.New([]model.Pair{testPair()})
	fetcher, err := NewPositionFetcher(newFakeCaller(t), managerAddr.Hex(), reg, RetryPolicy{}, nil)
	if err != nil {
		t.Fatalf("fetcher: %v", err)
	}
	if _, err := fetcher.FetchLivePositions(context.Background(), walletAddr.Hex()); err == nil {
		t.Fatalf("expected balanceOf failure")
	}
}

func sqrtPriceX96For(price float64, decimalsA, decimalsB uint8) *big.Int {
	raw := price / math.Pow(10, float64(decimalsA)-float64(decimalsB))
	value := new(big.Float).Mul(big.NewFloat(math.Sqrt(raw)), curve.Q96)
	out, _ := value.Int(nil)
	return out
}

func expectSlot0(caller *fakeCaller, pool abi.ABI, sqrt *big.Int, tick int64) string {
	return caller.expect(poolAddr, pool, "slot0", nil,
		sqrt, big.NewInt(tick), uint16(0), uint16(1), uint16(1), uint8(0), true)
}

func expectPoolMeta(caller *fakeCaller, pool abi.ABI, token0, token1 common.Address, fee, spacing int64) {
	caller.expect(poolAddr, pool, "token0", nil, token0)
	caller.expect(poolAddr, pool, "token1", nil, token1)
	caller.expect(poolAddr, pool, "fee", nil, big.NewInt(fee))
	caller.expect(poolAddr, pool, "tickSpacing", nil, big.NewInt(spacing))
}

func TestPoolPriceSource(t *testing.T) {
	pool := mustABI(t, PoolABI)
	caller := newFakeCaller(t)
	expectPoolMeta(caller, pool, wethAddr, usdcAddr, 500, 10)
	expectSlot0(caller, pool, sqrtPriceX96For(2000, 18, 6), -200311)

	source := NewPoolPriceSource(caller, RetryPolicy{}, zap.NewNop())
	price, err := source.FetchCurrentPrice(context.Background(), testPair())
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if math.Abs(price-2000)/2000 > 1e-9 {
		t.Fatalf("price mismatch: %v", price)
	}

	slot0, err := source.Slot0(context.Background(), poolAddr)
	if err != nil {
		t.Fatalf("slot0: %v", err)
	}
	if slot0.Tick != -200311 {
		t.Fatalf("tick mismatch: %d", slot0.Tick)
	}
}

func TestPoolPriceSourceRequiresPoolAddress(t *testing.T) {
	pair := testPair()
	pair.PoolAddress = ""
	source := NewPoolPriceSource(newFakeCaller(t), RetryPolicy{}, nil)
	if _, err := source.FetchCurrentPrice(context.Background(), pair); err == nil {
		t.Fatalf("expected error without pool address")
	}
}

func TestPoolPriceSourceRetries(t *testing.T) {
	pool := mustABI(t, PoolABI)
	caller := newFakeCaller(t)
	expectPoolMeta(caller, pool, wethAddr, usdcAddr, 500, 10)
	key := expectSlot0(caller, pool, sqrtPriceX96For(2000, 18, 6), -200311)
	caller.failures[key] = 2

	core, logs := observer.New(zapcore.WarnLevel)
	source := NewPoolPriceSource(caller, RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}, zap.New(core))
	if _, err := source.FetchCurrentPrice(context.Background(), testPair()); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	// four pool metadata reads plus three slot0 attempts
	if caller.calls != 7 {
		t.Fatalf("expected 7 calls, got %d", caller.calls)
	}

	retries := logs.FilterMessage("rpc call retry").All()
	if len(retries) != 2 {
		t.Fatalf("expected 2 retry logs, got %d", len(retries))
	}
	for i, entry := range retries {
		fields := entry.ContextMap()
		if fields["method"] != "slot0" || fields["attempt"] != int64(i+1) || fields["contract"] != poolAddr.Hex() {
			t.Fatalf("unexpected retry log fields: %v", fields)
		}
	}
}

func TestPoolPriceSourceRejectsReversedPool(t *testing.T) {
	pool := mustABI(t, PoolABI)
	caller := newFakeCaller(t)
	// token0 is USDC, so slot0 quotes WETH per USDC
	expectPoolMeta(caller, pool, usdcAddr, wethAddr, 500, 10)
	expectSlot0(caller, pool, sqrtPriceX96For(1.0/2000, 6, 18), 200311)

	source := NewPoolPriceSource(caller, RetryPolicy{}, zap.NewNop())
	price, err := source.FetchCurrentPrice(context.Background(), testPair())
	var mismatch *PoolMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected PoolMismatchError, got price=%v err=%v", price, err)
	}
	if mismatch.Field != "token0" || mismatch.Got != usdcAddr.Hex() || mismatch.Want != wethAddr.Hex() {
		t.Fatalf("unexpected mismatch detail: %+v", mismatch)
	}
	if err := source.VerifyPair(context.Background(), testPair()); !errors.As(err, &mismatch) {
		t.Fatalf("VerifyPair should refuse the reversed pool, got %v", err)
	}
}

func TestVerifyPair(t *testing.T) {
	pool := mustABI(t, PoolABI)
	caller := newFakeCaller(t)
	expectPoolMeta(caller, pool, wethAddr, usdcAddr, 500, 10)
	resolver := NewMetadataResolver(caller, RetryPolicy{}, zap.NewNop())
	ctx := context.Background()

	if err := resolver.VerifyPair(ctx, testPair()); err != nil {
		t.Fatalf("matching pool: %v", err)
	}

	var mismatch *PoolMismatchError
	pair := testPair()
	pair.FeeTier = 3000
	if err := resolver.VerifyPair(ctx, pair); !errors.As(err, &mismatch) || mismatch.Field != "fee" {
		t.Fatalf("expected fee mismatch, got %v", err)
	}

	pair = testPair()
	pair.TickSpacing = 60
	if err := resolver.VerifyPair(ctx, pair); !errors.As(err, &mismatch) || mismatch.Field != "tick spacing" {
		t.Fatalf("expected tick spacing mismatch, got %v", err)
	}

	pair = testPair()
	pair.TokenA, pair.TokenB = pair.TokenB, pair.TokenA
	if err := resolver.VerifyPair(ctx, pair); !errors.As(err, &mismatch) || mismatch.Field != "token0" {
		t.Fatalf("expected token0 mismatch, got %v", err)
	}

	pair = testPair()
	pair.TokenA.Address = ""
	if err := resolver.VerifyPair(ctx, pair); err == nil {
		t.Fatalf("expected error without token addresses")
	}

	pair = testPair()
	pair.PoolAddress = ""
	if err := resolver.VerifyPair(ctx, pair); err != nil {
		t.Fatalf("pairs without a pool are not checked: %v", err)
	}
}

func TestPoolPriceSourceBreakerOpens(t *testing.T) {
	caller := newFakeCaller(t)
	source := NewPoolPriceSource(caller, RetryPolicy{}, nil)

	for i := 0; i < 3; i++ {
		if _, err := source.FetchCurrentPrice(context.Background(), testPair()); err == nil {
			t.Fatalf("expected failure %d", i)
		}
	}
	callsBefore := caller.calls

	_, err := source.FetchCurrentPrice(context.Background(), testPair())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if caller.calls != callsBefore {
		t.Fatalf("open breaker must not reach the caller")
	}
}

func TestResolvePair(t *testing.T) {
	pool := mustABI(t, PoolABI)
	erc20 := mustABI(t, ERC20ABI)
	bytes32ABI := mustABI(t, erc20Bytes32ABI.get)
	caller := newFakeCaller(t)

	caller.expect(poolAddr, pool, "token0", nil, wethAddr)
	caller.expect(poolAddr, pool, "token1", nil, usdcAddr)
	caller.expect(poolAddr, pool, "fee", nil, big.NewInt(500))
	caller.expect(poolAddr, pool, "tickSpacing", nil, big.NewInt(10))

	caller.expect(wethAddr, erc20, "decimals", nil, uint8(18))
	caller.expect(wethAddr, erc20, "symbol", nil, "WETH")
	caller.expect(wethAddr, erc20, "name", nil, "Wrapped Ether")

	var symbol [32]byte
	copy(symbol[:], "USDC")
	caller.expect(usdcAddr, erc20, "decimals", nil, uint8(6))
	caller.expect(usdcAddr, bytes32ABI, "symbol", nil, symbol)

	resolver := NewMetadataResolver(caller, RetryPolicy{}, zap.NewNop())
	pair, err := resolver.ResolvePair(context.Background(), "", poolAddr)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if pair.ID != "WETH/USDC" {
		t.Fatalf("derived id mismatch: %s", pair.ID)
	}
	if pair.TokenA.Decimals != 18 || pair.TokenB.Decimals != 6 {
		t.Fatalf("decimals mismatch: %+v", pair)
	}
	if pair.TokenA.Name != "Wrapped Ether" || pair.TokenB.Symbol != "USDC" || pair.TokenB.Name != "" {
		t.Fatalf("token metadata mismatch: %+v %+v", pair.TokenA, pair.TokenB)
	}
	if pair.FeeTier != 500 || pair.TickSpacing != 10 || pair.PoolAddress != poolAddr.Hex() {
		t.Fatalf("pool metadata mismatch: %+v", pair)
	}

	calls := caller.calls
	if _, err := resolver.ResolvePair(context.Background(), "eth", poolAddr); err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if caller.calls != calls {
		t.Fatalf("expected cached metadata, got %d new calls", caller.calls-calls)
	}
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour}
	err := policy.run(ctx, zap.NewNop(), "slot0", func(context.Context) error {
		attempts++
		cancel()
		return fmt.Errorf("boom")
	})
	if err == nil || attempts != 1 {
		t.Fatalf("expected single attempt after cancel, got %d (%v)", attempts, err)
	}
}

func TestRetryPolicyGivesUp(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	attempts := 0
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
	err := policy.run(context.Background(), zap.New(core), "balanceOf", func(context.Context) error {
		attempts++
		return fmt.Errorf("rpc unavailable")
	})
	if err == nil || attempts != 3 {
		t.Fatalf("expected 3 attempts and an error, got %d (%v)", attempts, err)
	}
	if n := logs.FilterField(zap.String("method", "balanceOf")).Len(); n != 2 {
		t.Fatalf("expected a retry log per retried attempt, got %d", n)
	}
}
