package curve

import (
	"fmt"
	"math"
	"math/big"
)

const (
	MinTick int32 = -887272
	MaxTick int32 = -MinTick
	// tickBase is the price ratio between adjacent ticks.
	tickBase = 1.0001
)

// Q96 is 2^96, the fixed-point scale of sqrtPriceX96.
var Q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// PriceAtTick converts a tick into a human price (token B per token A).
func PriceAtTick(tick int32, decimalsA, decimalsB uint8) float64 {
	return math.Pow(tickBase, float64(tick)) * decimalsScale(decimalsA, decimalsB)
}

// TickBoundsError reports a price whose tick falls outside [MinTick, MaxTick].
type TickBoundsError struct {
	Price float64
}

func (e *TickBoundsError) Error() string {
	return fmt.Sprintf("price %g outside tick bounds [%d, %d]", e.Price, MinTick, MaxTick)
}

// TickAtPrice returns the greatest tick whose price is <= price.
func TickAtPrice(price float64, decimalsA, decimalsB uint8) (int32, error) {
	if err := ValidatePrice(price); err != nil {
		return 0, err
	}
	raw := price / decimalsScale(decimalsA, decimalsB)
	tick := math.Floor(math.Log(raw) / math.Log(tickBase))
	// Correct float drift at exact tick prices.
	if PriceAtTick(int32(tick)+1, decimalsA, decimalsB) <= price*(1+1e-12) && tick+1 <= float64(MaxTick) {
		tick++
	}
	if tick < float64(MinTick) || tick > float64(MaxTick) {
		return 0, &TickBoundsError{Price: price}
	}
	return int32(tick), nil
}

// AlignRange maps a price range onto initializable ticks for the given
// spacing: the lower bound rounds down and the upper bound rounds up.
// A bound beyond the tick bounds fails with InvalidRangeError.
func AlignRange(low, high float64, spacing int32, decimalsA, decimalsB uint8) (int32, int32, error) {
	if err := ValidateRange(low, high); err != nil {
		return 0, 0, err
	}
	if spacing <= 0 {
		return 0, 0, fmt.Errorf("tick spacing must be positive, got %d", spacing)
	}

	lowerTick, err := TickAtPrice(low, decimalsA, decimalsB)
	if err != nil {
		return 0, 0, &InvalidRangeError{Low: low, High: high, Reason: err.Error()}
	}
	upperTick, err := TickAtPrice(high, decimalsA, decimalsB)
	if err != nil {
		return 0, 0, &InvalidRangeError{Low: low, High: high, Reason: err.Error()}
	}
	if PriceAtTick(upperTick, decimalsA, decimalsB) < high*(1-1e-12) {
		upperTick++
	}

	lower := floorDiv(lowerTick, spacing) * spacing
	upper := -floorDiv(-upperTick, spacing) * spacing
	if upper <= lower {
		upper = lower + spacing
	}
	if lower < MinTick {
		lower = -floorDiv(-MinTick, spacing) * spacing
	}
	if upper > MaxTick {
		upper = floorDiv(MaxTick, spacing) * spacing
	}
	return lower, upper, nil
}

// RangeAtTicks converts a tick interval into a price range.
func RangeAtTicks(lower, upper int32, decimalsA, decimalsB uint8) (float64, float64, error) {
	if lower >= upper {
		return 0, 0, fmt.Errorf("tick lower %d must be below tick upper %d", lower, upper)
	}
	if lower < MinTick || upper > MaxTick {
		return 0, 0, fmt.Errorf("ticks [%d, %d] outside bounds", lower, upper)
	}
	return PriceAtTick(lower, decimalsA, decimalsB), PriceAtTick(upper, decimalsA, decimalsB), nil
}

// PriceFromSqrtX96 converts a pool sqrtPriceX96 into a human price.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, decimalsA, decimalsB uint8) (float64, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0, fmt.Errorf("sqrt price must be positive")
	}
	ratio := new(big.Float).SetInt(sqrtPriceX96)
	ratio.Quo(ratio, Q96)
	ratio.Mul(ratio, ratio)
	raw, _ := ratio.Float64()
	price := raw * decimalsScale(decimalsA, decimalsB)
	if err := ValidatePrice(price); err != nil {
		return 0, err
	}
	return price, nil
}

// LiquidityFromRaw converts on-chain liquidity (in raw token units) into the
// human-unit liquidity used by TokenAmounts.
func LiquidityFromRaw(raw *big.Int, decimalsA, decimalsB uint8) float64 {
	if raw == nil || raw.Sign() <= 0 {
		return 0
	}
	value, _ := new(big.Float).SetInt(raw).Float64()
	return value / math.Pow(10, (float64(decimalsA)+float64(decimalsB))/2)
}

func decimalsScale(decimalsA, decimalsB uint8) float64 {
	return math.Pow(10, float64(decimalsA)-float64(decimalsB))
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
