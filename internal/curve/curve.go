// Package curve implements concentrated-liquidity bonding-curve arithmetic
// in float64. Results are analytical estimates, not settlement amounts, so no
// fixed-point truncation is applied; callers round for display.
package curve

import (
	"fmt"
	"math"

	"deltaHedge/internal/hedge"
	"deltaHedge/internal/model"
)

// InvalidRangeError reports a price range with low >= high or a non-positive
// bound. Reason is set when the bounds are ordered but still unusable.
type InvalidRangeError struct {
	Low    float64
	High   float64
	Reason string
}

func (e *InvalidRangeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid range: low %g, high %g (%s)", e.Low, e.High, e.Reason)
	}
	return fmt.Sprintf("invalid range: low %g, high %g (need 0 < low < high)", e.Low, e.High)
}

// InvalidPriceError reports a non-positive or non-finite price.
type InvalidPriceError struct {
	Price float64
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price: %g (need finite price > 0)", e.Price)
}

// ValidateRange checks 0 < low < high with both bounds finite.
func ValidateRange(low, high float64) error {
	if !isFinite(low) || !isFinite(high) || low <= 0 || high <= 0 || low >= high {
		return &InvalidRangeError{Low: low, High: high}
	}
	return nil
}

// ValidatePrice checks that price is finite and strictly positive.
func ValidatePrice(price float64) error {
	if !isFinite(price) || price <= 0 {
		return &InvalidPriceError{Price: price}
	}
	return nil
}

// Status locates price relative to [low, high]. Prices on a bound count as out of range.
func Status(low, high, price float64) model.RangeStatus {
	switch {
	case price <= low:
		return model.RangeBelow
	case price >= high:
		return model.RangeAbove
	default:
		return model.RangeInRange
	}
}

// TokenAmounts returns the token A and token B holdings of liquidity over
// [low, high] at price.
//
//	price <= low:        all token A
//	price >= high:       all token B
//	low < price < high:  A = L*(sqrt(high)-sqrt(p))/(sqrt(p)*sqrt(high)), B = L*(sqrt(p)-sqrt(low))
func TokenAmounts(liquidity, low, high, price float64) (float64, float64, error) {
	if err := ValidateRange(low, high); err != nil {
		return 0, 0, err
	}
	if err := ValidatePrice(price); err != nil {
		return 0, 0, err
	}
	if !isFinite(liquidity) || liquidity < 0 {
		return 0, 0, &hedge.ComputationError{Op: "tokenAmounts", Reason: fmt.Sprintf("liquidity %g is negative or not finite", liquidity)}
	}

	a, b := perUnit(low, high, price)
	return liquidity * a, liquidity * b, nil
}

// LiquidityForAmounts inverts TokenAmounts for a deposit of amount units of
// the entry token at price. It fails when the position would hold none of the
// entry token at that price, since no liquidity reproduces such a deposit.
func LiquidityForAmounts(amount, low, high, price float64, entry model.TokenSide) (float64, error) {
	if err := ValidateRange(low, high); err != nil {
		return 0, err
	}
	if err := ValidatePrice(price); err != nil {
		return 0, err
	}
	if !isFinite(amount) || amount <= 0 {
		return 0, &hedge.ComputationError{Op: "liquidityForAmounts", Reason: fmt.Sprintf("amount %g is not finite and positive", amount)}
	}

	a, b := perUnit(low, high, price)
	perLiquidity := a
	if entry == model.TokenB {
		perLiquidity = b
	}
	if perLiquidity <= 0 {
		return 0, &NoEntryTokenError{Side: entry, Status: Status(low, high, price)}
	}
	return amount / perLiquidity, nil
}

// NoEntryTokenError reports a deposit in a token the position cannot hold at
// the entry price (token B below range, token A above range).
type NoEntryTokenError struct {
	Side   model.TokenSide
	Status model.RangeStatus
}

func (e *NoEntryTokenError) Error() string {
	return fmt.Sprintf("position holds no token %s when price is %s range", e.Side, statusWord(e.Status))
}

// perUnit returns holdings for one unit of liquidity.
func perUnit(low, high, price float64) (float64, float64) {
	sqrtLow := math.Sqrt(low)
	sqrtHigh := math.Sqrt(high)

	switch Status(low, high, price) {
	case model.RangeBelow:
		return (sqrtHigh - sqrtLow) / (sqrtLow * sqrtHigh), 0
	case model.RangeAbove:
		return 0, sqrtHigh - sqrtLow
	}

	sqrtPrice := math.Sqrt(price)
	a := (sqrtHigh - sqrtPrice) / (sqrtPrice * sqrtHigh)
	b := sqrtPrice - sqrtLow
	return a, b
}

func statusWord(status model.RangeStatus) string {
	switch status {
	case model.RangeBelow:
		return "below"
	case model.RangeAbove:
		return "above"
	default:
		return "inside"
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
