// Package hedge derives a concentrated-liquidity position's delta and the
// linear token A hedge that neutralises it. Token B is the numeraire.
package hedge

import (
	"fmt"
	"math"

	"deltaHedge/internal/model"
)

// ComputationError signals an internal-consistency failure: inputs that the
// curve math should never produce. It is a programming error, not a user error.
type ComputationError struct {
	Op     string
	Reason string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation error in %s: %s", e.Op, e.Reason)
}

// Value returns the position value in token B.
func Value(amountA, amountB, price float64) float64 {
	return amountA*price + amountB
}

// ComputeDelta returns d(value)/d(price) in token A units.
//
// The baseline contract is delta == amountA: in range the token A holdings are
// the first-order price exposure; below range the position is entirely token A
// so the full holding is exposed; above range it is pure token B and delta is 0.
func ComputeDelta(amountA, amountB, low, high, price float64) (float64, error) {
	inputs := []struct {
		name  string
		value float64
	}{
		{"amountA", amountA},
		{"amountB", amountB},
		{"rangeLow", low},
		{"rangeHigh", high},
		{"price", price},
	}
	for _, in := range inputs {
		if math.IsNaN(in.value) || math.IsInf(in.value, 0) {
			return 0, &ComputationError{Op: "delta", Reason: in.name + " is not finite"}
		}
	}
	if amountA < 0 || amountB < 0 {
		return 0, &ComputationError{Op: "delta", Reason: fmt.Sprintf("negative amounts (%g, %g)", amountA, amountB)}
	}
	if price >= high {
		return 0, nil
	}
	return amountA, nil
}

// ComputeHedge returns the offsetting position for a delta: a positive delta
// is hedged short, a negative one long. The notional is in token A units.
func ComputeHedge(delta float64) (model.HedgeSide, float64, error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return model.HedgeFlat, 0, &ComputationError{Op: "hedge", Reason: "delta is not finite"}
	}
	switch {
	case delta > 0:
		return model.HedgeShort, delta, nil
	case delta < 0:
		return model.HedgeLong, -delta, nil
	default:
		return model.HedgeFlat, 0, nil
	}
}
