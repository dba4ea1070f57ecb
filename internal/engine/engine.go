// Package engine evaluates concentrated-liquidity positions: it turns live or
// simulated positions into token composition, delta and hedge reports.
// Every operation is a pure function of its inputs and the immutable registry.
package engine

import (
	"fmt"

	"deltaHedge/internal/curve"
	"deltaHedge/internal/hedge"
	"deltaHedge/internal/model"
	"deltaHedge/internal/registry"
)

// Engine is safe for concurrent use; it holds only the read-only registry.
type Engine struct {
	registry *registry.Registry
}

// New builds an engine over a pair registry.
func New(reg *registry.Registry) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	return &Engine{registry: reg}, nil
}

// Pairs returns the available pairs in registry order.
func (e *Engine) Pairs() []model.Pair {
	return e.registry.Pairs()
}

// Pair resolves a pair id.
func (e *Engine) Pair(id string) (model.Pair, error) {
	pair, ok := e.registry.Lookup(id)
	if !ok {
		return model.Pair{}, &UnknownPairError{Pair: id}
	}
	return pair, nil
}

// evaluate is the single code path shared by the aggregator and the simulator.
func evaluate(pos model.LiquidityPosition, price float64) (model.PositionReport, error) {
	low, high := pos.Range.Low, pos.Range.High

	amountA, amountB, err := curve.TokenAmounts(pos.Liquidity, low, high, price)
	if err != nil {
		return model.PositionReport{}, err
	}

	delta, err := hedge.ComputeDelta(amountA, amountB, low, high, price)
	if err != nil {
		return model.PositionReport{}, err
	}
	side, notional, err := hedge.ComputeHedge(delta)
	if err != nil {
		return model.PositionReport{}, err
	}

	ticks, err := positionTicks(pos)
	if err != nil {
		return model.PositionReport{}, err
	}

	value := hedge.Value(amountA, amountB, price)
	var shareA float64
	if value > 0 {
		shareA = amountA * price / value
	}

	source := model.EntryPriceUnknown
	if pos.EntryPrice > 0 {
		source = model.EntryPriceSupplied
	}

	return model.PositionReport{
		PositionID:       pos.ID,
		Pair:             pos.Pair,
		Range:            pos.Range,
		Ticks:            ticks,
		Liquidity:        pos.Liquidity,
		EntryPrice:       pos.EntryPrice,
		EntryPriceSource: source,
		EntryToken:       pos.EntryToken,
		CurrentPrice:     price,
		Status:           curve.Status(low, high, price),
		AmountA:          amountA,
		AmountB:          amountB,
		Value:            value,
		ShareA:           shareA,
		Delta:            delta,
		HedgeSide:        side,
		HedgeNotional:    notional,
		HedgeValue:       notional * price,
	}, nil
}

// positionTicks aligns the range to the pair's tick spacing unless the
// position already carries its on-chain ticks. Ranges beyond the tick bounds
// fail with curve.InvalidRangeError.
func positionTicks(pos model.LiquidityPosition) (model.TickRange, error) {
	if pos.Ticks != nil {
		return *pos.Ticks, nil
	}
	lower, upper, err := curve.AlignRange(pos.Range.Low, pos.Range.High, pos.Pair.TickSpacing,
		pos.Pair.TokenA.Decimals, pos.Pair.TokenB.Decimals)
	if err != nil {
		return model.TickRange{}, err
	}
	return model.TickRange{Lower: lower, Upper: upper}, nil
}
