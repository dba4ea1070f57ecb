package engine

import (
	"errors"

	"deltaHedge/internal/curve"
	"deltaHedge/internal/model"
)

// SimulationID is the position id carried by simulated reports.
const SimulationID = "simulation"

// Simulate builds a hypothetical position from req and reports it at
// currentPrice. Liquidity is derived at req.EntryPrice, or at currentPrice
// when no entry price is supplied; the report's EntryPriceSource says which.
func (e *Engine) Simulate(req SimulationRequest, currentPrice float64) (model.PositionReport, error) {
	pos, defaulted, err := e.SimulatedPosition(req, currentPrice)
	if err != nil {
		return model.PositionReport{}, err
	}

	report, err := evaluate(pos, currentPrice)
	if err != nil {
		return model.PositionReport{}, err
	}
	if defaulted {
		report.EntryPriceSource = model.EntryPriceCurrent
	}
	return report, nil
}

// SimulatedPosition validates req and constructs the position it describes.
// The boolean reports whether the entry price defaulted to currentPrice.
func (e *Engine) SimulatedPosition(req SimulationRequest, currentPrice float64) (model.LiquidityPosition, bool, error) {
	pair, err := e.Pair(req.Pair)
	if err != nil {
		return model.LiquidityPosition{}, false, err
	}

	for _, field := range []struct {
		name  string
		value float64
	}{
		{"rangeLow", req.RangeLow},
		{"rangeHigh", req.RangeHigh},
		{"amount", req.Amount},
	} {
		if err := checkPositive(field.name, field.value); err != nil {
			return model.LiquidityPosition{}, false, err
		}
	}

	side, ok := pair.Side(req.EntryToken)
	if !ok {
		return model.LiquidityPosition{}, false, &InvalidTokenError{
			Token:   req.EntryToken,
			Pair:    pair.ID,
			Allowed: []string{pair.TokenA.Symbol, pair.TokenB.Symbol},
		}
	}

	if err := curve.ValidateRange(req.RangeLow, req.RangeHigh); err != nil {
		return model.LiquidityPosition{}, false, err
	}
	if err := curve.ValidatePrice(currentPrice); err != nil {
		return model.LiquidityPosition{}, false, err
	}

	entryPrice, defaulted := req.EntryPrice, false
	if entryPrice == 0 {
		entryPrice, defaulted = currentPrice, true
	} else if err := checkPositive("entryPrice", entryPrice); err != nil {
		return model.LiquidityPosition{}, false, err
	}

	liquidity, err := curve.LiquidityForAmounts(req.Amount, req.RangeLow, req.RangeHigh, entryPrice, side)
	if err != nil {
		var noEntry *curve.NoEntryTokenError
		if errors.As(err, &noEntry) {
			return model.LiquidityPosition{}, false, &ValidationError{Field: "entryToken", Reason: err.Error()}
		}
		return model.LiquidityPosition{}, false, err
	}

	return model.LiquidityPosition{
		ID:         SimulationID,
		Pair:       pair,
		Range:      model.PriceRange{Low: req.RangeLow, High: req.RangeHigh},
		Liquidity:  liquidity,
		EntryPrice: entryPrice,
		EntryToken: pair.Token(side).Symbol,
	}, defaulted, nil
}
