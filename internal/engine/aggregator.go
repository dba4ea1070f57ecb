package engine

import (
	"deltaHedge/internal/model"
)

// PositionFailure records why one position of a batch could not be reported.
type PositionFailure struct {
	Index      int
	PositionID string
	Pair       string
	Err        error
}

// BatchResult holds the successful reports and the per-position failures of a
// batch. Both slices follow the input order.
type BatchResult struct {
	Reports  []model.PositionReport
	Failures []PositionFailure
}

// Report evaluates each position at its pair's current price. Prices are keyed
// by pair id. A failing position is recorded and the batch continues.
func (e *Engine) Report(positions []model.LiquidityPosition, prices map[string]float64) BatchResult {
	return e.ReportWithPriceErrors(positions, prices, nil)
}

// ReportWithPriceErrors is Report with the reasons prices are missing, keyed
// by pair id. A position whose pair has no price fails with a
// PriceUnavailableError wrapping that reason.
func (e *Engine) ReportWithPriceErrors(positions []model.LiquidityPosition, prices map[string]float64, priceErrs map[string]error) BatchResult {
	result := BatchResult{
		Reports: make([]model.PositionReport, 0, len(positions)),
	}

	for i, pos := range positions {
		report, err := e.reportOne(pos, prices, priceErrs)
		if err != nil {
			result.Failures = append(result.Failures, PositionFailure{
				Index:      i,
				PositionID: pos.ID,
				Pair:       pos.Pair.ID,
				Err:        err,
			})
			continue
		}
		result.Reports = append(result.Reports, report)
	}

	return result
}

func (e *Engine) reportOne(pos model.LiquidityPosition, prices map[string]float64, priceErrs map[string]error) (model.PositionReport, error) {
	if _, ok := e.registry.Lookup(pos.Pair.ID); !ok {
		return model.PositionReport{}, &UnknownPairError{Pair: pos.Pair.ID}
	}
	price, ok := prices[pos.Pair.ID]
	if !ok {
		return model.PositionReport{}, &PriceUnavailableError{Pair: pos.Pair.ID, Err: priceErrs[pos.Pair.ID]}
	}
	return evaluate(pos, price)
}
