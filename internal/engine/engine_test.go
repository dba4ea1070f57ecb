package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"deltaHedge/internal/curve"
	"deltaHedge/internal/hedge"
	"deltaHedge/internal/model"
	"deltaHedge/internal/registry"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	reg, err := registry.New([]model.Pair{
		{
			ID:          "A/B",
			TokenA:      model.TokenMeta{Symbol: "A", Decimals: 9},
			TokenB:      model.TokenMeta{Symbol: "B", Decimals: 6},
			TickSpacing: 64,
			FeeTier:     3000,
		},
		{
			ID:          "C/B",
			TokenA:      model.TokenMeta{Symbol: "C", Decimals: 8},
			TokenB:      model.TokenMeta{Symbol: "B", Decimals: 6},
			TickSpacing: 10,
			FeeTier:     500,
		},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	eng, err := New(reg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return eng
}

func exampleRequest() SimulationRequest {
	return SimulationRequest{
		Pair:       "A/B",
		RangeLow:   1800,
		RangeHigh:  2200,
		Amount:     10000,
		EntryToken: "B",
	}
}

func TestSimulateInRange(t *testing.T) {
	eng := newTestEngine(t)

	report, err := eng.Simulate(exampleRequest(), 2000)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	if report.AmountA <= 0 || report.AmountB <= 0 {
		t.Fatalf("expected both tokens held: %+v", report)
	}
	if math.Abs(report.AmountB-10000) > 1e-6 {
		t.Fatalf("entry token amount should match deposit: %v", report.AmountB)
	}
	if report.HedgeSide != model.HedgeShort {
		t.Fatalf("expected short hedge, got %s", report.HedgeSide)
	}
	if report.HedgeNotional != report.AmountA || report.Delta != report.AmountA {
		t.Fatalf("hedge notional %v and delta %v should equal amountA %v", report.HedgeNotional, report.Delta, report.AmountA)
	}
	if report.Status != model.RangeInRange {
		t.Fatalf("expected in-range status, got %s", report.Status)
	}
	if report.EntryPriceSource != model.EntryPriceCurrent || report.EntryPrice != 2000 {
		t.Fatalf("entry price should default to current: %v (%s)", report.EntryPrice, report.EntryPriceSource)
	}
	if report.Ticks.Lower%64 != 0 || report.Ticks.Upper%64 != 0 || report.Ticks.Lower >= report.Ticks.Upper {
		t.Fatalf("unexpected aligned ticks: %+v", report.Ticks)
	}
	wantValue := report.AmountA*2000 + report.AmountB
	if math.Abs(report.Value-wantValue) > 1e-9 {
		t.Fatalf("value mismatch: %v vs %v", report.Value, wantValue)
	}
}

func TestSimulateAboveRangeIsFlat(t *testing.T) {
	eng := newTestEngine(t)

	report, err := eng.Simulate(exampleRequest(), 2300)
	if err != nil {
		t.Fatalf("simulate at current price: %v", err)
	}
	if report.AmountA != 0 || report.HedgeSide != model.HedgeFlat || report.HedgeNotional != 0 {
		t.Fatalf("expected flat hedge above range: %+v", report)
	}

	req := exampleRequest()
	req.EntryPrice = 2000
	report, err = eng.Simulate(req, 2300)
	if err != nil {
		t.Fatalf("simulate with entry price: %v", err)
	}
	if report.AmountA != 0 || report.HedgeSide != model.HedgeFlat {
		t.Fatalf("expected flat hedge after price left range: %+v", report)
	}
	if report.Status != model.RangeAbove || report.EntryPriceSource != model.EntryPriceSupplied {
		t.Fatalf("unexpected status/source: %s %s", report.Status, report.EntryPriceSource)
	}
}

func TestSimulateBelowRangeHedgesFullTokenA(t *testing.T) {
	eng := newTestEngine(t)

	req := exampleRequest()
	req.EntryPrice = 2000
	report, err := eng.Simulate(req, 1500)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if report.AmountB != 0 || report.AmountA <= 0 {
		t.Fatalf("expected all token A below range: %+v", report)
	}
	if report.HedgeSide != model.HedgeShort || report.HedgeNotional != report.AmountA {
		t.Fatalf("expected short hedge of full token A: %+v", report)
	}
	if report.ShareA != 1 {
		t.Fatalf("expected token A share 1, got %v", report.ShareA)
	}
}

func TestSimulateIsIdempotent(t *testing.T) {
	eng := newTestEngine(t)

	first, err := eng.Simulate(exampleRequest(), 2000)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	second, err := eng.Simulate(exampleRequest(), 2000)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reports differ: %+v != %+v", first, second)
	}

	a, err := json.Marshal(first.View())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(second.View())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("views not byte-identical:\n%s\n%s", a, b)
	}
}

func TestSimulatedMatchesLivePosition(t *testing.T) {
	eng := newTestEngine(t)

	req := exampleRequest()
	req.EntryPrice = 1950
	pos, defaulted, err := eng.SimulatedPosition(req, 2050)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if defaulted {
		t.Fatalf("entry price was supplied")
	}

	simulated, err := eng.Simulate(req, 2050)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	batch := eng.Report([]model.LiquidityPosition{pos}, map[string]float64{"A/B": 2050})
	if len(batch.Failures) != 0 || len(batch.Reports) != 1 {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	if !reflect.DeepEqual(batch.Reports[0], simulated) {
		t.Fatalf("simulated and aggregated reports diverge:\n%+v\n%+v", simulated, batch.Reports[0])
	}
}

func TestSimulateValidation(t *testing.T) {
	eng := newTestEngine(t)

	var unknownErr *UnknownPairError
	req := exampleRequest()
	req.Pair = "X/Y"
	if _, err := eng.Simulate(req, 2000); !errors.As(err, &unknownErr) {
		t.Fatalf("expected UnknownPairError, got %v", err)
	}

	var validationErr *ValidationError
	req = exampleRequest()
	req.Amount = -5
	if _, err := eng.Simulate(req, 2000); !errors.As(err, &validationErr) || validationErr.Field != "amount" {
		t.Fatalf("expected ValidationError on amount, got %v", err)
	}

	req = exampleRequest()
	req.RangeLow = math.Inf(1)
	if _, err := eng.Simulate(req, 2000); !errors.As(err, &validationErr) || validationErr.Field != "rangeLow" {
		t.Fatalf("expected ValidationError on rangeLow, got %v", err)
	}

	var tokenErr *InvalidTokenError
	req = exampleRequest()
	req.EntryToken = "C"
	if _, err := eng.Simulate(req, 2000); !errors.As(err, &tokenErr) {
		t.Fatalf("expected InvalidTokenError, got %v", err)
	}

	var rangeErr *curve.InvalidRangeError
	req = exampleRequest()
	req.RangeLow, req.RangeHigh = 2200, 1800
	if _, err := eng.Simulate(req, 2000); !errors.As(err, &rangeErr) {
		t.Fatalf("expected InvalidRangeError, got %v", err)
	}
	req.RangeLow, req.RangeHigh = 2000, 2000
	if _, err := eng.Simulate(req, 2000); !errors.As(err, &rangeErr) {
		t.Fatalf("expected InvalidRangeError for empty range, got %v", err)
	}

	var priceErr *curve.InvalidPriceError
	if _, err := eng.Simulate(exampleRequest(), 0); !errors.As(err, &priceErr) {
		t.Fatalf("expected InvalidPriceError, got %v", err)
	}

	req = exampleRequest()
	req.EntryPrice = 1700
	if _, err := eng.Simulate(req, 2000); !errors.As(err, &validationErr) || validationErr.Field != "entryToken" {
		t.Fatalf("expected ValidationError on entryToken below range, got %v", err)
	}

	req = exampleRequest()
	req.EntryPrice = -1
	if _, err := eng.Simulate(req, 2000); !errors.As(err, &validationErr) || validationErr.Field != "entryPrice" {
		t.Fatalf("expected ValidationError on entryPrice, got %v", err)
	}
}

func TestSimulateEntryTokenCaseInsensitive(t *testing.T) {
	eng := newTestEngine(t)

	req := exampleRequest()
	req.EntryToken = "a"
	req.Amount = 2
	report, err := eng.Simulate(req, 2000)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if report.EntryToken != "A" || math.Abs(report.AmountA-2) > 1e-12 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestReportPartialFailure(t *testing.T) {
	eng := newTestEngine(t)

	first, _, err := eng.SimulatedPosition(exampleRequest(), 2000)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	first.ID = "1"

	secondReq := exampleRequest()
	secondReq.Pair = "C/B"
	second, _, err := eng.SimulatedPosition(secondReq, 2000)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	second.ID = "2"

	result := eng.Report([]model.LiquidityPosition{second, first}, map[string]float64{"A/B": 2010})

	if len(result.Reports) != 1 || result.Reports[0].PositionID != "1" {
		t.Fatalf("expected one report for position 1: %+v", result.Reports)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected one failure: %+v", result.Failures)
	}
	failure := result.Failures[0]
	var priceErr *PriceUnavailableError
	if failure.Index != 0 || failure.PositionID != "2" || !errors.As(failure.Err, &priceErr) {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if priceErr.Pair != "C/B" {
		t.Fatalf("failure should name pair C/B: %v", priceErr)
	}
}

func TestReportWrapsPriceErrors(t *testing.T) {
	eng := newTestEngine(t)

	pos, _, err := eng.SimulatedPosition(exampleRequest(), 2000)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	pos.ID = "7"

	cause := errors.New("slot0 reverted")
	result := eng.ReportWithPriceErrors([]model.LiquidityPosition{pos}, map[string]float64{}, map[string]error{"A/B": cause})
	if len(result.Failures) != 1 {
		t.Fatalf("expected one failure: %+v", result)
	}
	var priceErr *PriceUnavailableError
	if !errors.As(result.Failures[0].Err, &priceErr) || priceErr.Pair != "A/B" {
		t.Fatalf("expected PriceUnavailableError for A/B, got %v", result.Failures[0].Err)
	}
	if !errors.Is(result.Failures[0].Err, cause) {
		t.Fatalf("failure should wrap the fetch error: %v", result.Failures[0].Err)
	}
}

func TestReportPreservesOrder(t *testing.T) {
	eng := newTestEngine(t)

	var positions []model.LiquidityPosition
	for i, low := range []float64{1500, 1900, 1700, 2100} {
		req := exampleRequest()
		req.RangeLow = low
		req.RangeHigh = low + 500
		req.EntryToken = "A"
		req.Amount = 1
		req.EntryPrice = low + 1
		pos, _, err := eng.SimulatedPosition(req, 2000)
		if err != nil {
			t.Fatalf("position %d: %v", i, err)
		}
		pos.ID = string(rune('a' + i))
		positions = append(positions, pos)
	}

	result := eng.Report(positions, map[string]float64{"A/B": 2000})
	if len(result.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", result.Failures)
	}
	for i, report := range result.Reports {
		if report.PositionID != positions[i].ID {
			t.Fatalf("order changed at %d: %s != %s", i, report.PositionID, positions[i].ID)
		}
	}
}

func TestReportUnknownPairAndBadPrice(t *testing.T) {
	eng := newTestEngine(t)

	pos, _, err := eng.SimulatedPosition(exampleRequest(), 2000)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	stray := pos
	stray.Pair.ID = "Z/B"

	result := eng.Report([]model.LiquidityPosition{stray, pos}, map[string]float64{"A/B": -1, "Z/B": 10})
	if len(result.Reports) != 0 || len(result.Failures) != 2 {
		t.Fatalf("expected two failures: %+v", result)
	}
	var unknownErr *UnknownPairError
	if !errors.As(result.Failures[0].Err, &unknownErr) {
		t.Fatalf("expected UnknownPairError, got %v", result.Failures[0].Err)
	}
	var priceErr *curve.InvalidPriceError
	if !errors.As(result.Failures[1].Err, &priceErr) {
		t.Fatalf("expected InvalidPriceError, got %v", result.Failures[1].Err)
	}
}

func TestReportSurfacesComputationError(t *testing.T) {
	eng := newTestEngine(t)

	pos, _, err := eng.SimulatedPosition(exampleRequest(), 2000)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	pos.Liquidity = math.MaxFloat64

	result := eng.Report([]model.LiquidityPosition{pos}, map[string]float64{"A/B": 2000})
	if len(result.Failures) != 1 {
		t.Fatalf("expected a failure: %+v", result)
	}
	var compErr *hedge.ComputationError
	if !errors.As(result.Failures[0].Err, &compErr) {
		t.Fatalf("expected ComputationError, got %v", result.Failures[0].Err)
	}
	if IsCallerError(result.Failures[0].Err) {
		t.Fatalf("computation errors must not be classified as caller errors")
	}
}

func TestReportNegativeLiquidityIsComputationError(t *testing.T) {
	eng := newTestEngine(t)

	pos, _, err := eng.SimulatedPosition(exampleRequest(), 2000)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	pos.Liquidity = -1

	result := eng.Report([]model.LiquidityPosition{pos}, map[string]float64{"A/B": 2000})
	if len(result.Failures) != 1 {
		t.Fatalf("expected a failure: %+v", result)
	}
	var compErr *hedge.ComputationError
	if !errors.As(result.Failures[0].Err, &compErr) || compErr.Op != "tokenAmounts" {
		t.Fatalf("expected tokenAmounts ComputationError, got %v", result.Failures[0].Err)
	}
}

func TestSimulateRangeBeyondTickBounds(t *testing.T) {
	eng := newTestEngine(t)

	req := exampleRequest()
	req.RangeLow = 1e-40
	_, err := eng.Simulate(req, 2000)
	var rangeErr *curve.InvalidRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected InvalidRangeError, got %v", err)
	}
	if rangeErr.Low != 1e-40 || rangeErr.High != 2200 {
		t.Fatalf("error should carry the requested bounds: %+v", rangeErr)
	}
	if !IsCallerError(err) {
		t.Fatalf("out-of-bounds range should be a caller error")
	}
}

func TestIsCallerError(t *testing.T) {
	if !IsCallerError(&ValidationError{Field: "amount", Reason: "x"}) {
		t.Fatalf("validation error is a caller error")
	}
	if !IsCallerError(&curve.InvalidRangeError{Low: 2, High: 1}) {
		t.Fatalf("range error is a caller error")
	}
	if IsCallerError(&PriceUnavailableError{Pair: "A/B"}) {
		t.Fatalf("price unavailable is not a caller error")
	}
	if IsCallerError(errors.New("boom")) {
		t.Fatalf("plain error is not a caller error")
	}
}
