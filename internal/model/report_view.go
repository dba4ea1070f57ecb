package model

import (
	"github.com/shopspring/decimal"
)

const (
	maxAmountPlaces = 8
	maxPricePlaces  = 6
	ratioPlaces     = 4
)

// ReportView is the display form of a PositionReport. Numbers are rounded
// per token decimals and serialised as JSON strings.
type ReportView struct {
	PositionID       string          `json:"position_id"`
	Pair             string          `json:"pair"`
	TokenA           string          `json:"token_a"`
	TokenB           string          `json:"token_b"`
	RangeLow         decimal.Decimal `json:"range_low"`
	RangeHigh        decimal.Decimal `json:"range_high"`
	TickLower        int32           `json:"tick_lower"`
	TickUpper        int32           `json:"tick_upper"`
	Liquidity        decimal.Decimal `json:"liquidity"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	EntryPriceSource string          `json:"entry_price_source"`
	EntryToken       string          `json:"entry_token,omitempty"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	Status           string          `json:"status"`
	AmountA          decimal.Decimal `json:"amount_a"`
	AmountB          decimal.Decimal `json:"amount_b"`
	Value            decimal.Decimal `json:"value"`
	ShareA           decimal.Decimal `json:"share_a"`
	Delta            decimal.Decimal `json:"delta"`
	HedgeSide        string          `json:"hedge_side"`
	HedgeNotional    decimal.Decimal `json:"hedge_notional"`
	HedgeValue       decimal.Decimal `json:"hedge_value"`
}

// View rounds the report for display. Rounding happens only here.
func (r PositionReport) View() ReportView {
	placesA := displayPlaces(r.Pair.TokenA.Decimals, maxAmountPlaces)
	placesB := displayPlaces(r.Pair.TokenB.Decimals, maxAmountPlaces)
	pricePlaces := displayPlaces(r.Pair.TokenB.Decimals, maxPricePlaces)

	return ReportView{
		PositionID:       r.PositionID,
		Pair:             r.Pair.ID,
		TokenA:           r.Pair.TokenA.Symbol,
		TokenB:           r.Pair.TokenB.Symbol,
		RangeLow:         round(r.Range.Low, pricePlaces),
		RangeHigh:        round(r.Range.High, pricePlaces),
		TickLower:        r.Ticks.Lower,
		TickUpper:        r.Ticks.Upper,
		Liquidity:        round(r.Liquidity, ratioPlaces),
		EntryPrice:       round(r.EntryPrice, pricePlaces),
		EntryPriceSource: string(r.EntryPriceSource),
		EntryToken:       r.EntryToken,
		CurrentPrice:     round(r.CurrentPrice, pricePlaces),
		Status:           string(r.Status),
		AmountA:          round(r.AmountA, placesA),
		AmountB:          round(r.AmountB, placesB),
		Value:            round(r.Value, pricePlaces),
		ShareA:           round(r.ShareA, ratioPlaces),
		Delta:            round(r.Delta, placesA),
		HedgeSide:        string(r.HedgeSide),
		HedgeNotional:    round(r.HedgeNotional, placesA),
		HedgeValue:       round(r.HedgeValue, pricePlaces),
	}
}

// Views converts a slice of reports, preserving order.
func Views(reports []PositionReport) []ReportView {
	out := make([]ReportView, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.View())
	}
	return out
}

func displayPlaces(decimals uint8, max int32) int32 {
	places := int32(decimals)
	if places > max {
		return max
	}
	return places
}

func round(value float64, places int32) decimal.Decimal {
	return decimal.NewFromFloat(value).Round(places)
}
