package engine

import (
	"math"
	"strconv"
	"strings"
)

// SimulationRequest describes a hypothetical position. EntryPrice zero means
// the position is entered at the current price.
type SimulationRequest struct {
	Pair       string  `json:"pair"`
	RangeLow   float64 `json:"rangeLow"`
	RangeHigh  float64 `json:"rangeHigh"`
	Amount     float64 `json:"amount"`
	EntryToken string  `json:"entryToken"`
	EntryPrice float64 `json:"entryPrice,omitempty"`
}

// RawSimulationRequest is a simulation request as received from a caller,
// before any numeric parsing.
type RawSimulationRequest struct {
	Pair       string
	RangeLow   string
	RangeHigh  string
	Amount     string
	EntryToken string
	EntryPrice string
}

// ParseSimulationRequest is the single parsing step from caller strings to a
// typed request. It fails with a ValidationError naming the first bad field.
func ParseSimulationRequest(raw RawSimulationRequest) (SimulationRequest, error) {
	pair := strings.TrimSpace(raw.Pair)
	if pair == "" {
		return SimulationRequest{}, &ValidationError{Field: "pair", Reason: "is required"}
	}

	rangeLow, err := parsePositive("rangeLow", raw.RangeLow, true)
	if err != nil {
		return SimulationRequest{}, err
	}
	rangeHigh, err := parsePositive("rangeHigh", raw.RangeHigh, true)
	if err != nil {
		return SimulationRequest{}, err
	}
	amount, err := parsePositive("amount", raw.Amount, true)
	if err != nil {
		return SimulationRequest{}, err
	}

	entryToken := strings.TrimSpace(raw.EntryToken)
	if entryToken == "" {
		return SimulationRequest{}, &ValidationError{Field: "entryToken", Reason: "is required"}
	}

	entryPrice, err := parsePositive("entryPrice", raw.EntryPrice, false)
	if err != nil {
		return SimulationRequest{}, err
	}

	return SimulationRequest{
		Pair:       pair,
		RangeLow:   rangeLow,
		RangeHigh:  rangeHigh,
		Amount:     amount,
		EntryToken: entryToken,
		EntryPrice: entryPrice,
	}, nil
}

func parsePositive(field, input string, required bool) (float64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		if required {
			return 0, &ValidationError{Field: field, Reason: "is required"}
		}
		return 0, nil
	}
	value, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return 0, &ValidationError{Field: field, Reason: "must be a number"}
	}
	if err := checkPositive(field, value); err != nil {
		return 0, err
	}
	return value, nil
}

func checkPositive(field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return &ValidationError{Field: field, Reason: "must be finite and positive"}
	}
	return nil
}
