package config

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/pflag"

	"deltaHedge/internal/engine"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Config
	Request engine.RawSimulationRequest
	// Prices are manual PAIR=price overrides keyed by pair id.
	Prices map[string]float64
}

// LoadSimulate merges config sources into SimulateConfig. The request fields
// stay as strings so they are parsed by engine.ParseSimulationRequest.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return SimulateConfig{}, err
	}
	base, err := fromViper(v)
	if err != nil {
		return SimulateConfig{}, err
	}

	prices := make(map[string]float64)
	for pair, raw := range getStringMap(v, "price") {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			return SimulateConfig{}, fmt.Errorf("price override %s: %q is not a positive number", pair, raw)
		}
		prices[pair] = price
	}

	return SimulateConfig{
		Config: base,
		Request: engine.RawSimulationRequest{
			Pair:       v.GetString("pair"),
			RangeLow:   v.GetString("range-low"),
			RangeHigh:  v.GetString("range-high"),
			Amount:     v.GetString("amount"),
			EntryToken: v.GetString("entry-token"),
			EntryPrice: v.GetString("entry-price"),
		},
		Prices: prices,
	}, nil
}
