package model

// PriceRange is a price interval in token-B-per-token-A terms.
type PriceRange struct {
	Low  float64 `json:"range_low"`
	High float64 `json:"range_high"`
}

// LiquidityPosition is an immutable concentrated-liquidity position, either
// read from chain or constructed for a simulation.
type LiquidityPosition struct {
	ID        string
	Pair      Pair
	Range     PriceRange
	Liquidity float64
	// EntryPrice is zero when unknown (live positions).
	EntryPrice float64
	// EntryToken is empty when unknown (live positions).
	EntryToken string
	// Ticks is set when the on-chain tick bounds are known.
	Ticks *TickRange
}

// TickRange is an inclusive-exclusive tick interval [Lower, Upper).
type TickRange struct {
	Lower int32 `json:"tick_lower"`
	Upper int32 `json:"tick_upper"`
}
