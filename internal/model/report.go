package model

// HedgeSide is the direction of the offsetting linear exposure on token A.
type HedgeSide string

const (
	HedgeShort HedgeSide = "short"
	HedgeLong  HedgeSide = "long"
	HedgeFlat  HedgeSide = "flat"
)

// RangeStatus locates the current price relative to a position's range.
type RangeStatus string

const (
	RangeBelow   RangeStatus = "below"
	RangeInRange RangeStatus = "in_range"
	RangeAbove   RangeStatus = "above"
)

// EntryPriceSource tells whether a report's entry price was supplied or
// defaulted to the current price.
type EntryPriceSource string

const (
	EntryPriceUnknown  EntryPriceSource = "unknown"
	EntryPriceCurrent  EntryPriceSource = "current"
	EntryPriceSupplied EntryPriceSource = "supplied"
)

// PositionReport is the analytics of one position at the current price.
// Values are in token B (the numeraire); delta is in token A units.
type PositionReport struct {
	PositionID       string
	Pair             Pair
	Range            PriceRange
	Ticks            TickRange
	Liquidity        float64
	EntryPrice       float64
	EntryPriceSource EntryPriceSource
	EntryToken       string
	CurrentPrice     float64
	Status           RangeStatus
	AmountA          float64
	AmountB          float64
	Value            float64
	ShareA           float64
	Delta            float64
	HedgeSide        HedgeSide
	// HedgeNotional is the hedge size in token A units.
	HedgeNotional float64
	// HedgeValue is HedgeNotional expressed in token B at the current price.
	HedgeValue float64
}
