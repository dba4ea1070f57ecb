package model

import "strings"

// Pair is one supported trading pair of the pool registry.
// Prices are quoted as token B per token A in human (decimals-adjusted) units.
type Pair struct {
	ID          string    `json:"id"`
	ChainID     uint64    `json:"chain_id,omitempty"`
	PoolAddress string    `json:"pool_address,omitempty"`
	TokenA      TokenMeta `json:"token_a"`
	TokenB      TokenMeta `json:"token_b"`
	TickSpacing int32     `json:"tick_spacing"`
	// FeeTier is expressed in hundredths of a basis point (500 = 0.05%).
	FeeTier uint32 `json:"fee_tier"`
}

// Side resolves a token symbol (case-insensitive) to its side in the pair.
func (p Pair) Side(symbol string) (TokenSide, bool) {
	symbol = strings.TrimSpace(symbol)
	switch {
	case symbol == "":
		return 0, false
	case strings.EqualFold(symbol, p.TokenA.Symbol):
		return TokenA, true
	case strings.EqualFold(symbol, p.TokenB.Symbol):
		return TokenB, true
	default:
		return 0, false
	}
}

// Token returns the metadata for one side of the pair.
func (p Pair) Token(side TokenSide) TokenMeta {
	if side == TokenA {
		return p.TokenA
	}
	return p.TokenB
}
