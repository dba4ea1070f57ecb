package model

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
}

// TokenSide names one of the two tokens of a pair. Token A is the pool's token0.
type TokenSide int

const (
	TokenA TokenSide = iota
	TokenB
)

func (s TokenSide) String() string {
	if s == TokenA {
		return "A"
	}
	return "B"
}
