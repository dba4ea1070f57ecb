package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"deltaHedge/internal/model"
)

type tokenTable struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Name     string `mapstructure:"name"`
	Decimals int    `mapstructure:"decimals"`
}

type pairTable struct {
	ID          string     `mapstructure:"id"`
	ChainID     uint64     `mapstructure:"chain_id"`
	Pool        string     `mapstructure:"pool"`
	TickSpacing int32      `mapstructure:"tick_spacing"`
	FeeTier     uint32     `mapstructure:"fee_tier"`
	TokenA      tokenTable `mapstructure:"token_a"`
	TokenB      tokenTable `mapstructure:"token_b"`
}

// decodePairs reads the `pairs` list of tables from the config file. Pairs
// are validated again when the registry is built.
func decodePairs(v *viper.Viper) ([]model.Pair, error) {
	if !v.IsSet("pairs") {
		return nil, nil
	}

	var tables []pairTable
	if err := v.UnmarshalKey("pairs", &tables); err != nil {
		return nil, fmt.Errorf("decode pairs: %w", err)
	}

	pairs := make([]model.Pair, 0, len(tables))
	for i, table := range tables {
		tokenA, err := table.TokenA.toMeta()
		if err != nil {
			return nil, fmt.Errorf("pairs[%d] token_a: %w", i, err)
		}
		tokenB, err := table.TokenB.toMeta()
		if err != nil {
			return nil, fmt.Errorf("pairs[%d] token_b: %w", i, err)
		}

		id := strings.TrimSpace(table.ID)
		if id == "" {
			id = tokenA.Symbol + "/" + tokenB.Symbol
		}
		pairs = append(pairs, model.Pair{
			ID:          id,
			ChainID:     table.ChainID,
			PoolAddress: strings.TrimSpace(table.Pool),
			TokenA:      tokenA,
			TokenB:      tokenB,
			TickSpacing: table.TickSpacing,
			FeeTier:     table.FeeTier,
		})
	}
	return pairs, nil
}

func (t tokenTable) toMeta() (model.TokenMeta, error) {
	if t.Decimals < 0 || t.Decimals > 36 {
		return model.TokenMeta{}, fmt.Errorf("decimals out of range: %d", t.Decimals)
	}
	return model.TokenMeta{
		Address:  strings.TrimSpace(t.Address),
		Symbol:   strings.TrimSpace(t.Symbol),
		Name:     strings.TrimSpace(t.Name),
		Decimals: uint8(t.Decimals),
	}, nil
}
