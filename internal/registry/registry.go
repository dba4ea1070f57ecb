// Package registry holds the immutable catalog of supported trading pairs.
package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"deltaHedge/internal/model"
)

// Registry is a read-only pair catalog built once at startup. It is safe for
// concurrent use because nothing mutates it after New returns.
type Registry struct {
	pairs  []model.Pair
	byID   map[string]int
	byPool map[poolKey]int
}

type poolKey struct {
	token0 common.Address
	token1 common.Address
	fee    uint32
}

// New validates pairs and builds a registry. Pair IDs are matched case-insensitively.
func New(pairs []model.Pair) (*Registry, error) {
	r := &Registry{
		pairs:  make([]model.Pair, 0, len(pairs)),
		byID:   make(map[string]int, len(pairs)),
		byPool: make(map[poolKey]int, len(pairs)),
	}

	for _, pair := range pairs {
		pair.ID = strings.TrimSpace(pair.ID)
		if err := validatePair(pair); err != nil {
			return nil, err
		}
		key := idKey(pair.ID)
		if _, ok := r.byID[key]; ok {
			return nil, fmt.Errorf("duplicate pair id: %s", pair.ID)
		}

		idx := len(r.pairs)
		r.pairs = append(r.pairs, pair)
		r.byID[key] = idx

		if common.IsHexAddress(pair.TokenA.Address) && common.IsHexAddress(pair.TokenB.Address) {
			pk := poolKey{
				token0: common.HexToAddress(pair.TokenA.Address),
				token1: common.HexToAddress(pair.TokenB.Address),
				fee:    pair.FeeTier,
			}
			if _, ok := r.byPool[pk]; !ok {
				r.byPool[pk] = idx
			}
		}
	}

	return r, nil
}

// Lookup returns the pair with the given id.
func (r *Registry) Lookup(id string) (model.Pair, bool) {
	idx, ok := r.byID[idKey(id)]
	if !ok {
		return model.Pair{}, false
	}
	return r.pairs[idx], true
}

// FindByTokens returns the pair whose token A/B addresses and fee tier match
// an on-chain pool's token0/token1/fee.
func (r *Registry) FindByTokens(token0, token1 common.Address, fee uint32) (model.Pair, bool) {
	idx, ok := r.byPool[poolKey{token0: token0, token1: token1, fee: fee}]
	if !ok {
		return model.Pair{}, false
	}
	return r.pairs[idx], true
}

// Pairs returns a copy of all pairs in registration order.
func (r *Registry) Pairs() []model.Pair {
	out := make([]model.Pair, len(r.pairs))
	copy(out, r.pairs)
	return out
}

// Len returns the number of registered pairs.
func (r *Registry) Len() int {
	return len(r.pairs)
}

func validatePair(pair model.Pair) error {
	if pair.ID == "" {
		return fmt.Errorf("pair id is required")
	}
	if pair.TokenA.Symbol == "" || pair.TokenB.Symbol == "" {
		return fmt.Errorf("pair %s: token symbols are required", pair.ID)
	}
	if strings.EqualFold(pair.TokenA.Symbol, pair.TokenB.Symbol) {
		return fmt.Errorf("pair %s: token symbols must differ", pair.ID)
	}
	if pair.TickSpacing <= 0 {
		return fmt.Errorf("pair %s: tick spacing must be positive", pair.ID)
	}
	if pair.TokenA.Decimals > 36 || pair.TokenB.Decimals > 36 {
		return fmt.Errorf("pair %s: token decimals out of range", pair.ID)
	}
	if pair.PoolAddress != "" && !common.IsHexAddress(pair.PoolAddress) {
		return fmt.Errorf("pair %s: invalid pool address: %s", pair.ID, pair.PoolAddress)
	}
	return nil
}

func idKey(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
