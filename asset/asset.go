package asset

import (
	"fmt"
	"sort"
)

// Default asset IDs.
const (
	SOL  = "SOL"
	USDC = "USDC"

	// USDCMint is the mainnet mint of USDC.
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// Asset describes one holding the wallet can display and move.
type Asset struct {
	ID       string `mapstructure:"id" json:"id"`
	Symbol   string `mapstructure:"symbol" json:"symbol"`
	Name     string `mapstructure:"name" json:"name"`
	Mint     string `mapstructure:"mint" json:"mint,omitempty"`
	Decimals uint8  `mapstructure:"decimals" json:"decimals"`
	// Native marks the chain's own coin. Exactly one asset is native.
	Native bool `mapstructure:"native" json:"native"`
}

// Defaults returns the built-in asset table.
func Defaults() []Asset {
	return []Asset{
		{ID: SOL, Symbol: "SOL", Name: "Solana", Decimals: 9, Native: true},
		{ID: USDC, Symbol: "USDC", Name: "USD Coin", Mint: USDCMint, Decimals: 6},
	}
}

// Registry is a read-only lookup over an asset table.
type Registry struct {
	byID   map[string]Asset
	byMint map[string]Asset
	order  []string
	native string
	token  string
}

// NewRegistry builds a registry. The first non-native asset is the default token.
func NewRegistry(assets []Asset) (*Registry, error) {
	r := &Registry{
		byID:   make(map[string]Asset),
		byMint: make(map[string]Asset),
	}

	for _, a := range assets {
		if a.ID == "" {
			return nil, fmt.Errorf("asset id cannot be empty")
		}
		if _, ok := r.byID[a.ID]; ok {
			return nil, fmt.Errorf("duplicate asset id %q", a.ID)
		}

		if a.Native {
			if r.native != "" {
				return nil, fmt.Errorf("more than one native asset: %q, %q", r.native, a.ID)
			}
			r.native = a.ID
		} else {
			if a.Mint == "" {
				return nil, fmt.Errorf("token asset %q requires a mint", a.ID)
			}
			if _, ok := r.byMint[a.Mint]; ok {
				return nil, fmt.Errorf("duplicate mint %q", a.Mint)
			}
			r.byMint[a.Mint] = a
			if r.token == "" {
				r.token = a.ID
			}
		}

		r.byID[a.ID] = a
		r.order = append(r.order, a.ID)
	}

	if r.native == "" {
		return nil, fmt.Errorf("asset table has no native asset")
	}

	return r, nil
}

// MustRegistry is like NewRegistry but panics on an invalid table.
func MustRegistry(assets []Asset) *Registry {
	r, err := NewRegistry(assets)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the asset with the given id.
func (r *Registry) Get(id string) (Asset, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// ByMint returns the token asset of the given mint.
func (r *Registry) ByMint(mint string) (Asset, bool) {
	a, ok := r.byMint[mint]
	return a, ok
}

// Native returns the native coin.
func (r *Registry) Native() Asset {
	return r.byID[r.native]
}

// DefaultToken returns the first configured token, or the native coin if there is none.
func (r *Registry) DefaultToken() Asset {
	if r.token == "" {
		return r.Native()
	}
	return r.byID[r.token]
}

// All returns assets in table order.
func (r *Registry) All() []Asset {
	result := make([]Asset, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.byID[id])
	}
	return result
}

// IDs returns sorted asset ids.
func (r *Registry) IDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}
