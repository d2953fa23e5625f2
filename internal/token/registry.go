package token

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/tradesphere-swap/internal/apperr"
	"github.com/ThetaSpace/tradesphere-swap/internal/network"
)

// NativeAddress is the sentinel address carried by native coin descriptors
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Descriptor describes a tradable asset on one chain
type Descriptor struct {
	Symbol   string
	Name     string
	Address  common.Address
	Decimals uint8
	Native   bool
}

// String returns the symbol
func (d Descriptor) String() string {
	return d.Symbol
}

// Same reports whether two descriptors denote the same asset
func (d Descriptor) Same(o Descriptor) bool {
	if d.Native || o.Native {
		return d.Native == o.Native
	}
	return d.Address == o.Address
}

// Native builds the descriptor for a chain's native coin
func Native(nc network.NativeCurrency) Descriptor {
	return Descriptor{
		Symbol:   nc.Symbol,
		Name:     nc.Name,
		Address:  NativeAddress,
		Decimals: nc.Decimals,
		Native:   true,
	}
}

type chainTokens struct {
	order     []Descriptor
	bySymbol  map[string]int
	byAddress map[common.Address]int
}

// Registry holds the token list for each chain. It is filled at start-up
// and only read afterwards.
type Registry struct {
	chains map[uint64]*chainTokens
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{chains: make(map[uint64]*chainTokens)}
}

// Register adds a token to a chain
func (r *Registry) Register(chainID uint64, d Descriptor) error {
	d.Symbol = strings.TrimSpace(d.Symbol)
	if d.Symbol == "" {
		return fmt.Errorf("token symbol is required")
	}
	if d.Native {
		d.Address = NativeAddress
	} else if d.Address == (common.Address{}) || d.Address == NativeAddress {
		return fmt.Errorf("token %s: address is required", d.Symbol)
	}

	ct := r.chains[chainID]
	if ct == nil {
		ct = &chainTokens{
			bySymbol:  make(map[string]int),
			byAddress: make(map[common.Address]int),
		}
		r.chains[chainID] = ct
	}

	key := strings.ToUpper(d.Symbol)
	if _, ok := ct.bySymbol[key]; ok {
		return fmt.Errorf("token %s already registered on chain %d", d.Symbol, chainID)
	}
	if _, ok := ct.byAddress[d.Address]; ok {
		return fmt.Errorf("token address %s already registered on chain %d", d.Address.Hex(), chainID)
	}

	ct.bySymbol[key] = len(ct.order)
	ct.byAddress[d.Address] = len(ct.order)
	ct.order = append(ct.order, d)
	return nil
}

// Lookup finds a token by symbol (case-insensitive) or by address
func (r *Registry) Lookup(chainID uint64, ref string) (Descriptor, error) {
	ref = strings.TrimSpace(ref)
	ct := r.chains[chainID]
	if ct != nil {
		if common.IsHexAddress(ref) {
			if i, ok := ct.byAddress[common.HexToAddress(ref)]; ok {
				return ct.order[i], nil
			}
		} else if i, ok := ct.bySymbol[strings.ToUpper(ref)]; ok {
			return ct.order[i], nil
		}
	}
	return Descriptor{}, apperr.Newf(apperr.ErrTokenNotFound, "lookup", "%s on chain %d", ref, chainID)
}

// Tokens lists a chain's tokens in registration order
func (r *Registry) Tokens(chainID uint64) []Descriptor {
	ct := r.chains[chainID]
	if ct == nil {
		return nil
	}
	return append([]Descriptor(nil), ct.order...)
}

// NativeFor returns the native coin descriptor of a chain
func (r *Registry) NativeFor(chainID uint64) (Descriptor, bool) {
	ct := r.chains[chainID]
	if ct == nil {
		return Descriptor{}, false
	}
	if i, ok := ct.byAddress[NativeAddress]; ok {
		return ct.order[i], true
	}
	return Descriptor{}, false
}

// DefaultTokens is the built-in token list keyed by chain id
func DefaultTokens() map[uint64][]Descriptor {
	evmos := []Descriptor{
		{Symbol: "WEVMOS", Name: "Wrapped Evmos", Address: common.HexToAddress("0x5Ed91D8c5FcEcD4C7523916712D7AF4F2Bb7aEE4"), Decimals: 18},
		{Symbol: "USDC", Name: "USD Coin", Address: common.HexToAddress("0x5fd55a1b9fc24967c4db09c513c3ba0dfa7ff687"), Decimals: 6},
		{Symbol: "USDT", Name: "Tether USD", Address: common.HexToAddress("0xeceeefcee421d8062ef8d6b4d814efe4dc898265"), Decimals: 6},
	}
	return map[uint64][]Descriptor{
		network.ChainEvmosTestnet: evmos,
		network.ChainEvmosMainnet: evmos,
	}
}

// BuildRegistry registers the native coin of every network followed by
// the given per-chain tokens
func BuildRegistry(networks *network.Registry, tokens map[uint64][]Descriptor) (*Registry, error) {
	r := NewRegistry()
	for _, id := range networks.ChainIDs() {
		d, _ := networks.DescriptorFor(id)
		if err := r.Register(id, Native(d.NativeCurrency)); err != nil {
			return nil, err
		}
	}
	for chainID, list := range tokens {
		for _, t := range list {
			if err := r.Register(chainID, t); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}
