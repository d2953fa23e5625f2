package network

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Environment selects the chain preference order
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// ParseEnvironment parses an environment name (case-insensitive)
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev", "":
		return EnvDevelopment, nil
	case "production", "prod":
		return EnvProduction, nil
	default:
		return "", fmt.Errorf("unknown environment %q", s)
	}
}

// NativeCurrency describes the coin a chain pays gas in
type NativeCurrency struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Descriptor describes a supported chain. Immutable after registration.
type Descriptor struct {
	ChainID        uint64
	DisplayName    string
	NativeCurrency NativeCurrency
	RPCURLs        []string
	ExplorerURLs   []string
	Testnet        bool
}

// ChainIDHex returns the chain id in the 0x-prefixed form wallets expect
func (d Descriptor) ChainIDHex() string {
	return hexutil.EncodeUint64(d.ChainID)
}

// AddChainParams is the wallet_addEthereumChain parameter object
type AddChainParams struct {
	ChainID           string               `json:"chainId"`
	ChainName         string               `json:"chainName"`
	NativeCurrency    NativeCurrencyParams `json:"nativeCurrency"`
	RPCURLs           []string             `json:"rpcUrls"`
	BlockExplorerURLs []string             `json:"blockExplorerUrls"`
}

// NativeCurrencyParams is the nativeCurrency member of AddChainParams
type NativeCurrencyParams struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// AddChainParams builds the external representation of the descriptor
func (d Descriptor) AddChainParams() AddChainParams {
	return AddChainParams{
		ChainID:   d.ChainIDHex(),
		ChainName: d.DisplayName,
		NativeCurrency: NativeCurrencyParams{
			Name:     d.NativeCurrency.Name,
			Symbol:   d.NativeCurrency.Symbol,
			Decimals: d.NativeCurrency.Decimals,
		},
		RPCURLs:           append([]string(nil), d.RPCURLs...),
		BlockExplorerURLs: append([]string(nil), d.ExplorerURLs...),
	}
}

// Descriptor converts the external representation back into a Descriptor
func (p AddChainParams) Descriptor() (Descriptor, error) {
	id, err := ParseChainID(p.ChainID)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		ChainID:     id,
		DisplayName: p.ChainName,
		NativeCurrency: NativeCurrency{
			Name:     p.NativeCurrency.Name,
			Symbol:   p.NativeCurrency.Symbol,
			Decimals: p.NativeCurrency.Decimals,
		},
		RPCURLs:      append([]string(nil), p.RPCURLs...),
		ExplorerURLs: append([]string(nil), p.BlockExplorerURLs...),
	}, nil
}

// Registry is a read-only table of supported chains and per-environment
// preference orders. Lookups never fail; absent entries report not found.
type Registry struct {
	byID        map[uint64]Descriptor
	preferences map[Environment][]uint64
}

// NewRegistry creates a registry. Preference entries that name an
// unregistered chain are dropped.
func NewRegistry(descriptors []Descriptor, preferences map[Environment][]uint64) *Registry {
	r := &Registry{
		byID:        make(map[uint64]Descriptor, len(descriptors)),
		preferences: make(map[Environment][]uint64, len(preferences)),
	}
	for _, d := range descriptors {
		r.byID[d.ChainID] = d
	}
	for env, ids := range preferences {
		order := make([]uint64, 0, len(ids))
		for _, id := range ids {
			if _, ok := r.byID[id]; ok {
				order = append(order, id)
			}
		}
		r.preferences[env] = order
	}
	return r
}

// DescriptorFor looks up a chain by id
func (r *Registry) DescriptorFor(chainID uint64) (Descriptor, bool) {
	d, ok := r.byID[chainID]
	return d, ok
}

// IsSupported reports whether the chain is registered
func (r *Registry) IsSupported(chainID uint64) bool {
	_, ok := r.byID[chainID]
	return ok
}

// PreferenceOrder returns a copy of the ordered candidate chains for env
func (r *Registry) PreferenceOrder(env Environment) []uint64 {
	return append([]uint64(nil), r.preferences[env]...)
}

// ChainIDs returns all registered chain ids in ascending order
func (r *Registry) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ParseChainID accepts either a 0x-prefixed hex or a decimal chain id
func ParseChainID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	var (
		id  uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		id, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		id, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q", s)
	}
	return id, nil
}
