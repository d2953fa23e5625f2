package network

// Built-in chain ids
const (
	ChainEvmosTestnet uint64 = 9000
	ChainEvmosMainnet uint64 = 9001
	ChainLocalhost    uint64 = 31337
)

// DefaultDescriptors returns the built-in chain table
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			ChainID:        ChainEvmosTestnet,
			DisplayName:    "Evmos Testnet",
			NativeCurrency: NativeCurrency{Name: "Evmos", Symbol: "EVMOS", Decimals: 18},
			RPCURLs:        []string{"https://eth.bd.evmos.dev:8545"},
			ExplorerURLs:   []string{"https://evm.evmos.dev"},
			Testnet:        true,
		},
		{
			ChainID:        ChainEvmosMainnet,
			DisplayName:    "Evmos",
			NativeCurrency: NativeCurrency{Name: "Evmos", Symbol: "EVMOS", Decimals: 18},
			RPCURLs:        []string{"https://eth.bd.evmos.org:8545"},
			ExplorerURLs:   []string{"https://evm.evmos.org"},
		},
		{
			ChainID:        ChainLocalhost,
			DisplayName:    "Localhost 8545",
			NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
			RPCURLs:        []string{"http://127.0.0.1:8545"},
			Testnet:        true,
		},
	}
}

// DefaultPreferences returns the built-in per-environment switch order.
// Development tries the local node first.
func DefaultPreferences() map[Environment][]uint64 {
	return map[Environment][]uint64{
		EnvDevelopment: {ChainLocalhost, ChainEvmosTestnet},
		EnvProduction:  {ChainEvmosMainnet, ChainEvmosTestnet},
	}
}

// DefaultRegistry builds a registry from the built-in tables
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultDescriptors(), DefaultPreferences())
}

// Merge overlays extra descriptors on base, replacing entries with the same chain id
func Merge(base []Descriptor, extra ...Descriptor) []Descriptor {
	out := make([]Descriptor, 0, len(base)+len(extra))
	index := make(map[uint64]int, len(base)+len(extra))
	for _, d := range append(append([]Descriptor(nil), base...), extra...) {
		if i, ok := index[d.ChainID]; ok {
			out[i] = d
			continue
		}
		index[d.ChainID] = len(out)
		out = append(out, d)
	}
	return out
}
