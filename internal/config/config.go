package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/ThetaSpace/tradesphere-swap/internal/network"
	"github.com/ThetaSpace/tradesphere-swap/internal/token"
)

// DefaultRouterAddress is used for every chain without a router entry
const DefaultRouterAddress = "0x809d550fca64d94Bd9F66E60752A544199cfAC3D"

// Wallet modes
const (
	WalletModeBridge   = "bridge"
	WalletModeKeystore = "keystore"
)

// Config application configuration
type Config struct {
	App         AppConfig           `yaml:"app"`
	Wallet      WalletConfig        `yaml:"wallet"`
	Networks    []NetworkConfig     `yaml:"networks"`
	Preferences map[string][]uint64 `yaml:"preferences"`
	Routers     []RouterConfig      `yaml:"routers"`
	Tokens      []TokenConfig       `yaml:"tokens"`
	Swap        SwapConfig          `yaml:"swap"`
	Quote       QuoteConfig         `yaml:"quote"`
	RPC         RPCConfig           `yaml:"rpc"`
}

// AppConfig application basic configuration
type AppConfig struct {
	Name        string `yaml:"name"`
	LogLevel    string `yaml:"logLevel"`    // debug, info, warn, error
	LogFile     string `yaml:"logFile"`     // empty disables file logging
	Environment string `yaml:"environment"` // development, production
}

// WalletConfig selects and configures the wallet provider
type WalletConfig struct {
	Mode     string         `yaml:"mode"` // bridge, keystore
	Bridge   BridgeConfig   `yaml:"bridge"`
	Keystore KeystoreConfig `yaml:"keystore"`
}

// BridgeConfig WebSocket wallet bridge configuration
type BridgeConfig struct {
	ServerURL            string        `yaml:"serverUrl"`
	APIToken             string        `yaml:"apiToken"`
	ReconnectInterval    time.Duration `yaml:"reconnectInterval"`
	MaxReconnectAttempts int           `yaml:"maxReconnectAttempts"` // 0 = unlimited
	HeartbeatInterval    time.Duration `yaml:"heartbeatInterval"`
	ReadTimeout          time.Duration `yaml:"readTimeout"`
	WriteTimeout         time.Duration `yaml:"writeTimeout"`
	RequestTimeout       time.Duration `yaml:"requestTimeout"`
}

// KeystoreConfig local key wallet configuration
type KeystoreConfig struct {
	PrivateKey    string `yaml:"privateKey"`    // Private key (hexadecimal, highest priority)
	PrivateKeyEnv string `yaml:"privateKeyEnv"` // Private key environment variable name (fallback)
	PromptForKey  bool   `yaml:"promptForKey"`  // Ask on the terminal when no key is configured
	ChainID       uint64 `yaml:"chainId"`       // Initial chain, defaults to the first preference
	RPCURL        string `yaml:"rpcUrl"`        // Overrides the chain's first RPC URL
	AutoApprove   bool   `yaml:"autoApprove"`   // Skip account and transaction prompts
}

// NativeCurrencyConfig native coin of a network
type NativeCurrencyConfig struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// NetworkConfig extra or replacement chain descriptor
type NetworkConfig struct {
	ChainID        uint64               `yaml:"chainId"`
	Name           string               `yaml:"name"`
	NativeCurrency NativeCurrencyConfig `yaml:"nativeCurrency"`
	RPCURLs        []string             `yaml:"rpcUrls"`
	ExplorerURLs   []string             `yaml:"explorerUrls"`
	Testnet        bool                 `yaml:"testnet"`
}

// RouterConfig router deployment on one chain
type RouterConfig struct {
	ChainID       uint64 `yaml:"chainId"`
	Address       string `yaml:"address"`
	WrappedNative string `yaml:"wrappedNative"` // skips the router's WETH() read when set
}

// TokenConfig tradable token on one chain
type TokenConfig struct {
	ChainID  uint64 `yaml:"chainId"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

// SwapConfig swap execution configuration
type SwapConfig struct {
	DefaultSlippageBps  uint32        `yaml:"defaultSlippageBps"`
	DeadlineMinutes     uint32        `yaml:"deadlineMinutes"`
	ConfirmPollInterval time.Duration `yaml:"confirmPollInterval"`
	GasSlippageBps      uint32        `yaml:"gasSlippageBps"` // floor used for gas simulation
}

// QuoteConfig quote configuration
type QuoteConfig struct {
	Debounce        time.Duration `yaml:"debounce"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	PriceImpact     string        `yaml:"priceImpact"` // none, probe
}

// RPCConfig node request pacing and circuit breaking
type RPCConfig struct {
	RateLimit               float64       `yaml:"rateLimit"` // requests per second
	Burst                   int           `yaml:"burst"`
	BreakerMaxRequests      uint32        `yaml:"breakerMaxRequests"`
	BreakerInterval         time.Duration `yaml:"breakerInterval"`
	BreakerTimeout          time.Duration `yaml:"breakerTimeout"`
	BreakerFailureThreshold uint32        `yaml:"breakerFailureThreshold"`
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads path, falling back to built-in defaults when the
// file does not exist and was not explicitly requested
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return nil, err
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tradesphere"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.Environment == "" {
		c.App.Environment = string(network.EnvProduction)
	}
	if c.Wallet.Mode == "" {
		c.Wallet.Mode = WalletModeKeystore
	}
	if c.Wallet.Bridge.ReconnectInterval == 0 {
		c.Wallet.Bridge.ReconnectInterval = 2 * time.Second
	}
	if c.Wallet.Bridge.HeartbeatInterval == 0 {
		c.Wallet.Bridge.HeartbeatInterval = 30 * time.Second
	}
	if c.Wallet.Bridge.ReadTimeout == 0 {
		c.Wallet.Bridge.ReadTimeout = 90 * time.Second
	}
	if c.Wallet.Bridge.WriteTimeout == 0 {
		c.Wallet.Bridge.WriteTimeout = 10 * time.Second
	}
	if c.Wallet.Keystore.PrivateKey == "" && c.Wallet.Keystore.PrivateKeyEnv == "" {
		c.Wallet.Keystore.PrivateKeyEnv = "TRADESPHERE_PRIVATE_KEY"
	}
	if c.Swap.DefaultSlippageBps == 0 {
		c.Swap.DefaultSlippageBps = 50
	}
	if c.Swap.DeadlineMinutes == 0 {
		c.Swap.DeadlineMinutes = 20
	}
	if c.Swap.ConfirmPollInterval == 0 {
		c.Swap.ConfirmPollInterval = 2 * time.Second
	}
	if c.Swap.GasSlippageBps == 0 {
		c.Swap.GasSlippageBps = 50
	}
	if c.Quote.Debounce == 0 {
		c.Quote.Debounce = 500 * time.Millisecond
	}
	if c.Quote.RefreshInterval == 0 {
		c.Quote.RefreshInterval = 15 * time.Second
	}
	if c.Quote.PriceImpact == "" {
		c.Quote.PriceImpact = "none"
	}
	if c.RPC.RateLimit == 0 {
		c.RPC.RateLimit = 10
	}
	if c.RPC.Burst == 0 {
		c.RPC.Burst = 20
	}
	if c.RPC.BreakerMaxRequests == 0 {
		c.RPC.BreakerMaxRequests = 3
	}
	if c.RPC.BreakerInterval == 0 {
		c.RPC.BreakerInterval = 60 * time.Second
	}
	if c.RPC.BreakerTimeout == 0 {
		c.RPC.BreakerTimeout = 30 * time.Second
	}
	if c.RPC.BreakerFailureThreshold == 0 {
		c.RPC.BreakerFailureThreshold = 5
	}
}

// Validate validates configuration
func (c *Config) Validate() error {
	if _, err := network.ParseEnvironment(c.App.Environment); err != nil {
		return fmt.Errorf("app.environment: %w", err)
	}

	switch c.Wallet.Mode {
	case WalletModeBridge:
		if c.Wallet.Bridge.ServerURL == "" {
			return fmt.Errorf("wallet.bridge.serverUrl is required in bridge mode")
		}
	case WalletModeKeystore:
	default:
		return fmt.Errorf("wallet.mode must be %q or %q, got %q", WalletModeBridge, WalletModeKeystore, c.Wallet.Mode)
	}

	for i, n := range c.Networks {
		if n.ChainID == 0 {
			return fmt.Errorf("networks[%d].chainId is required", i)
		}
		if n.Name == "" {
			return fmt.Errorf("networks[%d].name is required", i)
		}
		if n.NativeCurrency.Symbol == "" {
			return fmt.Errorf("networks[%d].nativeCurrency.symbol is required", i)
		}
		if len(n.RPCURLs) == 0 {
			return fmt.Errorf("networks[%d].rpcUrls needs at least one entry", i)
		}
	}

	for env := range c.Preferences {
		if _, err := network.ParseEnvironment(env); err != nil {
			return fmt.Errorf("preferences: %w", err)
		}
	}

	for i, r := range c.Routers {
		if r.ChainID == 0 {
			return fmt.Errorf("routers[%d].chainId is required", i)
		}
		if !common.IsHexAddress(r.Address) {
			return fmt.Errorf("routers[%d].address %q is not an address", i, r.Address)
		}
		if r.WrappedNative != "" && !common.IsHexAddress(r.WrappedNative) {
			return fmt.Errorf("routers[%d].wrappedNative %q is not an address", i, r.WrappedNative)
		}
	}

	for i, t := range c.Tokens {
		if t.ChainID == 0 {
			return fmt.Errorf("tokens[%d].chainId is required", i)
		}
		if t.Symbol == "" {
			return fmt.Errorf("tokens[%d].symbol is required", i)
		}
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("tokens[%d].address %q is not an address", i, t.Address)
		}
	}

	if c.Swap.DefaultSlippageBps > 10000 {
		return fmt.Errorf("swap.defaultSlippageBps must be at most 10000")
	}
	if c.Swap.GasSlippageBps > 10000 {
		return fmt.Errorf("swap.gasSlippageBps must be at most 10000")
	}
	switch c.Quote.PriceImpact {
	case "none", "probe":
	default:
		return fmt.Errorf("quote.priceImpact must be none or probe, got %q", c.Quote.PriceImpact)
	}
	return nil
}

// GetEnvironment parses app.environment
func (c *Config) GetEnvironment() network.Environment {
	env, err := network.ParseEnvironment(c.App.Environment)
	if err != nil {
		return network.EnvProduction
	}
	return env
}

// NetworkRegistry builds the chain table: built-in networks overlaid with
// configured ones, and built-in preferences replaced per environment
func (c *Config) NetworkRegistry() *network.Registry {
	extra := make([]network.Descriptor, 0, len(c.Networks))
	for _, n := range c.Networks {
		extra = append(extra, network.Descriptor{
			ChainID:     n.ChainID,
			DisplayName: n.Name,
			NativeCurrency: network.NativeCurrency{
				Name:     n.NativeCurrency.Name,
				Symbol:   n.NativeCurrency.Symbol,
				Decimals: n.NativeCurrency.Decimals,
			},
			RPCURLs:      n.RPCURLs,
			ExplorerURLs: n.ExplorerURLs,
			Testnet:      n.Testnet,
		})
	}

	prefs := network.DefaultPreferences()
	for name, ids := range c.Preferences {
		if env, err := network.ParseEnvironment(name); err == nil {
			prefs[env] = ids
		}
	}
	return network.NewRegistry(network.Merge(network.DefaultDescriptors(), extra...), prefs)
}

// TokenRegistry builds the token table for the given networks. Configured
// tokens replace the built-in list of their chain.
func (c *Config) TokenRegistry(networks *network.Registry) (*token.Registry, error) {
	lists := token.DefaultTokens()
	configured := make(map[uint64][]token.Descriptor)
	for _, t := range c.Tokens {
		configured[t.ChainID] = append(configured[t.ChainID], token.Descriptor{
			Symbol:   strings.TrimSpace(t.Symbol),
			Name:     t.Name,
			Address:  common.HexToAddress(t.Address),
			Decimals: t.Decimals,
		})
	}
	for chainID, list := range configured {
		lists[chainID] = list
	}
	return token.BuildRegistry(networks, lists)
}

// GetRouter gets the router for a chain, defaulting to DefaultRouterAddress
func (c *Config) GetRouter(chainID uint64) RouterConfig {
	for _, r := range c.Routers {
		if r.ChainID == chainID {
			return r
		}
	}
	return RouterConfig{ChainID: chainID, Address: DefaultRouterAddress}
}

// Overrides are values supplied by flags or environment variables
type Overrides struct {
	Environment string
	LogLevel    string
	WalletMode  string
	BridgeURL   string
	BridgeToken string
}

// ApplyOverrides replaces file values with non-empty overrides and
// validates the result
func (c *Config) ApplyOverrides(o Overrides) error {
	if o.Environment != "" {
		c.App.Environment = o.Environment
	}
	if o.LogLevel != "" {
		c.App.LogLevel = o.LogLevel
	}
	if o.WalletMode != "" {
		c.Wallet.Mode = o.WalletMode
	}
	if o.BridgeURL != "" {
		c.Wallet.Bridge.ServerURL = o.BridgeURL
	}
	if o.BridgeToken != "" {
		c.Wallet.Bridge.APIToken = o.BridgeToken
	}
	return c.Validate()
}
