// Package chain performs node reads and transaction submission through the
// connected wallet provider, behind a rate limiter and a circuit breaker.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ThetaSpace/tradesphere-swap/internal/network"
	"github.com/ThetaSpace/tradesphere-swap/internal/provider"
)

// CallMsg is the transaction object used by eth_call, eth_estimateGas and
// eth_sendTransaction
type CallMsg struct {
	From  *common.Address `json:"from,omitempty"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

// NewCall builds a CallMsg. from may be the zero address for plain reads.
func NewCall(from, to common.Address, value *big.Int, data []byte) CallMsg {
	msg := CallMsg{To: &to, Data: data}
	if from != (common.Address{}) {
		msg.From = &from
	}
	if value != nil && value.Sign() > 0 {
		msg.Value = (*hexutil.Big)(new(big.Int).Set(value))
	}
	return msg
}

// ValueInt returns the attached native value (never nil)
func (m CallMsg) ValueInt() *big.Int {
	if m.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(m.Value.ToInt())
}

// Receipt is the subset of a transaction receipt the client needs
type Receipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	Status      hexutil.Uint64 `json:"status"`
	BlockNumber *hexutil.Big   `json:"blockNumber"`
	GasUsed     hexutil.Uint64 `json:"gasUsed"`
}

// Succeeded reports a status-1 receipt
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}

// Config controls pacing and fault isolation
type Config struct {
	RateLimit               float64       // requests per second
	Burst                   int
	BreakerMaxRequests      uint32        // probes allowed while half-open
	BreakerInterval         time.Duration // closed-state counter reset period
	BreakerTimeout          time.Duration // open-state duration
	BreakerFailureThreshold uint32        // consecutive failures that trip the breaker
	PollInterval            time.Duration // receipt polling period
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		RateLimit:               10,
		Burst:                   20,
		BreakerMaxRequests:      3,
		BreakerInterval:         60 * time.Second,
		BreakerTimeout:          30 * time.Second,
		BreakerFailureThreshold: 5,
		PollInterval:            2 * time.Second,
	}
}

// Client wraps a provider with typed node calls
type Client struct {
	p            provider.Provider
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewClient creates a client; zero config fields take defaults
func NewClient(p provider.Provider, cfg Config, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.BreakerMaxRequests == 0 {
		cfg.BreakerMaxRequests = def.BreakerMaxRequests
	}
	if cfg.BreakerInterval <= 0 {
		cfg.BreakerInterval = def.BreakerInterval
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = def.BreakerFailureThreshold
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ChainClient")

	threshold := cfg.BreakerFailureThreshold
	settings := gobreaker.Settings{
		Name:        "chain-rpc",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		// an answer from the wallet, even an error object, means the path is healthy
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if _, ok := provider.ErrorCodeOf(err); ok {
				return true
			}
			return errors.Is(err, context.Canceled)
		},
	}

	return &Client{
		p:            p,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		breaker:      gobreaker.NewCircuitBreaker(settings),
		pollInterval: cfg.PollInterval,
		logger:       logger,
	}
}

// read runs a side-effect free call through the limiter and breaker
func (c *Client) read(ctx context.Context, out any, method string, params ...any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, provider.Call(ctx, c.p, out, method, params...)
	})
	return err
}

// ChainID returns the provider's current chain
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var hexID string
	if err := c.read(ctx, &hexID, provider.MethodChainID); err != nil {
		return 0, err
	}
	return network.ParseChainID(hexID)
}

// Balance returns the native balance of account at the latest block
func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	var bal hexutil.Big
	if err := c.read(ctx, &bal, provider.MethodGetBalance, account, "latest"); err != nil {
		return nil, err
	}
	return bal.ToInt(), nil
}

// Call executes a read-only contract call
func (c *Client) Call(ctx context.Context, msg CallMsg) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.read(ctx, &out, provider.MethodCall, msg, "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

// EstimateGas estimates the gas limit of msg
func (c *Client) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	var gas hexutil.Uint64
	if err := c.read(ctx, &gas, provider.MethodEstimateGas, msg); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

// GasPrice returns the current gas price in wei
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := c.read(ctx, &price, provider.MethodGasPrice); err != nil {
		return nil, err
	}
	return price.ToInt(), nil
}

// SendTransaction asks the wallet to sign and broadcast msg.
// Writes are rate limited but never short-circuited by the breaker.
func (c *Client) SendTransaction(ctx context.Context, msg CallMsg) (common.Hash, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return common.Hash{}, fmt.Errorf("rate limiter: %w", err)
	}
	var hash common.Hash
	if err := provider.Call(ctx, c.p, &hash, provider.MethodSendTransaction, msg); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// TransactionReceipt returns the receipt, or nil while the tx is pending
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var r *Receipt
	if err := c.read(ctx, &r, provider.MethodTransactionReceipt, hash); err != nil {
		return nil, err
	}
	return r, nil
}

// WaitMined polls until the transaction has a receipt or ctx ends.
// Transient read failures are logged and polling continues.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		r, err := c.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && r != nil:
			c.logger.Debug("Transaction mined", "txHash", hash.Hex(), "status", uint64(r.Status))
			return r, nil
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			c.logger.Warn("Receipt poll failed", "txHash", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
