// Package gas estimates the native-currency cost of a swap before it is
// submitted.
package gas

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/tradesphere-swap/internal/chain"
	"github.com/ThetaSpace/tradesphere-swap/internal/quote"
	"github.com/ThetaSpace/tradesphere-swap/internal/swap"
	"github.com/ThetaSpace/tradesphere-swap/internal/token"
)

// DefaultSlippageBps is the floor used when simulating the trade
const DefaultSlippageBps = 50

// Quoter prices a request without changing any tracked quote
type Quoter interface {
	Compute(ctx context.Context, req quote.Request) (*quote.Quote, error)
}

// Chain is the node surface used for estimation
type Chain interface {
	EstimateGas(ctx context.Context, msg chain.CallMsg) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
}

// Estimate is the expected cost of one trade
type Estimate struct {
	Variant  quote.Variant
	GasLimit uint64
	GasPrice *big.Int // wei
	Cost     *big.Int // GasLimit * GasPrice, wei
	Native   token.Descriptor
}

// CostFormatted renders Cost in whole native units at display precision
func (e *Estimate) CostFormatted() string {
	dec := e.Native.Decimals
	return token.FormatFixed(e.Cost, dec, token.DisplayPrecision(dec))
}

// Config controls the simulated trade
type Config struct {
	SlippageBps     uint32
	DeadlineMinutes uint32
}

// Estimator simulates the exact router call the executor would send
type Estimator struct {
	quoter Quoter
	chain  Chain
	router common.Address
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewEstimator creates an estimator. Zero config fields take defaults.
func NewEstimator(q Quoter, c Chain, router common.Address, cfg Config, logger *slog.Logger) *Estimator {
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = DefaultSlippageBps
	}
	if cfg.DeadlineMinutes == 0 {
		cfg.DeadlineMinutes = swap.DefaultDeadlineMinutes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{
		quoter: q,
		chain:  c,
		router: router,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "GasEstimator"),
	}
}

// Estimate returns the cost of trading req from account. Incomplete input
// (no amount, no account, unset token) yields nil with no error; failures
// of the quote or node calls are returned.
func (e *Estimator) Estimate(ctx context.Context, req quote.Request, account common.Address, native token.Descriptor) (*Estimate, error) {
	if !req.Ready() || account == (common.Address{}) {
		return nil, nil
	}
	if _, err := quote.SelectVariant(req.From, req.To); err != nil {
		return nil, err
	}

	q, err := e.quoter.Compute(ctx, req)
	if err != nil {
		return nil, err
	}

	msg, err := swap.Trade{
		Variant:      q.Variant,
		Router:       e.router,
		Account:      account,
		Path:         q.Path,
		AmountIn:     req.AmountIn,
		AmountOutMin: swap.MinAmountOut(q.AmountOut, e.cfg.SlippageBps),
		Deadline:     swap.Deadline(e.now(), e.cfg.DeadlineMinutes),
	}.CallMsg()
	if err != nil {
		return nil, err
	}

	limit, err := e.chain.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate %s: %w", q.Variant, err)
	}
	price, err := e.chain.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	est := &Estimate{
		Variant:  q.Variant,
		GasLimit: limit,
		GasPrice: price,
		Cost:     new(big.Int).Mul(new(big.Int).SetUint64(limit), price),
		Native:   native,
	}
	e.logger.Debug("Gas estimated",
		"variant", q.Variant.String(),
		"gasLimit", limit,
		"gasPrice", price.String(),
		"cost", est.Cost.String())
	return est, nil
}
