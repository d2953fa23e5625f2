package quote

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/tradesphere-swap/internal/apperr"
	"github.com/ThetaSpace/tradesphere-swap/internal/token"
)

// ErrSuperseded marks a response that arrived after a newer request was made
var ErrSuperseded = errors.New("superseded by a newer quote request")

// Router is the read surface of the AMM router used for pricing
type Router interface {
	WETH(ctx context.Context) (common.Address, error)
	GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
}

// Engine prices requests through the router. GetQuote is last-request-wins:
// a response to a superseded request is discarded.
type Engine struct {
	router Router
	impact ImpactEstimator
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	seq    uint64
	latest *Quote
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithImpact sets the price impact estimator
func WithImpact(est ImpactEstimator) EngineOption {
	return func(e *Engine) {
		if est != nil {
			e.impact = est
		}
	}
}

// WithClock overrides the quote timestamp source
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a quote engine
func NewEngine(router Router, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		router: router,
		impact: NoImpact{},
		now:    time.Now,
		logger: logger.With("component", "QuoteEngine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute prices req without touching the engine's tracked quote.
// The variant is validated before any router call.
func (e *Engine) Compute(ctx context.Context, req Request) (*Quote, error) {
	variant, err := SelectVariant(req.From, req.To)
	if err != nil {
		return nil, err
	}
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, apperr.Newf(apperr.ErrQuoteUnavailable, "quote", "amount must be positive")
	}

	var weth common.Address
	if variant.NeedsWrappedNative() {
		weth, err = e.router.WETH(ctx)
		if err != nil {
			return nil, apperr.New(apperr.ErrQuoteUnavailable, "quote", err)
		}
	}
	path, _, err := ResolveRoute(req.From, req.To, weth)
	if err != nil {
		return nil, err
	}

	amounts, err := e.router.GetAmountsOut(ctx, req.AmountIn, path)
	if err != nil {
		return nil, apperr.New(apperr.ErrQuoteUnavailable, "quote", err)
	}
	raw := amounts[len(amounts)-1]
	if raw == nil || raw.Sign() <= 0 {
		return nil, apperr.Newf(apperr.ErrQuoteUnavailable, "quote", "router returned no output for %s -> %s", req.From, req.To)
	}

	outDec := req.To.Decimals
	amountOut := token.Truncate(raw, outDec, token.DisplayPrecision(outDec))

	q := &Quote{
		Request:      req,
		Variant:      variant,
		Path:         path,
		AmountIn:     new(big.Int).Set(req.AmountIn),
		AmountOut:    amountOut,
		RawAmountOut: new(big.Int).Set(raw),
		ExchangeRate: token.Rate(req.AmountIn, req.From.Decimals, amountOut, outDec),
		CreatedAt:    e.now(),
	}

	impact, err := e.impact.Estimate(ctx, e.router, path, req.AmountIn, raw)
	if err != nil {
		e.logger.Warn("Price impact unavailable", "error", err)
	} else {
		q.PriceImpact = impact
	}

	return q, nil
}

// GetQuote prices req and makes it the engine's current quote. Starting a
// request clears the previous quote; if another request starts before this
// one finishes, the result is discarded with ErrSuperseded.
func (e *Engine) GetQuote(ctx context.Context, req Request) (*Quote, error) {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.latest = nil
	e.mu.Unlock()

	q, err := e.Compute(ctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.seq {
		e.logger.Debug("Discarding superseded quote", "seq", seq, "current", e.seq)
		return nil, apperr.New(apperr.ErrQuoteUnavailable, "quote", ErrSuperseded)
	}
	if err != nil {
		return nil, err
	}

	q.Seq = seq
	e.latest = q
	e.logger.Debug("Quote updated",
		"seq", seq,
		"from", req.From.Symbol,
		"to", req.To.Symbol,
		"amountIn", req.AmountIn.String(),
		"amountOut", q.AmountOut.String())
	return q, nil
}

// Latest returns the current quote if it was computed for req
func (e *Engine) Latest(req Request) *Quote {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest.Matches(req) {
		return e.latest
	}
	return nil
}

// Invalidate drops the current quote and supersedes any request in flight
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	e.latest = nil
}
