package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/tradesphere-swap/internal/apperr"
	"github.com/ThetaSpace/tradesphere-swap/internal/chain"
	"github.com/ThetaSpace/tradesphere-swap/internal/contracts"
	"github.com/ThetaSpace/tradesphere-swap/internal/provider"
	"github.com/ThetaSpace/tradesphere-swap/internal/quote"
	"github.com/ThetaSpace/tradesphere-swap/internal/token"
	"github.com/ThetaSpace/tradesphere-swap/internal/wallet"
)

// DefaultDeadlineMinutes applies when a request leaves the deadline unset
const DefaultDeadlineMinutes = 20

// Chain submits transactions and waits for their receipts
type Chain interface {
	SendTransaction(ctx context.Context, msg chain.CallMsg) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*chain.Receipt, error)
}

// AllowanceReader reads ERC20 allowances
type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// Request is a user's trade intent
type Request struct {
	From            token.Descriptor
	To              token.Descriptor
	AmountIn        *big.Int
	SlippageBps     uint32
	DeadlineMinutes uint32   // 0 means DefaultDeadlineMinutes
	MinAmountOut    *big.Int // optional caller floor
}

// Result is the terminal outcome of one Execute call
type Result struct {
	Success        bool
	TxHash         common.Hash
	ApprovalTxHash common.Hash
	Variant        quote.Variant
	MinAmountOut   *big.Int
	Deadline       *big.Int
	Err            error
}

// Stage reports progress through the approve/trade sequence
type Stage int

const (
	StageApproving Stage = iota
	StageApproved
	StageSwapping
	StageSwapped
)

func (s Stage) String() string {
	switch s {
	case StageApproving:
		return "approving"
	case StageApproved:
		return "approved"
	case StageSwapping:
		return "swapping"
	case StageSwapped:
		return "swapped"
	default:
		return "unknown"
	}
}

// Option configures an Executor
type Option func(*Executor)

// WithClock overrides the deadline time source
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// WithProgress registers a callback invoked as each stage is reached.
// hash is the transaction of that stage, zero before submission.
func WithProgress(fn func(stage Stage, hash common.Hash)) Option {
	return func(e *Executor) {
		e.progress = fn
	}
}

// Executor runs one swap at a time
type Executor struct {
	chain    Chain
	tokens   AllowanceReader
	router   common.Address
	now      func() time.Time
	progress func(Stage, common.Hash)
	logger   *slog.Logger

	busy atomic.Bool
}

// NewExecutor creates an executor trading through router
func NewExecutor(c Chain, tokens AllowanceReader, router common.Address, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		chain:  c,
		tokens: tokens,
		router: router,
		now:    time.Now,
		logger: logger.With("component", "SwapExecutor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Busy reports whether a swap is in flight
func (e *Executor) Busy() bool {
	return e.busy.Load()
}

// Execute trades req against q for the connected account. A second call
// while one is running is rejected with ErrSwapInProgress. For a token
// source with insufficient allowance an approval is submitted and must be
// mined before the trade is sent. The returned Result mirrors the error.
func (e *Executor) Execute(ctx context.Context, req Request, q *quote.Quote, conn wallet.State) (Result, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return e.fail(Result{}, apperr.New(apperr.ErrSwapInProgress, "swap", nil))
	}
	defer e.busy.Store(false)

	if !conn.Connected() || !conn.HasAccount() {
		return e.fail(Result{}, apperr.New(apperr.ErrNotConnected, "swap", nil))
	}

	variant, err := quote.SelectVariant(req.From, req.To)
	if err != nil {
		return e.fail(Result{}, err)
	}
	res := Result{Variant: variant}

	if err := validate(req); err != nil {
		return e.fail(res, err)
	}
	qreq := quote.Request{ChainID: conn.ChainID, From: req.From, To: req.To, AmountIn: req.AmountIn}
	if !q.Matches(qreq) {
		return e.fail(res, apperr.Newf(apperr.ErrQuoteUnavailable, "swap", "quote does not match the current inputs"))
	}

	minOut := MinAmountOut(q.AmountOut, req.SlippageBps)
	if req.MinAmountOut != nil && req.MinAmountOut.Cmp(minOut) > 0 {
		minOut = new(big.Int).Set(req.MinAmountOut)
	}
	res.MinAmountOut = minOut

	account := conn.Account
	logger := e.logger.With("account", account.Hex(), "variant", variant.String())

	if !variant.PaysNative() {
		hash, err := e.ensureAllowance(ctx, logger, req.From.Address, account, req.AmountIn)
		res.ApprovalTxHash = hash
		if err != nil {
			return e.fail(res, err)
		}
	}

	minutes := req.DeadlineMinutes
	if minutes == 0 {
		minutes = DefaultDeadlineMinutes
	}
	// taken after any approval wait so the full window applies to the trade
	res.Deadline = Deadline(e.now(), minutes)

	msg, err := Trade{
		Variant:      variant,
		Router:       e.router,
		Account:      account,
		Path:         q.Path,
		AmountIn:     req.AmountIn,
		AmountOutMin: minOut,
		Deadline:     res.Deadline,
	}.CallMsg()
	if err != nil {
		return e.fail(res, apperr.New(apperr.ErrInvalidSwapConfiguration, "swap", err))
	}

	e.report(StageSwapping, common.Hash{})
	hash, err := e.chain.SendTransaction(ctx, msg)
	if err != nil {
		return e.fail(res, submitError(apperr.ErrSwapReverted, "swap", err))
	}
	res.TxHash = hash
	logger.Info("Swap submitted",
		"txHash", hash.Hex(),
		"amountIn", req.AmountIn.String(),
		"minAmountOut", minOut.String(),
		"deadline", res.Deadline.String())

	receipt, err := e.chain.WaitMined(ctx, hash)
	if err != nil {
		return e.fail(res, apperr.New(apperr.ErrSwapReverted, "swap", fmt.Errorf("waiting for %s: %w", hash.Hex(), err)))
	}
	if !receipt.Succeeded() {
		return e.fail(res, apperr.Newf(apperr.ErrSwapReverted, "swap", "transaction %s reverted", hash.Hex()))
	}

	res.Success = true
	e.report(StageSwapped, hash)
	logger.Info("Swap confirmed", "txHash", hash.Hex(), "gasUsed", uint64(receipt.GasUsed))
	return res, nil
}

// ensureAllowance approves exactly amount when the current allowance is
// short, and waits for the approval to be mined
func (e *Executor) ensureAllowance(ctx context.Context, logger *slog.Logger, tokenAddr, owner common.Address, amount *big.Int) (common.Hash, error) {
	allowance, err := e.tokens.Allowance(ctx, tokenAddr, owner, e.router)
	if err != nil {
		return common.Hash{}, apperr.New(apperr.ErrApprovalFailed, "approve", fmt.Errorf("read allowance: %w", err))
	}
	if allowance.Cmp(amount) >= 0 {
		logger.Debug("Allowance sufficient", "allowance", allowance.String())
		return common.Hash{}, nil
	}

	data, err := contracts.PackApprove(e.router, amount)
	if err != nil {
		return common.Hash{}, apperr.New(apperr.ErrApprovalFailed, "approve", err)
	}

	e.report(StageApproving, common.Hash{})
	hash, err := e.chain.SendTransaction(ctx, chain.NewCall(owner, tokenAddr, nil, data))
	if err != nil {
		return common.Hash{}, submitError(apperr.ErrApprovalFailed, "approve", err)
	}
	logger.Info("Approval submitted", "txHash", hash.Hex(), "token", tokenAddr.Hex(), "amount", amount.String())

	receipt, err := e.chain.WaitMined(ctx, hash)
	if err != nil {
		return hash, apperr.New(apperr.ErrApprovalFailed, "approve", fmt.Errorf("waiting for %s: %w", hash.Hex(), err))
	}
	if !receipt.Succeeded() {
		return hash, apperr.Newf(apperr.ErrApprovalFailed, "approve", "transaction %s reverted", hash.Hex())
	}

	e.report(StageApproved, hash)
	logger.Info("Approval confirmed", "txHash", hash.Hex())
	return hash, nil
}

func validate(req Request) error {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return apperr.Newf(apperr.ErrInvalidSwapConfiguration, "swap", "amount must be positive")
	}
	if req.SlippageBps > MaxSlippageBps {
		return apperr.Newf(apperr.ErrInvalidSwapConfiguration, "swap", "slippage %d bps exceeds %d", req.SlippageBps, MaxSlippageBps)
	}
	if req.MinAmountOut != nil && req.MinAmountOut.Sign() < 0 {
		return apperr.Newf(apperr.ErrInvalidSwapConfiguration, "swap", "minimum output cannot be negative")
	}
	return nil
}

// submitError classifies a failed submission
func submitError(kind error, op string, err error) error {
	switch {
	case provider.IsUserRejected(err):
		return apperr.New(apperr.ErrUserRejected, op, err)
	case errors.Is(err, provider.ErrNotConnected):
		return apperr.New(apperr.ErrProviderUnavailable, op, err)
	default:
		return apperr.New(kind, op, err)
	}
}

func (e *Executor) report(stage Stage, hash common.Hash) {
	if e.progress != nil {
		e.progress(stage, hash)
	}
}

func (e *Executor) fail(res Result, err error) (Result, error) {
	res.Success = false
	res.Err = err
	e.logger.Warn("Swap failed", "variant", res.Variant.String(), "error", err)
	return res, err
}
