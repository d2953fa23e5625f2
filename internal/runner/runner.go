package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/tradesphere-swap/internal/apperr"
	"github.com/ThetaSpace/tradesphere-swap/internal/chain"
	"github.com/ThetaSpace/tradesphere-swap/internal/config"
	"github.com/ThetaSpace/tradesphere-swap/internal/contracts"
	"github.com/ThetaSpace/tradesphere-swap/internal/gas"
	"github.com/ThetaSpace/tradesphere-swap/internal/network"
	"github.com/ThetaSpace/tradesphere-swap/internal/provider"
	"github.com/ThetaSpace/tradesphere-swap/internal/provider/bridge"
	"github.com/ThetaSpace/tradesphere-swap/internal/provider/keystore"
	"github.com/ThetaSpace/tradesphere-swap/internal/quote"
	"github.com/ThetaSpace/tradesphere-swap/internal/swap"
	"github.com/ThetaSpace/tradesphere-swap/internal/token"
	"github.com/ThetaSpace/tradesphere-swap/internal/wallet"
)

// restoreTimeout bounds the session restore after a bridge reconnect
const restoreTimeout = 30 * time.Second

// BalancePlaces is the number of fractional digits shown for balances
const BalancePlaces = 4

// Runner is the service runner
// Responsible for building all components and routing operations to them
type Runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	networks *network.Registry
	tokens   *token.Registry
	impact   quote.ImpactEstimator

	provider provider.Provider
	bridge   *bridge.Client // nil unless wallet.mode is bridge
	closer   func()
	chain    *chain.Client
	erc20    *contracts.ERC20
	wallet   *wallet.Manager

	approver keystore.ApproveFunc
	progress func(swap.Stage, common.Hash)
	guard    sync.Mutex // serialises Execute across markets

	mu      sync.Mutex
	started bool
	markets map[uint64]*Market
}

// Market holds the chain-bound trading components
type Market struct {
	ChainID  uint64
	Router   *contracts.Router
	Engine   *quote.Engine
	Gas      *gas.Estimator
	Executor *swap.Executor
}

// Option configures a Runner
type Option func(*Runner)

// WithProvider uses p instead of building one from wallet.mode
func WithProvider(p provider.Provider) Option {
	return func(r *Runner) { r.provider = p }
}

// WithApprover installs the keystore approval prompt
func WithApprover(fn keystore.ApproveFunc) Option {
	return func(r *Runner) { r.approver = fn }
}

// WithProgress reports swap stages
func WithProgress(fn func(swap.Stage, common.Hash)) Option {
	return func(r *Runner) { r.progress = fn }
}

// New creates a service runner
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		cfg:     cfg,
		logger:  logger,
		markets: make(map[uint64]*Market),
	}
	for _, opt := range opts {
		opt(r)
	}

	// 1. Network and token tables
	r.networks = cfg.NetworkRegistry()
	tokens, err := cfg.TokenRegistry(r.networks)
	if err != nil {
		return nil, fmt.Errorf("failed to build token registry: %w", err)
	}
	r.tokens = tokens
	logger.Info("Registries loaded",
		"chains", len(r.networks.ChainIDs()),
		"environment", cfg.GetEnvironment())

	impact, err := quote.ParseImpact(cfg.Quote.PriceImpact)
	if err != nil {
		return nil, err
	}
	r.impact = impact

	// 2. Wallet provider
	if r.provider == nil {
		if err := r.buildProvider(); err != nil {
			return nil, err
		}
	}

	// 3. Node client through the provider
	r.chain = chain.NewClient(r.provider, chain.Config{
		RateLimit:               cfg.RPC.RateLimit,
		Burst:                   cfg.RPC.Burst,
		BreakerMaxRequests:      cfg.RPC.BreakerMaxRequests,
		BreakerInterval:         cfg.RPC.BreakerInterval,
		BreakerTimeout:          cfg.RPC.BreakerTimeout,
		BreakerFailureThreshold: cfg.RPC.BreakerFailureThreshold,
		PollInterval:            cfg.Swap.ConfirmPollInterval,
	}, logger)
	r.erc20 = contracts.NewERC20(r.chain)

	// 4. Connection state owner
	r.wallet = wallet.NewManager(r.provider, r.networks, cfg.GetEnvironment(), logger)

	if r.bridge != nil {
		r.bridge.SetReconnectedHandler(func() {
			ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
			defer cancel()
			r.wallet.Disconnect()
			if _, err := r.wallet.Restore(ctx); err != nil {
				logger.Warn("Failed to restore wallet session", "error", err)
			}
		})
	}
	return r, nil
}

func (r *Runner) buildProvider() error {
	switch r.cfg.Wallet.Mode {
	case config.WalletModeBridge:
		bc := r.cfg.Wallet.Bridge
		r.bridge = bridge.NewClient(&bridge.Config{
			ServerURL:            bc.ServerURL,
			APIToken:             bc.APIToken,
			ReconnectInterval:    bc.ReconnectInterval,
			MaxReconnectAttempts: bc.MaxReconnectAttempts,
			HeartbeatInterval:    bc.HeartbeatInterval,
			ReadTimeout:          bc.ReadTimeout,
			WriteTimeout:         bc.WriteTimeout,
			RequestTimeout:       bc.RequestTimeout,
		}, r.logger)
		r.provider = r.bridge
		r.closer = func() {
			if err := r.bridge.Close(); err != nil {
				r.logger.Error("Failed to close wallet bridge", "error", err)
			}
		}
		r.logger.Info("Wallet provider initialized", "mode", "bridge", "server", bc.ServerURL)

	case config.WalletModeKeystore:
		ks := r.cfg.Wallet.Keystore
		key, err := keystore.LoadKey(keystore.KeyConfig{
			PrivateKey:    ks.PrivateKey,
			PrivateKeyEnv: ks.PrivateKeyEnv,
			Prompt:        ks.PromptForKey,
		})
		if err != nil {
			return fmt.Errorf("failed to load signing key: %w", err)
		}
		initial, err := r.initialChain()
		if err != nil {
			return err
		}
		var opts []keystore.Option
		if r.approver != nil && !ks.AutoApprove {
			opts = append(opts, keystore.WithApprover(r.approver))
		}
		w := keystore.New(key, initial, r.logger, opts...)
		r.provider = w
		r.closer = w.Close
		r.logger.Info("Wallet provider initialized",
			"mode", "keystore",
			"address", w.Address().Hex(),
			"chainId", initial.ChainID)

	default:
		return fmt.Errorf("unknown wallet mode %q", r.cfg.Wallet.Mode)
	}
	return nil
}

// initialChain picks the keystore's starting chain: the configured one,
// else the first preference of the environment
func (r *Runner) initialChain() (network.Descriptor, error) {
	ks := r.cfg.Wallet.Keystore
	id := ks.ChainID
	if id == 0 {
		order := r.networks.PreferenceOrder(r.cfg.GetEnvironment())
		if len(order) == 0 {
			return network.Descriptor{}, fmt.Errorf("no preferred chain for environment %s", r.cfg.GetEnvironment())
		}
		id = order[0]
	}
	d, ok := r.networks.DescriptorFor(id)
	if !ok {
		return network.Descriptor{}, fmt.Errorf("keystore chain %d is not configured", id)
	}
	if ks.RPCURL != "" {
		d.RPCURLs = append([]string{ks.RPCURL}, d.RPCURLs...)
	}
	return d, nil
}

// Networks returns the chain table
func (r *Runner) Networks() *network.Registry { return r.networks }

// Tokens returns the token table
func (r *Runner) Tokens() *token.Registry { return r.tokens }

// Wallet returns the connection manager
func (r *Runner) Wallet() *wallet.Manager { return r.wallet }

// Environment returns the configured environment
func (r *Runner) Environment() network.Environment { return r.cfg.GetEnvironment() }

// start dials the bridge once
func (r *Runner) start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if r.bridge != nil {
		r.logger.Info("Connecting to wallet bridge...")
		if err := r.bridge.Connect(ctx); err != nil {
			return apperr.New(apperr.ErrProviderUnavailable, "connect", err)
		}
	}
	r.started = true
	return nil
}

// Connect asks the wallet for an account and moves it to a supported chain
func (r *Runner) Connect(ctx context.Context) (wallet.State, error) {
	if err := r.start(ctx); err != nil {
		return r.wallet.State(), err
	}
	return r.wallet.Connect(ctx)
}

// Restore reattaches to an already authorised wallet without prompting
func (r *Runner) Restore(ctx context.Context) (wallet.State, error) {
	if err := r.start(ctx); err != nil {
		return r.wallet.State(), err
	}
	return r.wallet.Restore(ctx)
}

// Market returns the trading components of the connected chain
func (r *Runner) Market() (*Market, error) {
	st := r.wallet.State()
	if !st.Connected() {
		return nil, apperr.New(apperr.ErrNotConnected, "market", nil)
	}
	if !st.Supported {
		return nil, apperr.Newf(apperr.ErrNetworkSwitchFailed, "market", "chain %d is not supported", st.ChainID)
	}
	return r.MarketFor(st.ChainID)
}

// MarketFor returns the trading components of chainID, built on first use
func (r *Runner) MarketFor(chainID uint64) (*Market, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.markets[chainID]; ok {
		return m, nil
	}
	if !r.networks.IsSupported(chainID) {
		return nil, apperr.Newf(apperr.ErrNetworkSwitchFailed, "market", "chain %d is not supported", chainID)
	}

	rc := r.cfg.GetRouter(chainID)
	var wrapped common.Address
	if rc.WrappedNative != "" {
		wrapped = common.HexToAddress(rc.WrappedNative)
	}
	router := contracts.NewRouter(common.HexToAddress(rc.Address), r.chain, wrapped)
	logger := r.logger.With("chainId", chainID)

	engine := quote.NewEngine(router, logger, quote.WithImpact(r.impact))
	var execOpts []swap.Option
	if r.progress != nil {
		execOpts = append(execOpts, swap.WithProgress(r.progress))
	}
	m := &Market{
		ChainID: chainID,
		Router:  router,
		Engine:  engine,
		Gas: gas.NewEstimator(engine, r.chain, router.Address(), gas.Config{
			SlippageBps:     r.cfg.Swap.GasSlippageBps,
			DeadlineMinutes: r.cfg.Swap.DeadlineMinutes,
		}, logger),
		Executor: swap.NewExecutor(r.chain, r.erc20, router.Address(), logger, execOpts...),
	}
	r.markets[chainID] = m
	logger.Info("Market initialized", "router", router.Address().Hex())
	return m, nil
}

// Request resolves token references and a decimal amount on the connected
// chain. An empty amount leaves AmountIn unset.
func (r *Runner) Request(from, to, amount string) (quote.Request, error) {
	st := r.wallet.State()
	if !st.Connected() {
		return quote.Request{}, apperr.New(apperr.ErrNotConnected, "resolve", nil)
	}
	req := quote.Request{ChainID: st.ChainID}
	var err error
	if req.From, err = r.tokens.Lookup(st.ChainID, from); err != nil {
		return quote.Request{}, err
	}
	if req.To, err = r.tokens.Lookup(st.ChainID, to); err != nil {
		return quote.Request{}, err
	}
	if amount != "" {
		if req.AmountIn, err = token.ParseUnits(amount, req.From.Decimals); err != nil {
			return quote.Request{}, apperr.New(apperr.ErrInvalidSwapConfiguration, "resolve", err)
		}
	}
	return req, nil
}

// Quote prices req on the connected chain's market
func (r *Runner) Quote(ctx context.Context, req quote.Request) (*quote.Quote, error) {
	m, err := r.Market()
	if err != nil {
		return nil, err
	}
	return m.Engine.GetQuote(ctx, req)
}

// EstimateGas returns the native cost of trading req from the connected
// account, nil for incomplete input
func (r *Runner) EstimateGas(ctx context.Context, req quote.Request) (*gas.Estimate, error) {
	m, err := r.Market()
	if err != nil {
		return nil, err
	}
	st := r.wallet.State()
	native, ok := r.tokens.NativeFor(st.ChainID)
	if !ok {
		return nil, apperr.Newf(apperr.ErrTokenNotFound, "gas", "no native coin on chain %d", st.ChainID)
	}
	return m.Gas.Estimate(ctx, req, st.Account, native)
}

// Execute submits a trade against q on the connected chain
func (r *Runner) Execute(ctx context.Context, req swap.Request, q *quote.Quote) (swap.Result, error) {
	if !r.guard.TryLock() {
		err := apperr.New(apperr.ErrSwapInProgress, "swap", nil)
		return swap.Result{Err: err}, err
	}
	defer r.guard.Unlock()

	m, err := r.Market()
	if err != nil {
		return swap.Result{Err: err}, err
	}
	return m.Executor.Execute(ctx, req, q, r.wallet.State())
}

// Holding is one balance of the connected account
type Holding struct {
	Token   token.Descriptor
	Balance *big.Int
}

// Formatted renders the balance with BalancePlaces fractional digits
func (h Holding) Formatted() string {
	places := uint8(BalancePlaces)
	if h.Token.Decimals < places {
		places = h.Token.Decimals
	}
	return token.FormatFixed(h.Balance, h.Token.Decimals, places)
}

// Balances reads the native and token balances of the connected account.
// Unreadable token balances are logged and skipped.
func (r *Runner) Balances(ctx context.Context) ([]Holding, error) {
	st := r.wallet.State()
	if !st.Connected() {
		return nil, apperr.New(apperr.ErrNotConnected, "balance", nil)
	}

	var out []Holding
	for _, t := range r.tokens.Tokens(st.ChainID) {
		var (
			bal *big.Int
			err error
		)
		if t.Native {
			bal, err = r.wallet.Balance(ctx)
			if err != nil {
				return nil, err
			}
		} else {
			bal, err = r.erc20.BalanceOf(ctx, t.Address, st.Account)
			if err != nil {
				r.logger.Warn("Failed to read token balance", "token", t.Symbol, "error", err)
				continue
			}
		}
		out = append(out, Holding{Token: t, Balance: bal})
	}
	return out, nil
}

// Watch re-quotes req until ctx is cancelled or a signal arrives. A chain
// change clears the watched inputs, since tokens are chain specific.
func (r *Runner) Watch(ctx context.Context, req quote.Request, publish func(quote.Update)) error {
	m, err := r.Market()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	w := quote.NewWatcher(m.Engine, quote.WatcherConfig{
		Debounce:        r.cfg.Quote.Debounce,
		RefreshInterval: r.cfg.Quote.RefreshInterval,
	}, publish, r.logger)
	w.Start(ctx)
	defer w.Stop()

	unsubscribe := r.wallet.OnChange(func(st wallet.State) {
		if !st.Connected() || st.ChainID != m.ChainID {
			w.Update(quote.Request{})
		}
	})
	defer unsubscribe()

	w.Update(req)

	select {
	case sig := <-sigCh:
		r.logger.Info("Received signal, stopping watch", "signal", sig)
	case <-ctx.Done():
		r.logger.Info("Context cancelled, stopping watch")
	}
	return nil
}

// Run restores or opens a wallet session and reports every state change
// until ctx is cancelled or a signal arrives, then shuts down
func (r *Runner) Run(ctx context.Context, connect bool, onChange func(wallet.State)) error {
	r.logger.Info("Starting wallet session",
		"app", r.cfg.App.Name,
		"mode", r.cfg.Wallet.Mode,
		"environment", r.cfg.GetEnvironment())

	// Create cancellable context
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Listen for system signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	unsubscribe := r.wallet.OnChange(onChange)
	defer unsubscribe()

	var err error
	if connect {
		_, err = r.Connect(ctx)
	} else {
		_, err = r.Restore(ctx)
	}
	if err != nil && !r.wallet.State().Connected() {
		r.Shutdown()
		return err
	}
	onChange(r.wallet.State())

	// Wait for signal or context cancellation
	select {
	case sig := <-sigCh:
		r.logger.Info("Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		r.logger.Info("Context cancelled, shutting down")
	}

	// Graceful shutdown
	return r.Shutdown()
}

// Shutdown gracefully shuts down the service
func (r *Runner) Shutdown() error {
	r.logger.Info("Shutting down...")

	if r.wallet != nil {
		r.wallet.Close()
	}
	if r.closer != nil {
		r.closer()
	}

	r.logger.Info("Stopped")
	return nil
}
