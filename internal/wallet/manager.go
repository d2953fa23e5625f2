// Package wallet owns the connection to the user's wallet: account access,
// the current chain, and negotiation onto a supported network.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ThetaSpace/tradesphere-swap/internal/apperr"
	"github.com/ThetaSpace/tradesphere-swap/internal/network"
	"github.com/ThetaSpace/tradesphere-swap/internal/provider"
)

// Manager is the single owner of the connection State. Other components
// read snapshots through State and never mutate it.
type Manager struct {
	provider provider.Provider
	registry *network.Registry
	env      network.Environment
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	gen        uint64 // bumped on every reset; stale connects compare against it
	subs       []provider.Subscription
	lastSwitch SwitchReport

	obsMu     sync.Mutex
	nextObs   int
	observers map[int]func(State)
}

// NewManager creates a manager. p may be nil when no wallet is available.
func NewManager(p provider.Provider, registry *network.Registry, env network.Environment, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider:  p,
		registry:  registry,
		env:       env,
		logger:    logger.With("component", "WalletManager"),
		observers: make(map[int]func(State)),
	}
}

// State returns a snapshot of the connection
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastSwitch returns the report of the most recent preference walk
func (m *Manager) LastSwitch() SwitchReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSwitch
}

// OnChange registers fn to receive every new snapshot. The returned
// function removes it.
func (m *Manager) OnChange(fn func(State)) func() {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.nextObs++
	id := m.nextObs
	m.observers[id] = fn
	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		delete(m.observers, id)
	}
}

func (m *Manager) notify() {
	s := m.State()
	m.obsMu.Lock()
	fns := make([]func(State), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.obsMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Connect requests account access and records the account and chain.
// On an unregistered chain it walks the preference order; if that fails
// the manager stays Connected{Unsupported} and the NetworkSwitchFailed
// error is returned alongside the connected state.
func (m *Manager) Connect(ctx context.Context) (State, error) {
	return m.open(ctx, provider.MethodRequestAccounts)
}

// Restore reconnects silently when the wallet already granted access.
// No prompt is shown; with no authorized account it stays Disconnected.
func (m *Manager) Restore(ctx context.Context) (State, error) {
	return m.open(ctx, provider.MethodAccounts)
}

func (m *Manager) open(ctx context.Context, method string) (State, error) {
	silent := method == provider.MethodAccounts

	if m.provider == nil {
		err := apperr.Newf(apperr.ErrProviderUnavailable, "connect", "no wallet provider configured")
		m.mu.Lock()
		m.state.LastError = err
		m.mu.Unlock()
		return m.State(), err
	}

	m.mu.Lock()
	switch m.state.Phase {
	case PhaseConnected:
		s := m.state
		m.mu.Unlock()
		return s, nil
	case PhaseConnecting:
		s := m.state
		m.mu.Unlock()
		return s, fmt.Errorf("connect: connection request already pending")
	}
	m.gen++
	gen := m.gen
	m.state = State{Phase: PhaseConnecting}
	m.mu.Unlock()
	m.notify()

	var accounts []common.Address
	if err := provider.Call(ctx, m.provider, &accounts, method); err != nil {
		kind := apperr.ErrProviderUnavailable
		if provider.IsUserRejected(err) {
			kind = apperr.ErrUserRejected
		}
		return m.fail(gen, apperr.New(kind, "connect", err))
	}
	if len(accounts) == 0 {
		if silent {
			return m.fail(gen, nil)
		}
		return m.fail(gen, apperr.Newf(apperr.ErrUserRejected, "connect", "no accounts authorized"))
	}

	chainID, err := m.readChainID(ctx)
	if err != nil {
		return m.fail(gen, apperr.New(apperr.ErrProviderUnavailable, "connect", err))
	}

	m.mu.Lock()
	if m.gen != gen {
		s := m.state
		m.mu.Unlock()
		return s, apperr.Newf(apperr.ErrNotConnected, "connect", "connection reset while connecting")
	}
	m.state = State{
		Account:   accounts[0],
		ChainID:   chainID,
		Phase:     PhaseConnected,
		Supported: m.registry.IsSupported(chainID),
	}
	m.subs = []provider.Subscription{
		m.provider.Subscribe(provider.EventAccountsChanged, m.handleAccountsChanged),
		m.provider.Subscribe(provider.EventChainChanged, m.handleChainChanged),
	}
	s := m.state
	m.mu.Unlock()

	m.logger.Info("Wallet connected",
		"account", s.Account.Hex(),
		"chainId", s.ChainID,
		"supported", s.Supported)
	m.notify()

	if !s.Supported {
		m.logger.Warn("Connected to unsupported chain, switching", "chainId", s.ChainID)
		if _, err := m.SwitchToPreferredNetwork(ctx); err != nil {
			return m.State(), err
		}
	}
	return m.State(), nil
}

// fail resets to Disconnected with err unless the attempt was superseded
func (m *Manager) fail(gen uint64, err error) (State, error) {
	m.mu.Lock()
	if m.gen == gen {
		m.state = State{Phase: PhaseDisconnected, LastError: err}
	}
	s := m.state
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("Wallet connection failed", "error", err)
	}
	m.notify()
	return s, err
}

func (m *Manager) readChainID(ctx context.Context) (uint64, error) {
	var hexID string
	if err := provider.Call(ctx, m.provider, &hexID, provider.MethodChainID); err != nil {
		return 0, err
	}
	return network.ParseChainID(hexID)
}

// Disconnect clears local state and releases notification subscriptions.
// Wallet permissions are left untouched.
func (m *Manager) Disconnect() {
	m.reset("disconnect requested")
}

// Close tears the session down and drops all observers
func (m *Manager) Close() {
	m.reset("session closed")
	m.obsMu.Lock()
	m.observers = make(map[int]func(State))
	m.obsMu.Unlock()
}

func (m *Manager) reset(reason string) {
	m.mu.Lock()
	m.gen++
	subs := m.subs
	m.subs = nil
	wasConnected := m.state.Phase != PhaseDisconnected
	m.state = State{Phase: PhaseDisconnected}
	m.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	if wasConnected {
		m.logger.Info("Wallet disconnected", "reason", reason)
	}
	m.notify()
}

func (m *Manager) handleAccountsChanged(payload json.RawMessage) {
	var accounts []common.Address
	if err := json.Unmarshal(payload, &accounts); err != nil {
		m.logger.Warn("Malformed accountsChanged payload", "error", err)
		return
	}
	if len(accounts) == 0 {
		m.reset("wallet reported no accounts")
		return
	}

	m.mu.Lock()
	if m.state.Phase != PhaseConnected || m.state.Account == accounts[0] {
		m.mu.Unlock()
		return
	}
	m.state.Account = accounts[0]
	m.mu.Unlock()

	m.logger.Info("Account changed", "account", accounts[0].Hex())
	m.notify()
}

func (m *Manager) handleChainChanged(payload json.RawMessage) {
	var hexID string
	if err := json.Unmarshal(payload, &hexID); err != nil {
		m.logger.Warn("Malformed chainChanged payload", "error", err)
		return
	}
	chainID, err := network.ParseChainID(hexID)
	if err != nil {
		m.logger.Warn("Malformed chainChanged payload", "error", err)
		return
	}
	if m.applyChain(chainID) {
		m.notify()
	}
}

// applyChain records chainID while Connected and reports whether anything changed
func (m *Manager) applyChain(chainID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase != PhaseConnected || m.state.ChainID == chainID {
		return false
	}
	m.state.ChainID = chainID
	m.state.Supported = m.registry.IsSupported(chainID)
	m.logger.Info("Chain changed", "chainId", chainID, "supported", m.state.Supported)
	return true
}

// SwitchToPreferredNetwork walks the environment's preference order and
// moves the wallet to the first chain it accepts
func (m *Manager) SwitchToPreferredNetwork(ctx context.Context) (SwitchReport, error) {
	if m.provider == nil {
		return SwitchReport{}, apperr.Newf(apperr.ErrProviderUnavailable, "switch network", "no wallet provider configured")
	}
	if !m.State().Connected() {
		return SwitchReport{}, apperr.New(apperr.ErrNotConnected, "switch network", nil)
	}

	var candidates []network.Descriptor
	for _, id := range m.registry.PreferenceOrder(m.env) {
		if d, ok := m.registry.DescriptorFor(id); ok {
			candidates = append(candidates, d)
		}
	}

	report, err := SwitchPreferred(ctx, providerSwitcher{p: m.provider}, candidates)
	m.logger.Info("Network switch finished",
		"environment", m.env,
		"attempts", report.Attempts,
		"selected", report.Selected,
		"added", report.Added)

	m.mu.Lock()
	m.lastSwitch = report
	if err != nil {
		m.state.LastError = err
	}
	m.mu.Unlock()

	if err != nil {
		m.notify()
		return report, err
	}

	// not every wallet emits chainChanged for its own switch
	chainID, readErr := m.readChainID(ctx)
	if readErr != nil {
		chainID = report.Selected
	}
	m.mu.Lock()
	m.state.LastError = nil
	m.mu.Unlock()
	m.applyChain(chainID)
	m.notify()
	return report, nil
}

// Balance returns the native balance of the connected account
func (m *Manager) Balance(ctx context.Context) (*big.Int, error) {
	s := m.State()
	if !s.Connected() {
		return nil, apperr.New(apperr.ErrNotConnected, "balance", nil)
	}
	var bal hexutil.Big
	if err := provider.Call(ctx, m.provider, &bal, provider.MethodGetBalance, s.Account, "latest"); err != nil {
		if errors.Is(err, provider.ErrNotConnected) {
			return nil, apperr.New(apperr.ErrProviderUnavailable, "balance", err)
		}
		return nil, fmt.Errorf("balance: %w", err)
	}
	return bal.ToInt(), nil
}
