package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/tradesphere-swap/internal/apperr"
	"github.com/ThetaSpace/tradesphere-swap/internal/chain"
	"github.com/ThetaSpace/tradesphere-swap/internal/config"
	"github.com/ThetaSpace/tradesphere-swap/internal/contracts"
	"github.com/ThetaSpace/tradesphere-swap/internal/network"
	"github.com/ThetaSpace/tradesphere-swap/internal/provider"
	"github.com/ThetaSpace/tradesphere-swap/internal/swap"
	"github.com/ThetaSpace/tradesphere-swap/internal/wallet"
)

var (
	testAccount = common.HexToAddress("0x71C7656EC7ab88b098defB751B7401B5f6d8976F")
	testWETH    = common.HexToAddress("0x5Ed91D8c5FcEcD4C7523916712D7AF4F2Bb7aEE4")

	routerABI, _ = abi.JSON(strings.NewReader(contracts.RouterABI))
	erc20ABI, _  = abi.JSON(strings.NewReader(contracts.ERC20ABI))
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// nodeWallet answers wallet and node requests for one account on chain 9001.
// The pool prices 1 EVMOS at 1850.45 USDC.
type nodeWallet struct {
	*provider.Emitter

	mu   sync.Mutex
	sent []chain.CallMsg
}

func newNodeWallet() *nodeWallet {
	return &nodeWallet{Emitter: provider.NewEmitter()}
}

func (n *nodeWallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case provider.MethodRequestAccounts, provider.MethodAccounts:
		return json.Marshal([]common.Address{testAccount})
	case provider.MethodChainID:
		return json.Marshal(network.Descriptor{ChainID: network.ChainEvmosMainnet}.ChainIDHex())
	case provider.MethodGetBalance:
		return json.Marshal("0xde0b6b3a7640000")
	case provider.MethodEstimateGas:
		return json.Marshal("0x249f0")
	case provider.MethodGasPrice:
		return json.Marshal("0x5d21dba00")
	case provider.MethodCall:
		return n.call(params[0].(chain.CallMsg))
	case provider.MethodSendTransaction:
		n.mu.Lock()
		n.sent = append(n.sent, params[0].(chain.CallMsg))
		hash := common.BigToHash(big.NewInt(int64(len(n.sent))))
		n.mu.Unlock()
		return json.Marshal(hash)
	case provider.MethodTransactionReceipt:
		return json.Marshal(map[string]any{
			"transactionHash": params[0],
			"status":          "0x1",
			"gasUsed":         "0x249f0",
			"blockNumber":     "0x10",
		})
	}
	return nil, &provider.RPCError{Code: provider.CodeUnsupportedMethod, Message: "unsupported"}
}

func (n *nodeWallet) call(msg chain.CallMsg) (json.RawMessage, error) {
	var (
		out []byte
		err error
	)
	if m, lookupErr := routerABI.MethodById(msg.Data[:4]); lookupErr == nil {
		switch m.Name {
		case "WETH":
			out, err = m.Outputs.Pack(testWETH)
		case "getAmountsOut":
			args, _ := m.Inputs.Unpack(msg.Data[4:])
			in := args[0].(*big.Int)
			path := args[1].([]common.Address)
			// 1e18 wei -> 1850450000 (6 decimals), and the inverse
			last := new(big.Int)
			if path[0] == testWETH {
				last.Mul(in, big.NewInt(185045)).Quo(last, big.NewInt(1e14))
			} else {
				last.Mul(in, big.NewInt(1e14)).Quo(last, big.NewInt(185045))
			}
			amounts := make([]*big.Int, len(path))
			amounts[0] = in
			for i := 1; i < len(path); i++ {
				amounts[i] = last
			}
			out, err = m.Outputs.Pack(amounts)
		}
	} else if m, lookupErr := erc20ABI.MethodById(msg.Data[:4]); lookupErr == nil {
		switch m.Name {
		case "balanceOf":
			out, err = m.Outputs.Pack(big.NewInt(5000000))
		case "allowance":
			out, err = m.Outputs.Pack(big.NewInt(0))
		}
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &provider.RPCError{Code: -32000, Message: "execution reverted"}
	}
	return json.Marshal("0x" + common.Bytes2Hex(out))
}

func newTestRunner(t *testing.T, p provider.Provider) *Runner {
	t.Helper()
	r, err := New(config.Default(), testLogger(), WithProvider(p))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { r.Shutdown() })
	return r
}

func TestRunner_QuoteGasAndSwap(t *testing.T) {
	node := newNodeWallet()
	r := newTestRunner(t, node)
	ctx := context.Background()

	st, err := r.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	if st.Label() != "Connected{Supported}" || st.ChainID != network.ChainEvmosMainnet {
		t.Fatalf("state = %v, want Connected{Supported} on 9001", st)
	}

	req, err := r.Request("evmos", "USDC", "1")
	if err != nil {
		t.Fatalf("Request() failed: %v", err)
	}
	q, err := r.Quote(ctx, req)
	if err != nil {
		t.Fatalf("Quote() failed: %v", err)
	}
	if got := q.FormatAmountOut(); got != "1850.450000" {
		t.Errorf("FormatAmountOut() = %q, want 1850.450000", got)
	}
	if len(q.Path) != 2 || q.Path[0] != testWETH {
		t.Errorf("Path = %v, want [WEVMOS USDC]", q.Path)
	}

	est, err := r.EstimateGas(ctx, req)
	if err != nil {
		t.Fatalf("EstimateGas() failed: %v", err)
	}
	if est.CostFormatted() != "0.00375000" {
		t.Errorf("CostFormatted() = %q, want 0.00375000", est.CostFormatted())
	}

	res, err := r.Execute(ctx, swap.Request{From: req.From, To: req.To, AmountIn: req.AmountIn, SlippageBps: 50}, q)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !res.Success || res.ApprovalTxHash != (common.Hash{}) {
		t.Errorf("result = %+v, want success without approval", res)
	}
	if res.MinAmountOut.Int64() != 1841197750 {
		t.Errorf("MinAmountOut = %v, want 1841197750", res.MinAmountOut)
	}
	if len(node.sent) != 1 || node.sent[0].ValueInt().Cmp(req.AmountIn) != 0 {
		t.Errorf("sent = %d transactions, want one carrying 1 EVMOS", len(node.sent))
	}
}

func TestRunner_TokenSwapApproves(t *testing.T) {
	node := newNodeWallet()
	r := newTestRunner(t, node)
	ctx := context.Background()

	if _, err := r.Connect(ctx); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	req, err := r.Request("USDC", "EVMOS", "2.5")
	if err != nil {
		t.Fatalf("Request() failed: %v", err)
	}
	if req.AmountIn.Int64() != 2500000 {
		t.Fatalf("AmountIn = %v, want 2500000", req.AmountIn)
	}
	q, err := r.Quote(ctx, req)
	if err != nil {
		t.Fatalf("Quote() failed: %v", err)
	}

	res, err := r.Execute(ctx, swap.Request{From: req.From, To: req.To, AmountIn: req.AmountIn, SlippageBps: 100}, q)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if res.ApprovalTxHash == (common.Hash{}) {
		t.Error("ApprovalTxHash is zero, want an approval")
	}
	if len(node.sent) != 2 {
		t.Fatalf("sent = %d transactions, want approve then swap", len(node.sent))
	}
	if *node.sent[0].To != req.From.Address {
		t.Errorf("first transaction to %s, want the USDC contract", node.sent[0].To.Hex())
	}
}

func TestRunner_Balances(t *testing.T) {
	r := newTestRunner(t, newNodeWallet())
	ctx := context.Background()

	if _, err := r.Balances(ctx); !errors.Is(err, apperr.ErrNotConnected) {
		t.Errorf("Balances() before connect error = %v, want ErrNotConnected", err)
	}
	if _, err := r.Connect(ctx); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	holdings, err := r.Balances(ctx)
	if err != nil {
		t.Fatalf("Balances() failed: %v", err)
	}
	if len(holdings) != 4 {
		t.Fatalf("holdings = %d, want EVMOS plus 3 tokens", len(holdings))
	}
	if holdings[0].Token.Symbol != "EVMOS" || holdings[0].Formatted() != "1.0000" {
		t.Errorf("native holding = %s %s, want EVMOS 1.0000", holdings[0].Token.Symbol, holdings[0].Formatted())
	}
}

func TestRunner_Run(t *testing.T) {
	r := newTestRunner(t, newNodeWallet())
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu     sync.Mutex
		phases []wallet.Phase
	)
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, true, func(st wallet.State) {
			mu.Lock()
			phases = append(phases, st.Phase)
			connected := st.Connected()
			mu.Unlock()
			if connected {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(phases) == 0 || phases[len(phases)-1] != wallet.PhaseDisconnected {
		t.Errorf("phases = %v, want to end Disconnected after shutdown", phases)
	}
}

func TestRunner_RequiresConnection(t *testing.T) {
	r := newTestRunner(t, newNodeWallet())
	ctx := context.Background()

	if _, err := r.Request("EVMOS", "USDC", "1"); !errors.Is(err, apperr.ErrNotConnected) {
		t.Errorf("Request() error = %v, want ErrNotConnected", err)
	}
	if _, err := r.Market(); !errors.Is(err, apperr.ErrNotConnected) {
		t.Errorf("Market() error = %v, want ErrNotConnected", err)
	}
	res, err := r.Execute(ctx, swap.Request{}, nil)
	if !errors.Is(err, apperr.ErrNotConnected) || !errors.Is(res.Err, apperr.ErrNotConnected) {
		t.Errorf("Execute() error = %v, want ErrNotConnected", err)
	}
}

func TestRunner_UnknownToken(t *testing.T) {
	r := newTestRunner(t, newNodeWallet())
	if _, err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	if _, err := r.Request("EVMOS", "DOGE", "1"); !errors.Is(err, apperr.ErrTokenNotFound) {
		t.Errorf("Request(DOGE) error = %v, want ErrTokenNotFound", err)
	}
	if _, err := r.Request("EVMOS", "USDC", "1.2.3"); !errors.Is(err, apperr.ErrInvalidSwapConfiguration) {
		t.Errorf("Request(bad amount) error = %v, want ErrInvalidSwapConfiguration", err)
	}
}

func TestRunner_MarketCached(t *testing.T) {
	r := newTestRunner(t, newNodeWallet())
	a, err := r.MarketFor(network.ChainEvmosMainnet)
	if err != nil {
		t.Fatalf("MarketFor() failed: %v", err)
	}
	b, _ := r.MarketFor(network.ChainEvmosMainnet)
	if a != b {
		t.Error("MarketFor() built a second market for the same chain")
	}
	if a.Router.Address() != common.HexToAddress(config.DefaultRouterAddress) {
		t.Errorf("router = %s, want default", a.Router.Address().Hex())
	}
	if _, err := r.MarketFor(1); !errors.Is(err, apperr.ErrNetworkSwitchFailed) {
		t.Errorf("MarketFor(1) error = %v, want ErrNetworkSwitchFailed", err)
	}
}

func TestNew_KeystoreMode(t *testing.T) {
	cfg := config.Default()
	cfg.Wallet.Keystore.PrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	r, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer r.Shutdown()

	if r.bridge != nil {
		t.Error("bridge built in keystore mode")
	}
	if r.Wallet().State().Phase != wallet.PhaseDisconnected {
		t.Errorf("initial phase = %v, want Disconnected", r.Wallet().State().Phase)
	}

	cfg = config.Default()
	cfg.Wallet.Keystore.PrivateKey = ""
	cfg.Wallet.Keystore.PrivateKeyEnv = "TRADESPHERE_TEST_UNSET_KEY"
	if _, err := New(cfg, testLogger()); err == nil {
		t.Error("New() without a key succeeded")
	}
}
