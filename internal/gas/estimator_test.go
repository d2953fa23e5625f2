package gas

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/tradesphere-swap/internal/apperr"
	"github.com/ThetaSpace/tradesphere-swap/internal/chain"
	"github.com/ThetaSpace/tradesphere-swap/internal/contracts"
	"github.com/ThetaSpace/tradesphere-swap/internal/quote"
	"github.com/ThetaSpace/tradesphere-swap/internal/token"
)

var (
	routerAddr = common.HexToAddress("0x809d550fca64d94Bd9F66E60752A544199cfAC3D")
	wevmos     = common.HexToAddress("0x5Ed91D8c5FcEcD4C7523916712D7AF4F2Bb7aEE4")
	account    = common.HexToAddress("0x71C7656EC7ab88b098defB751B7401B5f6d8976F")

	evmos = token.Descriptor{Symbol: "EVMOS", Address: token.NativeAddress, Decimals: 18, Native: true}
	usdc  = token.Descriptor{Symbol: "USDC", Address: common.HexToAddress("0x5fd55a1b9fc24967c4db09c513c3ba0dfa7ff687"), Decimals: 6}

	routerABI, _ = abi.JSON(strings.NewReader(contracts.RouterABI))
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubQuoter returns a fixed quote for whatever is asked
type stubQuoter struct {
	calls int
	err   error
}

func (s *stubQuoter) Compute(ctx context.Context, req quote.Request) (*quote.Quote, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	path, v, err := quote.ResolveRoute(req.From, req.To, wevmos)
	if err != nil {
		return nil, err
	}
	return &quote.Quote{Request: req, Variant: v, Path: path, AmountIn: req.AmountIn, AmountOut: big.NewInt(1850450000)}, nil
}

type mockChain struct {
	msgs     []chain.CallMsg
	gas      uint64
	price    *big.Int
	gasErr   error
	priceErr error
}

func (m *mockChain) EstimateGas(ctx context.Context, msg chain.CallMsg) (uint64, error) {
	m.msgs = append(m.msgs, msg)
	return m.gas, m.gasErr
}

func (m *mockChain) GasPrice(ctx context.Context) (*big.Int, error) {
	return m.price, m.priceErr
}

func oneEther() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}

func TestEstimate(t *testing.T) {
	c := &mockChain{gas: 150000, price: big.NewInt(25000000000)}
	e := NewEstimator(&stubQuoter{}, c, routerAddr, Config{}, testLogger())

	req := quote.Request{ChainID: 9001, From: evmos, To: usdc, AmountIn: oneEther()}
	est, err := e.Estimate(context.Background(), req, account, evmos)
	if err != nil {
		t.Fatalf("Estimate() failed: %v", err)
	}
	if est.Cost.String() != "3750000000000000" {
		t.Errorf("Cost = %v, want 3750000000000000", est.Cost)
	}
	if got := est.CostFormatted(); got != "0.00375000" {
		t.Errorf("CostFormatted() = %q, want 0.00375000", got)
	}
	if est.Variant != quote.VariantNativeForToken {
		t.Errorf("Variant = %v, want native-for-token", est.Variant)
	}

	if len(c.msgs) != 1 {
		t.Fatalf("estimateGas calls = %d, want 1", len(c.msgs))
	}
	msg := c.msgs[0]
	if msg.ValueInt().Cmp(oneEther()) != 0 {
		t.Errorf("value = %v, want 1e18", msg.ValueInt())
	}
	method := routerABI.Methods[contracts.MethodSwapExactETHForTokens]
	if !bytes.Equal(msg.Data[:4], method.ID) {
		t.Fatalf("selector = %x, want %s", msg.Data[:4], method.Name)
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	// simulated at 0.5% below the quote
	if minOut := args[0].(*big.Int); minOut.Int64() != 1841197750 {
		t.Errorf("amountOutMin = %v, want 1841197750", minOut)
	}
}

func TestEstimate_IncompleteInput(t *testing.T) {
	q := &stubQuoter{}
	c := &mockChain{gas: 1, price: big.NewInt(1)}
	e := NewEstimator(q, c, routerAddr, Config{}, testLogger())

	tests := []struct {
		name    string
		req     quote.Request
		account common.Address
	}{
		{"no amount", quote.Request{ChainID: 9001, From: evmos, To: usdc}, account},
		{"zero amount", quote.Request{ChainID: 9001, From: evmos, To: usdc, AmountIn: big.NewInt(0)}, account},
		{"no destination", quote.Request{ChainID: 9001, From: evmos, AmountIn: oneEther()}, account},
		{"no account", quote.Request{ChainID: 9001, From: evmos, To: usdc, AmountIn: oneEther()}, common.Address{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, err := e.Estimate(context.Background(), tt.req, tt.account, evmos)
			if est != nil || err != nil {
				t.Errorf("Estimate() = %v, %v, want nil, nil", est, err)
			}
		})
	}
	if q.calls != 0 {
		t.Errorf("quotes = %d, want 0", q.calls)
	}
}

func TestEstimate_Failures(t *testing.T) {
	req := quote.Request{ChainID: 9001, From: usdc, To: evmos, AmountIn: big.NewInt(1000000)}

	e := NewEstimator(&stubQuoter{}, &mockChain{}, routerAddr, Config{}, testLogger())
	bad := quote.Request{ChainID: 9001, From: evmos, To: evmos, AmountIn: oneEther()}
	if _, err := e.Estimate(context.Background(), bad, account, evmos); !errors.Is(err, apperr.ErrInvalidSwapConfiguration) {
		t.Errorf("native/native error = %v, want ErrInvalidSwapConfiguration", err)
	}

	unavailable := apperr.New(apperr.ErrQuoteUnavailable, "quote", errors.New("no pair"))
	e = NewEstimator(&stubQuoter{err: unavailable}, &mockChain{}, routerAddr, Config{}, testLogger())
	if _, err := e.Estimate(context.Background(), req, account, evmos); !errors.Is(err, apperr.ErrQuoteUnavailable) {
		t.Errorf("quote failure error = %v, want ErrQuoteUnavailable", err)
	}

	reverted := errors.New("execution reverted: TransferHelper: TRANSFER_FROM_FAILED")
	e = NewEstimator(&stubQuoter{}, &mockChain{gasErr: reverted}, routerAddr, Config{}, testLogger())
	if _, err := e.Estimate(context.Background(), req, account, evmos); !errors.Is(err, reverted) {
		t.Errorf("estimateGas failure error = %v, want %v", err, reverted)
	}
}
