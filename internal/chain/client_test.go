package chain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker"

	"github.com/ThetaSpace/tradesphere-swap/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockProvider answers requests through a handler function
type mockProvider struct {
	mu      sync.Mutex
	handler func(method string, params []any) (any, error)
	methods []string
}

func (m *mockProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	m.mu.Lock()
	m.methods = append(m.methods, method)
	m.mu.Unlock()

	result, err := m.handler(method, params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func (m *mockProvider) Subscribe(provider.Event, func(json.RawMessage)) provider.Subscription {
	return nil
}

func (m *mockProvider) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, got := range m.methods {
		if got == method {
			n++
		}
	}
	return n
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimit = 1000
	cfg.Burst = 1000
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func TestClient_Reads(t *testing.T) {
	p := &mockProvider{handler: func(method string, params []any) (any, error) {
		switch method {
		case provider.MethodChainID:
			return "0x2329", nil
		case provider.MethodGasPrice:
			return "0x4a817c800", nil
		case provider.MethodGetBalance:
			return "0x1bc16d674ec80000", nil
		case provider.MethodEstimateGas:
			return "0x2dc6c0", nil
		case provider.MethodCall:
			msg := params[0].(CallMsg)
			if msg.To == nil || len(msg.Data) != 4 {
				return nil, errors.New("bad call")
			}
			return "0x000000000000000000000000000000000000000000000000000000000000002a", nil
		}
		return nil, errors.New("unexpected " + method)
	}}
	c := NewClient(p, fastConfig(), testLogger())
	ctx := context.Background()

	id, err := c.ChainID(ctx)
	if err != nil || id != 9001 {
		t.Errorf("ChainID() = %v, %v, want 9001", id, err)
	}

	price, err := c.GasPrice(ctx)
	if err != nil || price.String() != "20000000000" {
		t.Errorf("GasPrice() = %v, %v, want 20000000000", price, err)
	}

	bal, err := c.Balance(ctx, common.HexToAddress("0x01"))
	if err != nil || bal.String() != "2000000000000000000" {
		t.Errorf("Balance() = %v, %v, want 2e18", bal, err)
	}

	msg := NewCall(common.Address{}, common.HexToAddress("0x02"), nil, []byte{1, 2, 3, 4})
	if msg.From != nil || msg.Value != nil {
		t.Errorf("NewCall() = %+v, want no from/value", msg)
	}
	gas, err := c.EstimateGas(ctx, msg)
	if err != nil || gas != 3000000 {
		t.Errorf("EstimateGas() = %v, %v, want 3000000", gas, err)
	}

	out, err := c.Call(ctx, msg)
	if err != nil {
		t.Fatalf("Call() failed: %v", err)
	}
	if new(big.Int).SetBytes(out).Int64() != 42 {
		t.Errorf("Call() = %x, want 42", out)
	}
}

func TestClient_WaitMined(t *testing.T) {
	hash := common.HexToHash("0xfeed")
	polls := 0
	p := &mockProvider{handler: func(method string, params []any) (any, error) {
		polls++
		switch polls {
		case 1:
			return nil, nil // pending
		case 2:
			return nil, errors.New("temporary failure")
		}
		return map[string]any{
			"transactionHash": hash,
			"status":          "0x1",
			"blockNumber":     "0x10",
			"gasUsed":         "0x5208",
		}, nil
	}}
	c := NewClient(p, fastConfig(), testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	r, err := c.WaitMined(ctx, hash)
	if err != nil {
		t.Fatalf("WaitMined() failed: %v", err)
	}
	if !r.Succeeded() {
		t.Errorf("Succeeded() = false, want true")
	}
	if r.TxHash != hash {
		t.Errorf("TxHash = %v, want %v", r.TxHash, hash)
	}
	if polls != 3 {
		t.Errorf("polls = %d, want 3", polls)
	}
}

func TestClient_WaitMinedContextCancelled(t *testing.T) {
	p := &mockProvider{handler: func(string, []any) (any, error) { return nil, nil }}
	c := NewClient(p, fastConfig(), testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.WaitMined(ctx, common.Hash{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitMined() error = %v, want DeadlineExceeded", err)
	}
}

func TestClient_SendTransaction(t *testing.T) {
	want := common.HexToHash("0xbeef")
	p := &mockProvider{handler: func(method string, params []any) (any, error) {
		if method != provider.MethodSendTransaction {
			return nil, errors.New("unexpected " + method)
		}
		msg := params[0].(CallMsg)
		if msg.ValueInt().Int64() != 5 {
			return nil, errors.New("value not forwarded")
		}
		return want, nil
	}}
	c := NewClient(p, fastConfig(), testLogger())

	from := common.HexToAddress("0xaa")
	got, err := c.SendTransaction(context.Background(), NewCall(from, common.HexToAddress("0xbb"), big.NewInt(5), nil))
	if err != nil {
		t.Fatalf("SendTransaction() failed: %v", err)
	}
	if got != want {
		t.Errorf("hash = %v, want %v", got, want)
	}
}

func TestClient_BreakerTrips(t *testing.T) {
	p := &mockProvider{handler: func(string, []any) (any, error) {
		return nil, provider.ErrNotConnected
	}}
	cfg := fastConfig()
	cfg.BreakerFailureThreshold = 2
	c := NewClient(p, cfg, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.GasPrice(ctx); !errors.Is(err, provider.ErrNotConnected) {
			t.Fatalf("GasPrice() #%d error = %v, want ErrNotConnected", i, err)
		}
	}
	if _, err := c.GasPrice(ctx); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("GasPrice() after trip error = %v, want ErrOpenState", err)
	}
	if n := p.count(provider.MethodGasPrice); n != 3 {
		t.Errorf("provider calls = %d, want 3", n)
	}
}

func TestClient_ProviderErrorsDoNotTrip(t *testing.T) {
	p := &mockProvider{handler: func(string, []any) (any, error) {
		return nil, &provider.RPCError{Code: 3, Message: "execution reverted"}
	}}
	cfg := fastConfig()
	cfg.BreakerFailureThreshold = 1
	c := NewClient(p, cfg, testLogger())

	for i := 0; i < 5; i++ {
		_, err := c.Call(context.Background(), CallMsg{})
		var rpcErr *provider.RPCError
		if !errors.As(err, &rpcErr) {
			t.Fatalf("Call() #%d error = %v, want RPCError", i, err)
		}
	}
}
