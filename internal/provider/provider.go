// Package provider defines the request/notification surface of a wallet
// provider (EIP-1193) and helpers shared by its implementations.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Wallet and node methods used by the client
const (
	MethodRequestAccounts     = "eth_requestAccounts"
	MethodAccounts            = "eth_accounts"
	MethodChainID             = "eth_chainId"
	MethodGetBalance          = "eth_getBalance"
	MethodCall                = "eth_call"
	MethodEstimateGas         = "eth_estimateGas"
	MethodGasPrice            = "eth_gasPrice"
	MethodSendTransaction     = "eth_sendTransaction"
	MethodTransactionReceipt  = "eth_getTransactionReceipt"
	MethodSwitchEthereumChain = "wallet_switchEthereumChain"
	MethodAddEthereumChain    = "wallet_addEthereumChain"
)

// Event names a provider notification
type Event string

const (
	EventAccountsChanged Event = "accountsChanged"
	EventChainChanged    Event = "chainChanged"
)

// Provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
)

// ErrNotConnected is returned by providers whose transport is down
var ErrNotConnected = errors.New("provider not connected")

// Provider is a request-based wallet RPC surface that emits notifications
type Provider interface {
	// Request performs one RPC call and returns the raw JSON result
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	// Subscribe registers a handler for event until the subscription is released
	Subscribe(event Event, handler func(payload json.RawMessage)) Subscription
}

// Subscription releases a registered handler. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// RPCError is an error object returned by a provider
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode satisfies go-ethereum's rpc.Error interface
func (e *RPCError) ErrorCode() int {
	return e.Code
}

// codeError matches RPCError and go-ethereum rpc errors alike
type codeError interface {
	ErrorCode() int
}

// ErrorCodeOf extracts a provider error code from err's chain
func ErrorCodeOf(err error) (int, bool) {
	var ce codeError
	if errors.As(err, &ce) {
		return ce.ErrorCode(), true
	}
	return 0, false
}

// IsUserRejected reports a 4001 rejection
func IsUserRejected(err error) bool {
	code, ok := ErrorCodeOf(err)
	return ok && code == CodeUserRejected
}

// IsUnrecognizedChain reports a 4902 "chain not added" response
func IsUnrecognizedChain(err error) bool {
	code, ok := ErrorCodeOf(err)
	return ok && code == CodeUnrecognizedChain
}

// Call performs a request and decodes the result into out. An absent
// result is treated like JSON null and leaves out untouched.
func Call(ctx context.Context, p Provider, out any, method string, params ...any) error {
	raw, err := p.Request(ctx, method, params...)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
