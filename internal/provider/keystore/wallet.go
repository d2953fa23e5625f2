// Package keystore implements a wallet provider backed by a local private
// key and a node RPC endpoint per chain. It answers the same requests a
// browser wallet would, including chain switching and user approval.
package keystore

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ThetaSpace/tradesphere-swap/internal/network"
	"github.com/ThetaSpace/tradesphere-swap/internal/provider"
)

// Conn is the node connection used for reads and raw submissions.
// *rpc.Client satisfies it.
type Conn interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// Dialer opens a node connection
type Dialer func(ctx context.Context, url string) (Conn, error)

// DialRPC dials a node with go-ethereum's rpc client
func DialRPC(ctx context.Context, url string) (Conn, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// PromptKind names what the user is asked to approve
type PromptKind int

const (
	PromptAccounts PromptKind = iota
	PromptTransaction
)

// Prompt describes a pending approval
type Prompt struct {
	Kind    PromptKind
	Account common.Address
	ChainID uint64
	To      *common.Address
	Value   *big.Int
	Data    []byte
}

// ApproveFunc asks the user to approve a prompt
type ApproveFunc func(ctx context.Context, p Prompt) bool

// gasBufferPercent is added to node gas estimates for unset gas limits
const gasBufferPercent = 20

// passthrough lists node methods forwarded verbatim
var passthrough = map[string]bool{
	provider.MethodGetBalance:         true,
	provider.MethodCall:               true,
	provider.MethodEstimateGas:        true,
	provider.MethodGasPrice:           true,
	provider.MethodTransactionReceipt: true,
	"eth_blockNumber":                 true,
	"eth_getTransactionCount":         true,
}

// Wallet is a provider.Provider signing with a local key
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	dial    Dialer
	approve ApproveFunc
	logger  *slog.Logger
	emitter *provider.Emitter

	mu         sync.Mutex
	chains     map[uint64]network.Descriptor
	current    uint64
	conn       Conn
	authorized bool
}

var _ provider.Provider = (*Wallet)(nil)

// Option configures a Wallet
type Option func(*Wallet)

// WithDialer replaces the node dialer
func WithDialer(d Dialer) Option {
	return func(w *Wallet) { w.dial = d }
}

// WithApprover installs the user approval callback. Without one every
// prompt is approved.
func WithApprover(fn ApproveFunc) Option {
	return func(w *Wallet) { w.approve = fn }
}

// New creates a wallet that starts on the initial chain
func New(key *ecdsa.PrivateKey, initial network.Descriptor, logger *slog.Logger, opts ...Option) *Wallet {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		dial:    DialRPC,
		approve: func(context.Context, Prompt) bool { return true },
		logger:  logger.With("component", "KeystoreWallet"),
		emitter: provider.NewEmitter(),
		chains:  map[uint64]network.Descriptor{initial.ChainID: initial},
		current: initial.ChainID,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Address returns the signing account
func (w *Wallet) Address() common.Address {
	return w.address
}

// Subscribe registers a handler for a wallet notification
func (w *Wallet) Subscribe(event provider.Event, handler func(json.RawMessage)) provider.Subscription {
	return w.emitter.Subscribe(event, handler)
}

// Close releases the node connection
func (w *Wallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

// Request answers a wallet or node request
func (w *Wallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case provider.MethodRequestAccounts:
		return w.requestAccounts(ctx)
	case provider.MethodAccounts:
		w.mu.Lock()
		authorized := w.authorized
		w.mu.Unlock()
		if !authorized {
			return json.Marshal([]common.Address{})
		}
		return json.Marshal([]common.Address{w.address})
	case provider.MethodChainID:
		w.mu.Lock()
		id := w.current
		w.mu.Unlock()
		return json.Marshal(hexutil.EncodeUint64(id))
	case provider.MethodSwitchEthereumChain:
		return w.switchChain(params)
	case provider.MethodAddEthereumChain:
		return w.addChain(params)
	case provider.MethodSendTransaction:
		return w.sendTransaction(ctx, params)
	}

	if !passthrough[method] {
		return nil, &provider.RPCError{Code: provider.CodeUnsupportedMethod, Message: "unsupported method " + method}
	}

	conn, _, err := w.connection(ctx)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := conn.CallContext(ctx, &out, method, params...); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Wallet) requestAccounts(ctx context.Context) (json.RawMessage, error) {
	w.mu.Lock()
	authorized := w.authorized
	chainID := w.current
	w.mu.Unlock()

	if !authorized {
		if !w.approve(ctx, Prompt{Kind: PromptAccounts, Account: w.address, ChainID: chainID}) {
			return nil, &provider.RPCError{Code: provider.CodeUserRejected, Message: "User rejected the request."}
		}
		w.mu.Lock()
		w.authorized = true
		w.mu.Unlock()
		w.logger.Info("Account access granted", "account", w.address.Hex())
	}
	return json.Marshal([]common.Address{w.address})
}

// decodeParam re-decodes params[0] into out
func decodeParam(params []any, out any) error {
	if len(params) == 0 {
		return &provider.RPCError{Code: -32602, Message: "missing params"}
	}
	data, err := json.Marshal(params[0])
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &provider.RPCError{Code: -32602, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func (w *Wallet) switchChain(params []any) (json.RawMessage, error) {
	var req struct {
		ChainID string `json:"chainId"`
	}
	if err := decodeParam(params, &req); err != nil {
		return nil, err
	}
	id, err := network.ParseChainID(req.ChainID)
	if err != nil {
		return nil, &provider.RPCError{Code: -32602, Message: err.Error()}
	}

	w.mu.Lock()
	if _, ok := w.chains[id]; !ok {
		w.mu.Unlock()
		return nil, &provider.RPCError{
			Code:    provider.CodeUnrecognizedChain,
			Message: fmt.Sprintf("Unrecognized chain ID %q. Try adding the chain using wallet_addEthereumChain first.", req.ChainID),
		}
	}
	changed := w.current != id
	if changed {
		w.current = id
		if w.conn != nil {
			w.conn.Close()
			w.conn = nil
		}
	}
	w.mu.Unlock()

	if changed {
		w.logger.Info("Switched chain", "chainId", id)
		payload, _ := json.Marshal(hexutil.EncodeUint64(id))
		w.emitter.Emit(provider.EventChainChanged, payload)
	}
	return json.RawMessage("null"), nil
}

func (w *Wallet) addChain(params []any) (json.RawMessage, error) {
	var p network.AddChainParams
	if err := decodeParam(params, &p); err != nil {
		return nil, err
	}
	d, err := p.Descriptor()
	if err != nil {
		return nil, &provider.RPCError{Code: -32602, Message: err.Error()}
	}
	if len(d.RPCURLs) == 0 {
		return nil, &provider.RPCError{Code: -32602, Message: "rpcUrls must not be empty"}
	}

	w.mu.Lock()
	w.chains[d.ChainID] = d
	w.mu.Unlock()
	w.logger.Info("Chain added", "chainId", d.ChainID, "name", d.DisplayName)

	// adding a chain also switches to it
	return w.switchChain([]any{map[string]string{"chainId": d.ChainIDHex()}})
}

// connection returns the node connection for the current chain, dialing lazily
func (w *Wallet) connection(ctx context.Context) (Conn, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return w.conn, w.current, nil
	}
	d := w.chains[w.current]
	if len(d.RPCURLs) == 0 {
		return nil, 0, fmt.Errorf("%w: no rpc url for chain %d", provider.ErrNotConnected, w.current)
	}
	conn, err := w.dial(ctx, d.RPCURLs[0])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: dial %s: %v", provider.ErrNotConnected, d.RPCURLs[0], err)
	}
	w.conn = conn
	return conn, w.current, nil
}

// txArgs is the eth_sendTransaction parameter object
type txArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

func (w *Wallet) sendTransaction(ctx context.Context, params []any) (json.RawMessage, error) {
	var args txArgs
	if err := decodeParam(params, &args); err != nil {
		return nil, err
	}

	w.mu.Lock()
	authorized := w.authorized
	w.mu.Unlock()
	if !authorized || args.From != w.address {
		return nil, &provider.RPCError{Code: provider.CodeUnauthorized, Message: "account not authorized"}
	}

	conn, chainID, err := w.connection(ctx)
	if err != nil {
		return nil, err
	}

	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}
	if !w.approve(ctx, Prompt{Kind: PromptTransaction, Account: w.address, ChainID: chainID, To: args.To, Value: value, Data: args.Data}) {
		return nil, &provider.RPCError{Code: provider.CodeUserRejected, Message: "User denied transaction signature."}
	}

	var nonce hexutil.Uint64
	if err := conn.CallContext(ctx, &nonce, "eth_getTransactionCount", w.address, "pending"); err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	var gasPrice hexutil.Big
	if err := conn.CallContext(ctx, &gasPrice, provider.MethodGasPrice); err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	var gas uint64
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	} else {
		var est hexutil.Uint64
		if err := conn.CallContext(ctx, &est, provider.MethodEstimateGas, args); err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}
		gas = uint64(est) * (100 + gasBufferPercent) / 100
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    uint64(nonce),
		GasPrice: gasPrice.ToInt(),
		Gas:      gas,
		To:       args.To,
		Value:    value,
		Data:     args.Data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(new(big.Int).SetUint64(chainID)), w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	var hash common.Hash
	if err := conn.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return nil, err
	}
	w.logger.Info("Transaction submitted", "txHash", hash.Hex(), "nonce", uint64(nonce), "chainId", chainID)
	return json.Marshal(hash)
}
