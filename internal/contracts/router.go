// Package contracts encodes and decodes calls to the AMM router and to
// ERC20 tokens.
package contracts

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/tradesphere-swap/internal/chain"
)

// Caller executes read-only contract calls
type Caller interface {
	Call(ctx context.Context, msg chain.CallMsg) ([]byte, error)
}

// Router reads from and builds calls for one router deployment
type Router struct {
	address common.Address
	caller  Caller

	mu   sync.Mutex
	weth common.Address
}

// NewRouter binds a router. A non-zero wrappedNative skips the WETH() read.
func NewRouter(address common.Address, caller Caller, wrappedNative common.Address) *Router {
	return &Router{address: address, caller: caller, weth: wrappedNative}
}

// Address returns the router (and allowance spender) address
func (r *Router) Address() common.Address {
	return r.address
}

// WETH returns the wrapped native token address, read once and cached
func (r *Router) WETH(ctx context.Context) (common.Address, error) {
	r.mu.Lock()
	cached := r.weth
	r.mu.Unlock()
	if cached != (common.Address{}) {
		return cached, nil
	}

	data, err := routerABI.Pack("WETH")
	if err != nil {
		return common.Address{}, err
	}
	out, err := r.caller.Call(ctx, chain.NewCall(common.Address{}, r.address, nil, data))
	if err != nil {
		return common.Address{}, fmt.Errorf("router WETH(): %w", err)
	}
	res, err := routerABI.Unpack("WETH", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode WETH(): %w", err)
	}
	weth, ok := res[0].(common.Address)
	if !ok || weth == (common.Address{}) {
		return common.Address{}, fmt.Errorf("router returned no wrapped native address")
	}

	r.mu.Lock()
	r.weth = weth
	r.mu.Unlock()
	return weth, nil
}

// GetAmountsOut returns the router's output estimate for every hop of path
func (r *Router) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	out, err := r.caller.Call(ctx, chain.NewCall(common.Address{}, r.address, nil, data))
	if err != nil {
		return nil, fmt.Errorf("router getAmountsOut: %w", err)
	}
	res, err := routerABI.Unpack("getAmountsOut", out)
	if err != nil {
		return nil, fmt.Errorf("decode getAmountsOut: %w", err)
	}
	amounts, ok := res[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return nil, fmt.Errorf("router returned %d amounts for a %d-token path", len(amounts), len(path))
	}
	return amounts, nil
}

// SwapParams are the arguments common to the swap entry points
type SwapParams struct {
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	Recipient    common.Address
	Deadline     *big.Int
}

// PackSwap encodes a call to one of the swap methods.
// swapExactETHForTokens takes its input as the attached value.
func PackSwap(method string, p SwapParams) ([]byte, error) {
	switch method {
	case MethodSwapExactETHForTokens:
		return routerABI.Pack(method, p.AmountOutMin, p.Path, p.Recipient, p.Deadline)
	case MethodSwapExactTokensForETH, MethodSwapExactTokensForTokens:
		return routerABI.Pack(method, p.AmountIn, p.AmountOutMin, p.Path, p.Recipient, p.Deadline)
	default:
		return nil, fmt.Errorf("unknown swap method %q", method)
	}
}
