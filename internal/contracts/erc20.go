package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/tradesphere-swap/internal/chain"
)

// ERC20 reads token state and encodes approvals
type ERC20 struct {
	caller Caller
}

// NewERC20 creates a token reader
func NewERC20(caller Caller) *ERC20 {
	return &ERC20{caller: caller}
}

func (e *ERC20) callUint(ctx context.Context, token common.Address, method string, args ...any) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := e.caller.Call(ctx, chain.NewCall(common.Address{}, token, nil, data))
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, token.Hex(), err)
	}
	res, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	v, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", method, res[0])
	}
	return v, nil
}

// Allowance returns how much spender may move from owner
func (e *ERC20) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return e.callUint(ctx, token, "allowance", owner, spender)
}

// BalanceOf returns owner's token balance
func (e *ERC20) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return e.callUint(ctx, token, "balanceOf", owner)
}

// PackApprove encodes approve(spender, amount)
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}
