// Package swap executes trades against the AMM router: slippage floor,
// allowance top-up and the variant-specific trade transaction.
package swap

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/tradesphere-swap/internal/chain"
	"github.com/ThetaSpace/tradesphere-swap/internal/contracts"
	"github.com/ThetaSpace/tradesphere-swap/internal/quote"
)

// MaxSlippageBps is 100%
const MaxSlippageBps = 10000

// MinAmountOut floors amountOut*(10000-bps)/10000 in base units.
// bps above MaxSlippageBps is treated as MaxSlippageBps.
func MinAmountOut(amountOut *big.Int, bps uint32) *big.Int {
	if bps > MaxSlippageBps {
		bps = MaxSlippageBps
	}
	out := new(big.Int).Mul(amountOut, big.NewInt(int64(MaxSlippageBps-bps)))
	return out.Quo(out, big.NewInt(MaxSlippageBps))
}

// Deadline returns now + minutes*60 as a unix timestamp
func Deadline(now time.Time, minutes uint32) *big.Int {
	return big.NewInt(now.Unix() + int64(minutes)*60)
}

// Trade holds everything needed to build the router call for one variant
type Trade struct {
	Variant      quote.Variant
	Router       common.Address
	Account      common.Address
	Path         []common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Deadline     *big.Int
}

// CallMsg encodes the trade. A native-source trade attaches AmountIn as value.
func (t Trade) CallMsg() (chain.CallMsg, error) {
	data, err := contracts.PackSwap(t.Variant.Method(), contracts.SwapParams{
		AmountIn:     t.AmountIn,
		AmountOutMin: t.AmountOutMin,
		Path:         t.Path,
		Recipient:    t.Account,
		Deadline:     t.Deadline,
	})
	if err != nil {
		return chain.CallMsg{}, err
	}

	var value *big.Int
	if t.Variant.PaysNative() {
		value = t.AmountIn
	}
	return chain.NewCall(t.Account, t.Router, value, data), nil
}
