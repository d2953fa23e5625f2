// Package quote prices trades against the AMM router and tracks which
// quote is current for the inputs a user has entered.
package quote

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/tradesphere-swap/internal/token"
)

// Request identifies what is being priced
type Request struct {
	ChainID  uint64
	From     token.Descriptor
	To       token.Descriptor
	AmountIn *big.Int // base units of From
}

// Key identifies the request's inputs
func (r Request) Key() string {
	amount := "0"
	if r.AmountIn != nil {
		amount = r.AmountIn.String()
	}
	return fmt.Sprintf("%d:%s:%s:%s", r.ChainID, assetKey(r.From), assetKey(r.To), amount)
}

func assetKey(d token.Descriptor) string {
	if d.Native {
		return "native"
	}
	return d.Address.Hex()
}

// Ready reports whether the request has enough input to be priced
func (r Request) Ready() bool {
	return r.AmountIn != nil && r.AmountIn.Sign() > 0 && r.From.Symbol != "" && r.To.Symbol != ""
}

// Quote is an immutable price for one Request. A newer quote for the same
// inputs supersedes it.
type Quote struct {
	Request      Request
	Variant      Variant
	Path         []common.Address
	AmountIn     *big.Int
	AmountOut    *big.Int // truncated to the display precision of To
	RawAmountOut *big.Int // as returned by the router
	ExchangeRate *big.Rat // AmountOut per AmountIn in whole tokens
	PriceImpact  *float64 // percent, nil when unknown
	CreatedAt    time.Time
	Seq          uint64 // 0 for untracked quotes
}

// Matches reports whether q was computed for exactly req's inputs.
// A quote that does not match must not be shown or executed.
func (q *Quote) Matches(req Request) bool {
	if q == nil {
		return false
	}
	return q.Request.Key() == req.Key()
}

// Age returns how long ago the quote was computed
func (q *Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.CreatedAt)
}

// FormatAmountOut renders AmountOut at its display precision
func (q *Quote) FormatAmountOut() string {
	dec := q.Request.To.Decimals
	return token.FormatFixed(q.AmountOut, dec, token.DisplayPrecision(dec))
}

// FormatRate renders the exchange rate with places fractional digits
func (q *Quote) FormatRate(places int) string {
	if q.ExchangeRate == nil {
		return "-"
	}
	return q.ExchangeRate.FloatString(places)
}

// FormatImpact renders the price impact, or "-" when unknown
func (q *Quote) FormatImpact() string {
	if q.PriceImpact == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *q.PriceImpact)
}
