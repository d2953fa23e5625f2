package quote

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ImpactEstimator derives a price impact for a priced trade. Returning a
// nil impact means "unknown".
type ImpactEstimator interface {
	Estimate(ctx context.Context, r Router, path []common.Address, amountIn, amountOut *big.Int) (*float64, error)
}

// NoImpact leaves the price impact unknown
type NoImpact struct{}

func (NoImpact) Estimate(context.Context, Router, []common.Address, *big.Int, *big.Int) (*float64, error) {
	return nil, nil
}

// ProbeImpact compares the execution rate with the rate the router gives
// for a small probe amount along the same path
type ProbeImpact struct {
	// Divisor sets the probe size as amountIn/Divisor. Defaults to 1000.
	Divisor int64
}

func (p ProbeImpact) Estimate(ctx context.Context, r Router, path []common.Address, amountIn, amountOut *big.Int) (*float64, error) {
	div := p.Divisor
	if div <= 0 {
		div = 1000
	}
	probeIn := new(big.Int).Quo(amountIn, big.NewInt(div))
	if probeIn.Sign() == 0 || amountOut.Sign() == 0 {
		return nil, nil
	}

	amounts, err := r.GetAmountsOut(ctx, probeIn, path)
	if err != nil {
		return nil, fmt.Errorf("probe quote: %w", err)
	}
	probeOut := amounts[len(amounts)-1]
	if probeOut.Sign() == 0 {
		return nil, nil
	}

	spot := new(big.Rat).SetFrac(probeOut, probeIn)
	exec := new(big.Rat).SetFrac(amountOut, amountIn)

	// (spot - exec) / spot, in percent
	diff := new(big.Rat).Sub(spot, exec)
	diff.Quo(diff, spot)
	diff.Mul(diff, big.NewRat(100, 1))
	if diff.Sign() < 0 {
		diff.SetInt64(0)
	}
	impact, _ := diff.Float64()
	return &impact, nil
}

// ParseImpact returns the estimator named by a config value
func ParseImpact(name string) (ImpactEstimator, error) {
	switch name {
	case "", "none":
		return NoImpact{}, nil
	case "probe":
		return ProbeImpact{}, nil
	default:
		return nil, fmt.Errorf("unknown price impact estimator %q", name)
	}
}
