package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThetaSpace/tradesphere-swap/internal/apperr"
	"github.com/ThetaSpace/tradesphere-swap/internal/network"
	"github.com/ThetaSpace/tradesphere-swap/internal/provider"
)

// ChainSwitcher performs the two wallet-side chain operations
type ChainSwitcher interface {
	SwitchChain(ctx context.Context, d network.Descriptor) error
	AddChain(ctx context.Context, d network.Descriptor) error
}

// SwitchReport records the outcome of a preference walk
type SwitchReport struct {
	Candidates []uint64 // chains in the order they were eligible
	Attempts   int      // candidates actually tried
	Selected   uint64   // chain switched to, 0 when none
	Added      bool     // Selected had to be added first
}

// SwitchPreferred walks candidates in order and stops at the first chain
// the wallet switches to. A chain the wallet does not recognize is added
// with its full descriptor, which counts as a successful switch. When
// every candidate fails the error carries ErrNetworkSwitchFailed.
func SwitchPreferred(ctx context.Context, s ChainSwitcher, candidates []network.Descriptor) (SwitchReport, error) {
	var report SwitchReport
	for _, d := range candidates {
		report.Candidates = append(report.Candidates, d.ChainID)
	}
	if len(candidates) == 0 {
		return report, apperr.Newf(apperr.ErrNetworkSwitchFailed, "switch network", "no candidate networks")
	}

	var errs []error
	for _, d := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report.Attempts++

		err := s.SwitchChain(ctx, d)
		if err == nil {
			report.Selected = d.ChainID
			return report, nil
		}
		if provider.IsUnrecognizedChain(err) {
			addErr := s.AddChain(ctx, d)
			if addErr == nil {
				report.Selected = d.ChainID
				report.Added = true
				return report, nil
			}
			err = fmt.Errorf("add chain: %w", addErr)
		}
		errs = append(errs, fmt.Errorf("chain %d: %w", d.ChainID, err))
	}

	return report, apperr.New(apperr.ErrNetworkSwitchFailed, "switch network", errors.Join(errs...))
}

// providerSwitcher issues the EIP-3326 / EIP-3085 requests
type providerSwitcher struct {
	p provider.Provider
}

func (s providerSwitcher) SwitchChain(ctx context.Context, d network.Descriptor) error {
	_, err := s.p.Request(ctx, provider.MethodSwitchEthereumChain, map[string]string{"chainId": d.ChainIDHex()})
	return err
}

func (s providerSwitcher) AddChain(ctx context.Context, d network.Descriptor) error {
	_, err := s.p.Request(ctx, provider.MethodAddEthereumChain, d.AddChainParams())
	return err
}
