package quote

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/tradesphere-swap/internal/apperr"
	"github.com/ThetaSpace/tradesphere-swap/internal/contracts"
	"github.com/ThetaSpace/tradesphere-swap/internal/token"
)

// Variant is the router entry point a trade goes through
type Variant int

const (
	VariantInvalid Variant = iota
	VariantNativeForToken
	VariantTokenForNative
	VariantTokenForToken
)

// String returns the string representation of the variant
func (v Variant) String() string {
	switch v {
	case VariantNativeForToken:
		return "native-for-token"
	case VariantTokenForNative:
		return "token-for-native"
	case VariantTokenForToken:
		return "token-for-token"
	default:
		return "invalid"
	}
}

// Method returns the router method implementing the variant
func (v Variant) Method() string {
	switch v {
	case VariantNativeForToken:
		return contracts.MethodSwapExactETHForTokens
	case VariantTokenForNative:
		return contracts.MethodSwapExactTokensForETH
	case VariantTokenForToken:
		return contracts.MethodSwapExactTokensForTokens
	default:
		return ""
	}
}

// PaysNative reports whether the trade carries the input as native value.
// Such trades never need an allowance.
func (v Variant) PaysNative() bool {
	return v == VariantNativeForToken
}

// SelectVariant picks the variant for a token pair. Native-to-native and
// same-token pairs are rejected.
func SelectVariant(from, to token.Descriptor) (Variant, error) {
	switch {
	case from.Native && to.Native:
		return VariantInvalid, apperr.Newf(apperr.ErrInvalidSwapConfiguration, "select variant",
			"cannot swap native %s for native %s", from.Symbol, to.Symbol)
	case from.Same(to):
		return VariantInvalid, apperr.Newf(apperr.ErrInvalidSwapConfiguration, "select variant",
			"cannot swap %s for itself", from.Symbol)
	case from.Native:
		return VariantNativeForToken, nil
	case to.Native:
		return VariantTokenForNative, nil
	default:
		return VariantTokenForToken, nil
	}
}

// NeedsWrappedNative reports whether the route of v goes through the
// wrapped native token
func (v Variant) NeedsWrappedNative() bool {
	return v == VariantNativeForToken || v == VariantTokenForNative
}

// ResolveRoute builds the direct path for a pair. The native side is
// replaced by weth; no multi-hop search is done.
func ResolveRoute(from, to token.Descriptor, weth common.Address) ([]common.Address, Variant, error) {
	v, err := SelectVariant(from, to)
	if err != nil {
		return nil, VariantInvalid, err
	}
	if v.NeedsWrappedNative() && weth == (common.Address{}) {
		return nil, VariantInvalid, apperr.Newf(apperr.ErrQuoteUnavailable, "resolve route", "wrapped native address unknown")
	}

	switch v {
	case VariantNativeForToken:
		return []common.Address{weth, to.Address}, v, nil
	case VariantTokenForNative:
		return []common.Address{from.Address, weth}, v, nil
	default:
		return []common.Address{from.Address, to.Address}, v, nil
	}
}
