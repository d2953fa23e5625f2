package token

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxDisplayDecimals caps the fractional digits kept from router estimates
const MaxDisplayDecimals = 8

// DisplayPrecision returns min(decimals, MaxDisplayDecimals)
func DisplayPrecision(decimals uint8) uint8 {
	if decimals > MaxDisplayDecimals {
		return MaxDisplayDecimals
	}
	return decimals
}

// pow10 returns 10^n
func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ParseUnits converts a decimal string ("1.5") into base units.
// More fractional digits than decimals is an error, never a silent rounding.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	s = strings.TrimPrefix(s, "+")

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}

	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// FormatUnits renders base units as a decimal string with trailing zeros trimmed
func FormatUnits(v *big.Int, decimals uint8) string {
	s := FormatFixed(v, decimals, decimals)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// FormatFixed renders base units with exactly places fractional digits,
// truncating (never rounding) extra precision.
func FormatFixed(v *big.Int, decimals, places uint8) string {
	if v == nil {
		v = new(big.Int)
	}
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)

	q, r := new(big.Int).QuoRem(abs, pow10(decimals), new(big.Int))
	frac := r.String()
	if pad := int(decimals) - len(frac); pad > 0 {
		frac = strings.Repeat("0", pad) + frac
	}
	if int(places) < len(frac) {
		frac = frac[:places]
	} else {
		frac += strings.Repeat("0", int(places)-len(frac))
	}

	out := q.String()
	if places > 0 {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// Truncate floors a non-negative base-unit amount to places fractional digits
func Truncate(v *big.Int, decimals, places uint8) *big.Int {
	if places >= decimals {
		return new(big.Int).Set(v)
	}
	unit := pow10(decimals - places)
	out := new(big.Int).Quo(v, unit)
	return out.Mul(out, unit)
}

// Rate returns (amountOut / 10^outDecimals) / (amountIn / 10^inDecimals).
// Zero amountIn yields nil.
func Rate(amountIn *big.Int, inDecimals uint8, amountOut *big.Int, outDecimals uint8) *big.Rat {
	if amountIn == nil || amountIn.Sign() == 0 || amountOut == nil {
		return nil
	}
	num := new(big.Int).Mul(amountOut, pow10(inDecimals))
	den := new(big.Int).Mul(amountIn, pow10(outDecimals))
	return new(big.Rat).SetFrac(num, den)
}
