package cli

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ThetaSpace/tradesphere-swap/internal/swap"
	"github.com/ThetaSpace/tradesphere-swap/internal/token"
)

// TradeArgs is a parsed "<amount> <from> to <to>" phrase. Token
// references are symbols or addresses and keep their case.
type TradeArgs struct {
	Amount string
	From   string
	To     string
}

var tradePattern = regexp.MustCompile(`^(?i:swap\s+)?(\d+(?:\.\d+)?|\.\d+)\s+(\S+)\s+(?i:to|for|->)\s+(\S+)$`)

// ParseTradeArgs parses command arguments such as
//   - "1 EVMOS to USDC"
//   - "swap 1.5 USDC to USDT"
//   - "0.25 USDC for 0x5Ed91D8c5FcEcD4C7523916712D7AF4F2Bb7aEE4"
func ParseTradeArgs(args []string) (TradeArgs, error) {
	phrase := strings.Join(strings.Fields(strings.Join(args, " ")), " ")
	m := tradePattern.FindStringSubmatch(phrase)
	if m == nil {
		return TradeArgs{}, fmt.Errorf("invalid trade %q. Expected: '<amount> <token> to <token>' (e.g. '1 EVMOS to USDC')", phrase)
	}
	return TradeArgs{Amount: m[1], From: m[2], To: m[3]}, nil
}

// ParseSlippage converts a percentage such as "0.5" or "0.5%" to basis
// points. At most two decimals are accepted.
func ParseSlippage(s string) (uint32, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	bps, err := token.ParseUnits(s, 2)
	if err != nil {
		return 0, fmt.Errorf("invalid slippage %q: %w", s, err)
	}
	if !bps.IsUint64() || bps.Uint64() > swap.MaxSlippageBps {
		return 0, fmt.Errorf("slippage %s%% is above 100%%", s)
	}
	return uint32(bps.Uint64()), nil
}

// FormatSlippage renders basis points as a percentage
func FormatSlippage(bps uint32) string {
	return fmt.Sprintf("%d.%02d%%", bps/100, bps%100)
}
