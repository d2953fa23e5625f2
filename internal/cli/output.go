package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/ThetaSpace/tradesphere-swap/internal/apperr"
	"github.com/ThetaSpace/tradesphere-swap/internal/gas"
	"github.com/ThetaSpace/tradesphere-swap/internal/provider/keystore"
	"github.com/ThetaSpace/tradesphere-swap/internal/quote"
	"github.com/ThetaSpace/tradesphere-swap/internal/token"
	"github.com/ThetaSpace/tradesphere-swap/internal/wallet"
)

const rule = "============================================================"

var (
	heading = color.New(color.FgGreen, color.Bold)
	accent  = color.New(color.FgCyan)
	symbol  = color.New(color.FgYellow)
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
)

func newSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	return s
}

func setSuffix(s *spinner.Spinner, suffix string) {
	s.Lock()
	s.Suffix = " " + suffix
	s.Unlock()
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, "\n"+rule)
	heading.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, rule)
}

func printState(w io.Writer, st wallet.State) {
	fmt.Fprintf(w, "  Wallet:    %s\n", accent.Sprint(st.Label()))
	if st.HasAccount() {
		fmt.Fprintf(w, "  Account:   %s\n", wallet.FormatAddress(st.Account))
	}
	if st.ChainID != 0 {
		fmt.Fprintf(w, "  Chain:     %d\n", st.ChainID)
	}
	if st.LastError != nil {
		fmt.Fprintf(w, "  Error:     %s\n", failure.Sprint(describe(st.LastError)))
	}
}

func printSwitch(w io.Writer, r wallet.SwitchReport) {
	if len(r.Candidates) == 0 {
		return
	}
	fmt.Fprintf(w, "  Tried:     %d of %v\n", r.Attempts, r.Candidates)
	if r.Selected != 0 {
		added := ""
		if r.Added {
			added = " (added to wallet)"
		}
		fmt.Fprintf(w, "  Switched:  %d%s\n", r.Selected, added)
	}
}

func printQuote(w io.Writer, q *quote.Quote) {
	fmt.Fprintf(w, "  From:      %s %s\n", token.FormatUnits(q.AmountIn, q.Request.From.Decimals), symbol.Sprint(q.Request.From.Symbol))
	fmt.Fprintf(w, "  To:        ~%s %s\n", q.FormatAmountOut(), symbol.Sprint(q.Request.To.Symbol))
	fmt.Fprintf(w, "  Rate:      1 %s = %s %s\n", q.Request.From.Symbol, q.FormatRate(6), q.Request.To.Symbol)
	fmt.Fprintf(w, "  Impact:    %s\n", q.FormatImpact())
	fmt.Fprintf(w, "  Route:     %s\n", q.Variant)
}

func printGas(w io.Writer, est *gas.Estimate) {
	if est == nil {
		fmt.Fprintln(w, "  Gas:       -")
		return
	}
	fmt.Fprintf(w, "  Gas:       %d units @ %s gwei\n", est.GasLimit, token.FormatUnits(est.GasPrice, 9))
	fmt.Fprintf(w, "  Fee:       ~%s %s\n", est.CostFormatted(), symbol.Sprint(est.Native.Symbol))
}

func printUpdate(w io.Writer, u quote.Update) {
	stamp := time.Now().Format("15:04:05")
	switch {
	case u.Err != nil:
		fmt.Fprintf(w, "[%s] %s\n", stamp, failure.Sprint(describe(u.Err)))
	case u.Quote == nil:
		fmt.Fprintf(w, "[%s] %s\n", stamp, warning.Sprint("no quote for the current inputs"))
	default:
		q := u.Quote
		fmt.Fprintf(w, "[%s] %s %s -> %s %s  (1 %s = %s)\n", stamp,
			token.FormatUnits(q.AmountIn, q.Request.From.Decimals), q.Request.From.Symbol,
			q.FormatAmountOut(), q.Request.To.Symbol,
			q.Request.From.Symbol, q.FormatRate(6))
	}
}

// describe renders an error with a hint for the kinds a user can act on
func describe(err error) string {
	switch apperr.KindOf(err) {
	case apperr.ErrProviderUnavailable:
		return fmt.Sprintf("%v (is the wallet bridge running, or a key configured?)", err)
	case apperr.ErrUserRejected:
		return fmt.Sprintf("%v (request declined in the wallet)", err)
	case apperr.ErrNetworkSwitchFailed:
		return fmt.Sprintf("%v (switch to a supported network, see: tradesphere networks)", err)
	case apperr.ErrTokenNotFound:
		return fmt.Sprintf("%v (see: tradesphere tokens)", err)
	default:
		return err.Error()
	}
}

// prompter asks y/N questions. One buffered reader serves every question
// so piped answers are not lost between prompts.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) confirm(question string) bool {
	fmt.Fprintf(p.out, "\n%s (y/N): ", question)

	response, err := p.in.ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// approver prompts for keystore account and transaction approvals
func (p *prompter) approver() keystore.ApproveFunc {
	return func(_ context.Context, req keystore.Prompt) bool {
		switch req.Kind {
		case keystore.PromptAccounts:
			return p.confirm(fmt.Sprintf("Share account %s with tradesphere?", wallet.FormatAddress(req.Account)))
		default:
			to := "contract creation"
			if req.To != nil {
				to = req.To.Hex()
			}
			value := "0"
			if req.Value != nil {
				value = token.FormatUnits(req.Value, 18)
			}
			return p.confirm(fmt.Sprintf("Sign transaction on chain %d to %s (value %s, %d bytes of data)?", req.ChainID, to, value, len(req.Data)))
		}
	}
}
