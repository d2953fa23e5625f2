package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ThetaSpace/tradesphere-swap/internal/quote"
	"github.com/ThetaSpace/tradesphere-swap/internal/runner"
	"github.com/ThetaSpace/tradesphere-swap/internal/swap"
	"github.com/ThetaSpace/tradesphere-swap/internal/token"
	"github.com/ThetaSpace/tradesphere-swap/internal/wallet"
)

func newNetworksCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List supported networks in switch preference order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			nets := cfg.NetworkRegistry()
			env := cfg.GetEnvironment()
			rank := make(map[uint64]int)
			for i, id := range nets.PreferenceOrder(env) {
				rank[id] = i + 1
			}

			w := cmd.OutOrStdout()
			printHeader(w, fmt.Sprintf("NETWORKS (%s)", env))
			for _, id := range nets.ChainIDs() {
				d, _ := nets.DescriptorFor(id)
				pref := "-"
				if n, ok := rank[id]; ok {
					pref = strconv.Itoa(n)
				}
				kind := "mainnet"
				if d.Testnet {
					kind = "testnet"
				}
				fmt.Fprintf(w, "  %-8d %-20s %-6s %-8s preference %s\n", id, d.DisplayName, d.NativeCurrency.Symbol, kind, pref)
			}
			fmt.Fprintln(w)
			return nil
		},
	}
}

func newTokensCommand(v *viper.Viper) *cobra.Command {
	var chainID uint64
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "List tradable tokens of a network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			nets := cfg.NetworkRegistry()
			if chainID == 0 {
				order := nets.PreferenceOrder(cfg.GetEnvironment())
				if len(order) == 0 {
					return fmt.Errorf("no preferred network, pass --chain")
				}
				chainID = order[0]
			}
			tokens, err := cfg.TokenRegistry(nets)
			if err != nil {
				return err
			}
			list := tokens.Tokens(chainID)
			if len(list) == 0 {
				return fmt.Errorf("no tokens configured for chain %d", chainID)
			}

			w := cmd.OutOrStdout()
			printHeader(w, fmt.Sprintf("TOKENS ON CHAIN %d", chainID))
			for _, t := range list {
				addr := t.Address.Hex()
				if t.Native {
					addr = "native"
				}
				fmt.Fprintf(w, "  %-8s %-20s %2d  %s\n", symbol.Sprint(t.Symbol), t.Name, t.Decimals, addr)
			}
			fmt.Fprintln(w)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&chainID, "chain", 0, "Chain id (default: first preferred network)")
	return cmd
}

func newConnectCommand(v *viper.Viper) *cobra.Command {
	var restore bool
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect the wallet and move it to a supported network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(os.Stdin, cmd.ErrOrStderr())
			s, err := openSession(v, runner.WithApprover(p.approver()))
			if err != nil {
				return err
			}
			defer s.Close()

			sp := newSpinner("Waiting for wallet...")
			sp.Start()
			var st = s.runner.Wallet().State()
			if restore {
				st, err = s.runner.Restore(cmd.Context())
			} else {
				st, err = s.runner.Connect(cmd.Context())
			}
			sp.Stop()

			w := cmd.OutOrStdout()
			printHeader(w, "WALLET")
			printState(w, st)
			printSwitch(w, s.runner.Wallet().LastSwitch())
			fmt.Fprintln(w)
			return err
		},
	}
	cmd.Flags().BoolVar(&restore, "restore", false, "Only reattach to an already authorised account, never prompt")
	return cmd
}

func newWatchCommand(v *viper.Viper) *cobra.Command {
	var restore bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Hold a wallet session and print every connection change until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(os.Stdin, cmd.ErrOrStderr())
			s, err := openSession(v, runner.WithApprover(p.approver()))
			if err != nil {
				return err
			}
			defer s.Close()

			w := cmd.OutOrStdout()
			printHeader(w, "WALLET SESSION (Ctrl+C to stop)")
			return s.runner.Run(cmd.Context(), !restore, func(st wallet.State) {
				fmt.Fprintf(w, "[%s]\n", time.Now().Format("15:04:05"))
				printState(w, st)
			})
		},
	}
	cmd.Flags().BoolVar(&restore, "restore", false, "Only resume an existing session, never prompt the wallet")
	return cmd
}

func newSwitchCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "switch",
		Short: "Switch the wallet to the most preferred network it accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(os.Stdin, cmd.ErrOrStderr())
			s, err := openSession(v, runner.WithApprover(p.approver()))
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := s.runner.Connect(cmd.Context()); err != nil && !s.runner.Wallet().State().Connected() {
				return err
			}
			report, err := s.runner.Wallet().SwitchToPreferredNetwork(cmd.Context())

			w := cmd.OutOrStdout()
			printHeader(w, "NETWORK SWITCH")
			printState(w, s.runner.Wallet().State())
			printSwitch(w, report)
			fmt.Fprintln(w)
			return err
		},
	}
}

func newBalanceCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show native and token balances of the connected account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(os.Stdin, cmd.ErrOrStderr())
			s, err := openSession(v, runner.WithApprover(p.approver()))
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := s.runner.Connect(cmd.Context()); err != nil {
				return err
			}
			holdings, err := s.runner.Balances(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printHeader(w, "BALANCES")
			printState(w, s.runner.Wallet().State())
			fmt.Fprintln(w)
			for _, h := range holdings {
				fmt.Fprintf(w, "  %-8s %s\n", symbol.Sprint(h.Token.Symbol), h.Formatted())
			}
			fmt.Fprintln(w)
			return nil
		},
	}
}

func newQuoteCommand(v *viper.Viper) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "quote <amount> <from> to <to>",
		Short: "Quote a trade against the router",
		Example: `  tradesphere quote 1 EVMOS to USDC
  tradesphere quote 250 USDC to EVMOS --watch`,
		Args: cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			trade, err := ParseTradeArgs(args)
			if err != nil {
				return err
			}
			p := newPrompter(os.Stdin, cmd.ErrOrStderr())
			s, err := openSession(v, runner.WithApprover(p.approver()))
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := s.runner.Connect(cmd.Context()); err != nil {
				return err
			}
			req, err := s.runner.Request(trade.From, trade.To, trade.Amount)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if watch {
				fmt.Fprintf(w, "Watching %s %s -> %s, Ctrl+C to stop\n", trade.Amount, req.From.Symbol, req.To.Symbol)
				return s.runner.Watch(cmd.Context(), req, func(u quote.Update) {
					printUpdate(w, u)
				})
			}

			sp := newSpinner("Fetching quote...")
			sp.Start()
			q, err := s.runner.Quote(cmd.Context(), req)
			sp.Stop()
			if err != nil {
				return err
			}
			printHeader(w, "QUOTE")
			printQuote(w, q)
			fmt.Fprintln(w)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep re-quoting until interrupted")
	return cmd
}

func newGasCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "gas <amount> <from> to <to>",
		Short: "Estimate the network fee of a trade",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			trade, err := ParseTradeArgs(args)
			if err != nil {
				return err
			}
			p := newPrompter(os.Stdin, cmd.ErrOrStderr())
			s, err := openSession(v, runner.WithApprover(p.approver()))
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := s.runner.Connect(cmd.Context()); err != nil {
				return err
			}
			req, err := s.runner.Request(trade.From, trade.To, trade.Amount)
			if err != nil {
				return err
			}

			sp := newSpinner("Estimating gas...")
			sp.Start()
			est, err := s.runner.EstimateGas(cmd.Context(), req)
			sp.Stop()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printHeader(w, "GAS ESTIMATE")
			printGas(w, est)
			fmt.Fprintln(w)
			return nil
		},
	}
}

func newSwapCommand(v *viper.Viper) *cobra.Command {
	var (
		slippage  string
		deadline  uint32
		minOut    string
		noConfirm bool
	)
	cmd := &cobra.Command{
		Use:   "swap <amount> <from> to <to>",
		Short: "Quote and execute a trade",
		Long: `Quote a trade, show the minimum received and the network fee, and
execute it after confirmation. Token sources are approved for exactly the
traded amount when the router's allowance is short.`,
		Example: `  tradesphere swap 1 EVMOS to USDC
  tradesphere swap 100 USDC to USDT --slippage 0.3 --deadline 10
  tradesphere swap 1 EVMOS to USDC --min-out 1840 --yes`,
		Args: cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			trade, err := ParseTradeArgs(args)
			if err != nil {
				return err
			}

			p := newPrompter(os.Stdin, cmd.ErrOrStderr())
			sp := newSpinner("Connecting wallet...")
			opts := []runner.Option{
				runner.WithProgress(func(stage swap.Stage, hash common.Hash) {
					switch stage {
					case swap.StageApproving:
						setSuffix(sp, "Waiting for approval to be mined...")
					case swap.StageApproved:
						setSuffix(sp, "Approved "+hash.Hex())
					case swap.StageSwapping:
						setSuffix(sp, "Waiting for swap to be mined...")
					}
				}),
			}
			if !noConfirm {
				opts = append(opts, runner.WithApprover(p.approver()))
			}
			s, err := openSession(v, opts...)
			if err != nil {
				return err
			}
			defer s.Close()

			bps := s.cfg.Swap.DefaultSlippageBps
			if slippage != "" {
				if bps, err = ParseSlippage(slippage); err != nil {
					return err
				}
			}
			if deadline == 0 {
				deadline = s.cfg.Swap.DeadlineMinutes
			}

			if _, err := s.runner.Connect(cmd.Context()); err != nil {
				return err
			}
			req, err := s.runner.Request(trade.From, trade.To, trade.Amount)
			if err != nil {
				return err
			}
			swapReq := swap.Request{
				From:            req.From,
				To:              req.To,
				AmountIn:        req.AmountIn,
				SlippageBps:     bps,
				DeadlineMinutes: deadline,
			}
			if minOut != "" {
				if swapReq.MinAmountOut, err = token.ParseUnits(minOut, req.To.Decimals); err != nil {
					return fmt.Errorf("invalid --min-out: %w", err)
				}
			}

			setSuffix(sp, "Fetching quote...")
			sp.Start()
			q, err := s.runner.Quote(cmd.Context(), req)
			if err != nil {
				sp.Stop()
				return err
			}
			est, gasErr := s.runner.EstimateGas(cmd.Context(), req)
			sp.Stop()

			w := cmd.OutOrStdout()
			floor := swap.MinAmountOut(q.AmountOut, bps)
			if swapReq.MinAmountOut != nil && swapReq.MinAmountOut.Cmp(floor) > 0 {
				floor = swapReq.MinAmountOut
			}
			printHeader(w, "SWAP")
			printQuote(w, q)
			fmt.Fprintf(w, "  Slippage:  %s\n", FormatSlippage(bps))
			fmt.Fprintf(w, "  Minimum:   %s %s\n", token.FormatFixed(floor, req.To.Decimals, token.DisplayPrecision(req.To.Decimals)), symbol.Sprint(req.To.Symbol))
			fmt.Fprintf(w, "  Deadline:  %d minutes\n", deadline)
			if gasErr != nil {
				fmt.Fprintf(w, "  Gas:       %s\n", warning.Sprintf("estimate failed: %v", gasErr))
			} else {
				printGas(w, est)
			}
			fmt.Fprintln(w, rule)

			if !noConfirm && !p.confirm("Proceed with swap?") {
				fmt.Fprintln(w, "\nSwap cancelled.")
				return nil
			}

			setSuffix(sp, "Submitting swap...")
			sp.Start()
			res, err := s.runner.Execute(cmd.Context(), swapReq, q)
			sp.Stop()

			if res.ApprovalTxHash != (common.Hash{}) {
				fmt.Fprintf(w, "\n  Approval:  %s\n", accent.Sprint(res.ApprovalTxHash.Hex()))
			}
			if res.TxHash != (common.Hash{}) {
				fmt.Fprintf(w, "  Swap tx:   %s\n", accent.Sprint(res.TxHash.Hex()))
			}
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(w, "\nSwap confirmed: %s %s for at least %s %s\n\n",
				token.FormatUnits(req.AmountIn, req.From.Decimals), req.From.Symbol,
				token.FormatUnits(res.MinAmountOut, req.To.Decimals), req.To.Symbol)
			return nil
		},
	}
	cmd.Flags().StringVar(&slippage, "slippage", "", "Slippage tolerance in percent, e.g. 0.5 (default from config)")
	cmd.Flags().Uint32Var(&deadline, "deadline", 0, "Deadline in minutes (default from config)")
	cmd.Flags().StringVar(&minOut, "min-out", "", "Minimum amount to receive; the larger of this and the slippage floor applies")
	cmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompts")
	return cmd
}

// PrintError writes err with its hint to stderr
func PrintError(err error) {
	failure.Fprintf(os.Stderr, "\nError: %s\n\n", strings.TrimSpace(describe(err)))
}
