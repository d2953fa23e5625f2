package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseTradeArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    TradeArgs
		wantErr bool
	}{
		{"simple", []string{"1", "EVMOS", "to", "USDC"}, TradeArgs{"1", "EVMOS", "USDC"}, false},
		{"with swap prefix", []string{"swap", "1.5", "usdc", "TO", "usdt"}, TradeArgs{"1.5", "usdc", "usdt"}, false},
		{"single string", []string{"0.25 USDC for WEVMOS"}, TradeArgs{"0.25", "USDC", "WEVMOS"}, false},
		{"leading dot", []string{".5", "EVMOS", "->", "USDC"}, TradeArgs{".5", "EVMOS", "USDC"}, false},
		{"address keeps case", []string{"2", "0x5Ed91D8c5FcEcD4C7523916712D7AF4F2Bb7aEE4", "to", "USDC"},
			TradeArgs{"2", "0x5Ed91D8c5FcEcD4C7523916712D7AF4F2Bb7aEE4", "USDC"}, false},
		{"missing to", []string{"1", "EVMOS", "USDC"}, TradeArgs{}, true},
		{"negative", []string{"-1", "EVMOS", "to", "USDC"}, TradeArgs{}, true},
		{"two dots", []string{"1.2.3", "EVMOS", "to", "USDC"}, TradeArgs{}, true},
		{"trailing words", []string{"1", "EVMOS", "to", "USDC", "now"}, TradeArgs{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTradeArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTradeArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTradeArgs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseSlippage(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"0.5", 50, false},
		{"0.5%", 50, false},
		{"1", 100, false},
		{"0.05", 5, false},
		{"100", 10000, false},
		{"0", 0, false},
		{"100.01", 0, true},
		{"0.001", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseSlippage(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSlippage(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSlippage(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatSlippage(t *testing.T) {
	if got := FormatSlippage(50); got != "0.50%" {
		t.Errorf("FormatSlippage(50) = %q, want 0.50%%", got)
	}
	if got := FormatSlippage(10000); got != "100.00%" {
		t.Errorf("FormatSlippage(10000) = %q, want 100.00%%", got)
	}
}

func TestPrompter_Confirm(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("y\nno\nYES\n"), &out)

	want := []bool{true, false, true, false}
	for i, w := range want {
		if got := p.confirm("Proceed?"); got != w {
			t.Errorf("answer %d = %v, want %v", i, got, w)
		}
	}
	if !strings.Contains(out.String(), "Proceed? (y/N)") {
		t.Errorf("prompt not written, got %q", out.String())
	}
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "app:\n  environment: development\n  logLevel: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", path))
	err := root.Execute()
	return out.String(), err
}

func TestNetworksCommand(t *testing.T) {
	out, err := runCommand(t, "networks")
	if err != nil {
		t.Fatalf("networks failed: %v", err)
	}
	for _, want := range []string{"NETWORKS (development)", "31337", "Evmos Testnet", "preference 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTokensCommand(t *testing.T) {
	out, err := runCommand(t, "tokens", "--chain", "9001")
	if err != nil {
		t.Fatalf("tokens failed: %v", err)
	}
	for _, want := range []string{"TOKENS ON CHAIN 9001", "EVMOS", "USDC", "native"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := runCommand(t, "tokens", "--chain", "424242"); err == nil {
		t.Error("tokens for an unknown chain succeeded")
	}
}

func TestQuoteCommand_BadArgs(t *testing.T) {
	if _, err := runCommand(t, "quote", "one", "EVMOS", "to", "USDC"); err == nil {
		t.Error("quote with a non-numeric amount succeeded")
	}
}
