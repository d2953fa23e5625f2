// Package cli is the tradesphere command line: network and token listing,
// wallet connection, quoting, gas estimation and swap execution.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ThetaSpace/tradesphere-swap/internal/config"
	"github.com/ThetaSpace/tradesphere-swap/internal/runner"
)

// Version is set at build time
var Version = "0.1.0"

const defaultConfigPath = "configs/config.yaml"

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "tradesphere",
		Short: "Swap tokens on an EVM AMM router from the terminal",
		Long: `tradesphere connects to a wallet, keeps it on a supported network, quotes
trades against the router and executes them with a slippage floor.

Examples:
  tradesphere networks
  tradesphere connect
  tradesphere watch
  tradesphere quote 1 EVMOS to USDC --watch
  tradesphere gas 1 EVMOS to USDC
  tradesphere swap 1.5 USDC to EVMOS --slippage 0.5`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(root.PersistentFlags())
	bindConfig(v, root.PersistentFlags())

	root.AddCommand(
		newNetworksCommand(v),
		newTokensCommand(v),
		newConnectCommand(v),
		newSwitchCommand(v),
		newWatchCommand(v),
		newBalanceCommand(v),
		newQuoteCommand(v),
		newGasCommand(v),
		newSwapCommand(v),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

func setupFlags(fs *pflag.FlagSet) {
	fs.String("config", defaultConfigPath, "Path to config file (env: TRADESPHERE_CONFIG)")
	fs.String("env", "", "Environment: development or production (env: TRADESPHERE_ENV)")
	fs.String("log-level", "", "Log level: debug, info, warn, error (env: TRADESPHERE_LOG_LEVEL)")
	fs.BoolP("verbose", "v", false, "Shorthand for --log-level debug")
	fs.String("wallet", "", "Wallet mode: bridge or keystore (env: TRADESPHERE_WALLET)")
	fs.String("bridge-url", "", "Wallet bridge WebSocket URL (env: TRADESPHERE_BRIDGE_URL)")
	fs.String("bridge-token", "", "Wallet bridge API token (env: TRADESPHERE_BRIDGE_TOKEN)")
}

// bindConfig lets every persistent flag also come from a TRADESPHERE_ variable
func bindConfig(v *viper.Viper, fs *pflag.FlagSet) {
	v.SetEnvPrefix("TRADESPHERE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		panic(err)
	}
}

// loadConfig reads the config file and applies flag and environment overrides
func loadConfig(v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	explicit := path != defaultConfigPath
	cfg, err := config.LoadOrDefault(path, explicit)
	if err != nil {
		return nil, err
	}
	level := v.GetString("log-level")
	if v.GetBool("verbose") {
		level = "debug"
	}
	err = cfg.ApplyOverrides(config.Overrides{
		Environment: v.GetString("env"),
		LogLevel:    level,
		WalletMode:  v.GetString("wallet"),
		BridgeURL:   v.GetString("bridge-url"),
		BridgeToken: v.GetString("bridge-token"),
	})
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// session is the per-command runtime
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	runner *runner.Runner
	closer io.Closer
}

func openSession(v *viper.Viper, opts ...runner.Option) (*session, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	logger, closer := setupLogger(cfg.App)

	r, err := runner.New(cfg, logger, opts...)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, runner: r, closer: closer}, nil
}

func (s *session) Close() {
	s.runner.Shutdown()
	if s.closer != nil {
		s.closer.Close()
	}
}

// setupLogger writes to stderr, plus the configured log file when set.
// Command output goes to stdout, so logs stay out of it.
func setupLogger(app config.AppConfig) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: parseLevel(app.LogLevel)}
	if app.LogFile == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}

	if err := os.MkdirAll(filepath.Dir(app.LogFile), 0755); err != nil {
		slog.Error("Failed to create logs directory", "error", err)
	}
	logFile, err := os.OpenFile(app.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Error("Failed to open log file", "error", err)
		// Fallback to stderr
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}

	multiWriter := io.MultiWriter(os.Stderr, logFile)
	return slog.New(slog.NewTextHandler(multiWriter, opts)), logFile
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
