// Command connectd is the BLE session multiplexer daemon (§1, §4.5):
// it wires the Bluetooth actor to a WebSocket listener and serves until
// interrupted. Generalized from the teacher's multi-subcommand blim CLI
// to a single daemon command.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/cubeast-app/connect/internal/adapter/goble"
	"github.com/cubeast-app/connect/internal/bluetooth"
	"github.com/cubeast-app/connect/internal/config"
	"github.com/cubeast-app/connect/internal/listener"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds a 'v' prefix if version starts with a digit.
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

var rootCmd = &cobra.Command{
	Use:   "connectd",
	Short: "BLE session multiplexer daemon",
	Long: `connectd exposes a host's BLE radio to WebSocket clients:

- Scans and discovers nearby BLE peripherals
- Connects, reads, writes, and subscribes to GATT characteristics
- Multiplexes discovery and notification streams across any number of
  concurrently connected WebSocket sessions`,
	Version: formatVersion(version),
	RunE:    runDaemon,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.Flags().String("bind", "", "Address to bind the WebSocket listener (default 127.0.0.1:17430)")
	rootCmd.Flags().Bool("allow-any-origin", false, "Accept WebSocket handshakes from any Origin")
	rootCmd.Flags().String("allow-list-file", "", "Path to a newline-delimited, hot-reloadable Origin allow-list")
	rootCmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, cfg)

	logger := cfg.NewLogger()
	logger.WithFields(map[string]interface{}{
		"version": version,
		"commit":  commit,
		"date":    date,
		"bind":    cfg.Bind,
	}).Info("connectd: starting")

	adapter, err := goble.New(logger, goble.RetryPolicy{
		Attempts: cfg.ServiceDiscoveryRetries,
		Backoff:  cfg.ServiceDiscoveryBackoff,
	})
	if err != nil {
		return fmt.Errorf("failed to open BLE adapter: %w", err)
	}

	bt := bluetooth.New(adapter, logger)
	defer bt.Close()

	opts := listener.Options{
		Bind:           cfg.Bind,
		AllowAnyOrigin: cfg.AllowAnyOrigin,
		Version:        version,
		ConnectTimeout: cfg.ConnectTimeout,
	}
	if cfg.AllowListFile != "" {
		allowList, err := config.NewAllowList(cfg.AllowListFile, logger)
		if err != nil {
			return fmt.Errorf("failed to load allow-list file: %w", err)
		}
		defer allowList.Close()
		opts.Allowed = allowList
	}

	l := listener.New(opts, bt, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("bind", cfg.Bind).Info("connectd: listening")
	return l.Serve(ctx)
}

// applyFlagOverrides layers cobra flags on top of the viper-derived
// config (§10.3), the highest-precedence layer.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("bind"); v != "" {
		cfg.Bind = v
	}
	if v, _ := cmd.Flags().GetBool("allow-any-origin"); v {
		cfg.AllowAnyOrigin = true
	}
	if v, _ := cmd.Flags().GetString("allow-list-file"); v != "" {
		cfg.AllowListFile = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		if lvl, err := parseLogLevel(v); err == nil {
			cfg.LogLevel = lvl
		}
	}
}
