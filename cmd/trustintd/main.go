// Command trustintd is the trust-registry intelligence daemon. It loads a
// YAML configuration file, brings the embedded store up to the latest
// schema version, ingests the declarative trust/role/asset/law documents,
// drains the inbox of any files that arrived while the daemon was not
// running, then blocks until SIGTERM or SIGINT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/trustint/trustint/internal/config"
	"github.com/trustint/trustint/internal/daemon"
)

func main() {
	configPath := flag.String("config", "/etc/trustint/config.yaml", "path to the trustint daemon YAML configuration file")
	keyPath := flag.String("key-file", "", "path to the HMAC key file (defaults to <vault_dir>/.hmac_key)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trustintd: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("config_path", *configPath),
		slog.String("vault_dir", cfg.VaultDir),
		slog.String("log_level", cfg.LogLevel),
	)

	resolvedKeyPath := *keyPath
	if resolvedKeyPath == "" {
		resolvedKeyPath = cfg.VaultDir + "/.hmac_key"
	}

	d, err := daemon.New(cfg, logger, resolvedKeyPath)
	if err != nil {
		logger.Error("failed to construct daemon", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Bootstrap(ctx); err != nil {
		logger.Error("bootstrap failed", slog.Any("error", err))
		_ = d.Stop()
		os.Exit(1)
	}
	logger.Info("trustintd bootstrap complete", slog.Any("status", d.Status()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))

	if err := d.Stop(); err != nil {
		logger.Warn("shutdown error", slog.Any("error", err))
	}
	logger.Info("trustintd exited cleanly")
}

// newLogger constructs a *slog.Logger that writes JSON-structured log
// records to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
