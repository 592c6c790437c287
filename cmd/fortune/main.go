// Command fortune is the client entry point. It loads configuration, applies
// command-line overrides, wires dependencies, and runs the selected mode until
// interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alanyoungcy/fortune/internal/app"
	"github.com/alanyoungcy/fortune/internal/config"
)

func main() {
	configPath := flag.String("config", "fortune.toml", "path to configuration file")
	mode := flag.String("mode", "", "run mode: watch, unlock, serve or audit-export (overrides config)")
	market := flag.String("market", "", "market id to unlock (unlock mode)")
	category := flag.String("category", "", "category filter (watch mode)")
	query := flag.String("query", "", "search text matched against title and category (watch mode)")
	yes := flag.Bool("yes", false, "sign payment transactions without asking")
	since := flag.Duration("since", 24*time.Hour, "how far back audit-export reaches")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	cfg.Mode = strings.ToLower(cfg.Mode)
	if *yes {
		cfg.Wallet.AutoApprove = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Interactive modes own stdout, so their logs go to stderr.
	var logOut io.Writer = os.Stdout
	if cfg.Mode == config.ModeWatch || cfg.Mode == config.ModeUnlock {
		logOut = os.Stderr
	}
	logger, logCloser := app.NewLogger(cfg.Log, cfg.LogLevel, logOut)
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("fortune starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, app.Options{
		MarketID: *market,
		Category: *category,
		Query:    *query,
		Since:    *since,
	}, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			logCloser.Close()
			os.Exit(1)
		}
	}

	logger.Info("fortune stopped")
}
