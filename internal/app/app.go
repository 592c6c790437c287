// Package app wires the fortune client together and runs it in the
// configured mode.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alanyoungcy/fortune/internal/config"
	"github.com/alanyoungcy/fortune/internal/domain"
	"github.com/alanyoungcy/fortune/internal/wallet"
)

// Options are the per-run inputs that come from the command line.
type Options struct {
	// MarketID is the market to unlock in unlock mode.
	MarketID string
	// Category and Query filter the watch view.
	Category string
	Query    string
	// Since bounds audit-export to entries newer than now-Since.
	Since time.Duration
	// In and Out are the terminal; they default to stdin and stdout.
	In  io.Reader
	Out io.Writer
}

// App owns the configuration, the logger, and the cleanup functions run on
// shutdown in reverse order.
type App struct {
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
	closers []func()
}

func New(cfg *config.Config, opts Options, logger *slog.Logger) *App {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and blocks in the selected mode until it finishes
// or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("network", a.cfg.API.Network),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.approver(), a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case config.ModeWatch:
		return a.WatchMode(ctx, deps)
	case config.ModeUnlock:
		return a.UnlockMode(ctx, deps)
	case config.ModeServe:
		return a.ServeMode(ctx, deps)
	case config.ModeAuditExport:
		return a.AuditExportMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down every resource. Later calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// approver asks on the terminal in unlock mode. Serve mode has no terminal
// to ask on, so it signs without asking.
func (a *App) approver() wallet.ApproveFunc {
	if a.cfg.Wallet.AutoApprove || strings.ToLower(a.cfg.Mode) != config.ModeUnlock {
		return wallet.AutoApprove
	}
	return wallet.PromptApprover(a.opts.In, a.opts.Out, describeTx)
}

func describeTx(req domain.TxRequest) string {
	return fmt.Sprintf("Send token transfer\n  from: %s\n  to (token contract): %s\n  gas limit: %d\n  call data: %d bytes",
		req.From, req.To, req.Gas, len(req.Data))
}
