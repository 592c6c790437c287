package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/fortune/internal/blob/s3"
	"github.com/alanyoungcy/fortune/internal/eventstore"
	"github.com/alanyoungcy/fortune/internal/feed"
	"github.com/alanyoungcy/fortune/internal/payment"
	"github.com/alanyoungcy/fortune/internal/server"
	"github.com/alanyoungcy/fortune/internal/server/handler"
	"github.com/alanyoungcy/fortune/internal/server/ws"
	"github.com/alanyoungcy/fortune/internal/view"
)

// redrawInterval refreshes time-remaining labels even when no event arrives.
const redrawInterval = 30 * time.Second

// WatchMode streams events and redraws the filtered list on every change.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.String("category", a.opts.Category),
		slog.String("query", a.opts.Query),
	)

	g, ctx := errgroup.WithContext(ctx)

	syncer := feed.NewSynchronizer(deps.API, deps.Events, a.cfg.API.ReconnectDelay.Duration, a.logger)
	changed := make(chan struct{}, 1)
	poke := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	syncer.OnStatus(func(feed.State) { poke() })
	stop := deps.Events.Subscribe(func(eventstore.Change) { poke() })
	defer stop()

	g.Go(func() error {
		return syncer.Run(ctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(redrawInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-changed:
			case <-ticker.C:
			}
			a.renderList(ctx, deps, syncer.Live())
		}
	})

	return g.Wait()
}

func (a *App) renderList(ctx context.Context, deps *Dependencies, live bool) {
	events := view.Filter(deps.Events.Snapshot(), a.opts.Category, a.opts.Query)
	fmt.Fprint(a.opts.Out, "\033[H\033[2J")
	view.RenderList(a.opts.Out, events, live, func(id string) bool {
		_, ok := deps.Unlocks.Get(ctx, id)
		return ok
	}, time.Now())
}

// UnlockMode runs one unlock for opts.MarketID on the terminal: show the
// cached result, or pay the invoice and show the verified result.
func (a *App) UnlockMode(ctx context.Context, deps *Dependencies) error {
	if a.opts.MarketID == "" {
		return fmt.Errorf("app: unlock mode needs a market id (-market)")
	}
	out := a.opts.Out

	w := payment.NewWorkflow(a.opts.MarketID, PaymentConfig(a.cfg), deps.PaymentDeps(), a.logger)
	defer w.Close()

	var (
		mu           sync.Mutex
		lastProgress string
	)
	w.Subscribe(func(s payment.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.Progress != "" && s.Progress != lastProgress {
			fmt.Fprintln(out, s.Progress)
		}
		lastProgress = s.Progress
	})

	outcome, err := w.RequestUnlock(ctx)
	if err != nil {
		return fmt.Errorf("app: request unlock: %w", err)
	}

	if outcome == payment.OutcomePaymentRequired {
		printInvoice(out, w.Snapshot())
		if _, err := w.ConfirmPayment(ctx); err != nil {
			fmt.Fprintln(out, "Error:", payment.UserMessage(err))
			return fmt.Errorf("app: payment: %w", err)
		}
	}

	snap := w.Snapshot()
	if snap.Result == nil {
		return fmt.Errorf("app: no result for %s", a.opts.MarketID)
	}
	if outcome == payment.OutcomeCached {
		fmt.Fprintln(out, "(unlocked earlier, served from cache)")
	}
	view.RenderResult(out, *snap.Result)
	return nil
}

func printInvoice(out io.Writer, s payment.Snapshot) {
	inv := s.Invoice
	if inv == nil {
		return
	}
	if s.Message != "" {
		fmt.Fprintln(out, s.Message)
	}
	fmt.Fprintf(out, "Amount:    %s %s\n", inv.AmountUnits, inv.Currency)
	if inv.Network != "" {
		fmt.Fprintf(out, "Network:   %s\n", inv.Network)
	}
	fmt.Fprintf(out, "Pay to:    %s\n", inv.ReceiverAddress)
	fmt.Fprintf(out, "Reference: %s\n", inv.Reference)
	fmt.Fprintf(out, "Expires:   %s\n", s.Countdown)
}

// ServeMode runs the stream, the ws hub, and the HTTP API until ctx ends.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	syncer := feed.NewSynchronizer(deps.API, deps.Events, a.cfg.API.ReconnectDelay.Duration, a.logger)

	status := func() any {
		return map[string]any{
			"mode":    a.cfg.Mode,
			"network": a.cfg.API.Network,
			"live":    syncer.Live(),
			"events":  deps.Events.Len(),
			"wallet":  deps.Wallet != nil,
		}
	}
	var receipts handler.ReceiptSource
	if deps.Receipts != nil {
		receipts = deps.Receipts
	}

	hub := ws.NewHub(a.logger, ws.Config{Status: status, AllowedOrigins: a.cfg.Server.CORSOrigins})
	syncer.OnStatus(func(st feed.State) {
		hub.BroadcastJSON("status", map[string]any{"state": st.String(), "live": st == feed.StateLive})
	})

	stopBroadcast := feed.NewBroadcaster(deps.Events, hub, a.logger).Start()
	defer stopBroadcast()

	registry := payment.NewRegistry(PaymentConfig(a.cfg), deps.PaymentDeps(), a.logger)
	registry.OnSnapshot(func(s payment.Snapshot) { hub.BroadcastJSON("unlock", s) })
	defer registry.CloseAll()

	srv := server.NewServer(server.Config{
		Host:        a.cfg.Server.Host,
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.Health, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, a.cfg.API.Network, syncer, deps.Events),
		Events:   handler.NewEventHandler(deps.Events, deps.Unlocks, a.logger),
		Unlock:   handler.NewUnlockHandler(ctx, registry, a.logger),
		Audit:    handler.NewAuditHandler(deps.Audit, a.logger),
		Receipts: handler.NewReceiptHandler(receipts, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return syncer.Run(ctx)
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	a.logger.InfoContext(ctx, "HTTP server listening", slog.String("url", "http://"+srv.Addr()))
	return g.Wait()
}

// AuditExportMode copies the audit entries of the last opts.Since (default
// 24h) to object storage as JSON lines.
func (a *App) AuditExportMode(ctx context.Context, deps *Dependencies) error {
	if deps.Audit == nil || deps.Blobs == nil {
		return fmt.Errorf("app: audit-export needs postgres and s3")
	}
	since := a.opts.Since
	if since <= 0 {
		since = 24 * time.Hour
	}
	until := time.Now().UTC()

	exporter := s3blob.NewAuditExporter(deps.Audit, deps.Blobs, 0, a.logger)
	path, n, err := exporter.Export(ctx, until.Add(-since), until)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	fmt.Fprintf(a.opts.Out, "exported %d audit entries to %s\n", n, path)
	return nil
}
