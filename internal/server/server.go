// Package server exposes the event store and the unlock workflows to a local
// browser front end over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/fortune/internal/server/handler"
	"github.com/alanyoungcy/fortune/internal/server/middleware"
	"github.com/alanyoungcy/fortune/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
	// APIKey enables authentication when non-empty.
	APIKey string
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Events   *handler.EventHandler
	Unlock   *handler.UnlockHandler
	Audit    *handler.AuditHandler
	Receipts *handler.ReceiptHandler
}

// Server is the local HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in CORS, logging, and
// auth middleware. wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	mux.HandleFunc("GET /api/categories", handlers.Events.ListCategories)
	mux.HandleFunc("GET /api/events/{id}/chart", handlers.Events.GetChart)

	mux.HandleFunc("GET /api/unlock", handlers.Unlock.ListUnlocks)
	mux.HandleFunc("POST /api/unlock/{id}", handlers.Unlock.RequestUnlock)
	mux.HandleFunc("POST /api/unlock/{id}/confirm", handlers.Unlock.ConfirmPayment)
	mux.HandleFunc("GET /api/unlock/{id}", handlers.Unlock.GetUnlock)
	mux.HandleFunc("DELETE /api/unlock/{id}", handlers.Unlock.CloseUnlock)

	mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)

	mux.HandleFunc("GET /api/receipts/{id}", handlers.Receipts.ListReceipts)
	mux.HandleFunc("GET /api/receipts/{id}/{ref}", handlers.Receipts.GetReceipt)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
