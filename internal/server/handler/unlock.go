package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/fortune/internal/domain"
	"github.com/alanyoungcy/fortune/internal/payment"
	"github.com/alanyoungcy/fortune/internal/platform/fortune"
)

// Workflows hands out the per-market payment workflows. *payment.Registry
// satisfies it.
type Workflows interface {
	Get(marketID string) *payment.Workflow
	Lookup(marketID string) (*payment.Workflow, bool)
	Snapshots() []payment.Snapshot
}

// UnlockHandler drives the payment workflows over HTTP. Payment attempts run
// on base so they outlive the request that started them.
type UnlockHandler struct {
	flows  Workflows
	base   context.Context
	logger *slog.Logger
}

func NewUnlockHandler(base context.Context, flows Workflows, logger *slog.Logger) *UnlockHandler {
	return &UnlockHandler{flows: flows, base: base, logger: logHandler(logger, "unlock")}
}

type unlockResponse struct {
	Outcome  string           `json:"outcome,omitempty"`
	Snapshot payment.Snapshot `json:"snapshot"`
}

// RequestUnlock serves a cached result or fetches the detail or invoice.
// POST /api/unlock/{id}
func (h *UnlockHandler) RequestUnlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}
	flow := h.flows.Get(id)
	out, err := flow.RequestUnlock(r.Context())
	if err != nil {
		h.writeWorkflowError(r.Context(), w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, unlockResponse{Outcome: out.String(), Snapshot: flow.Snapshot()})
}

// ConfirmPayment starts paying the held invoice and answers 202 with the
// sending snapshot. Progress is pushed on the unlock ws channel.
// POST /api/unlock/{id}/confirm
func (h *UnlockHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flow, ok := h.flows.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no unlock in progress")
		return
	}
	err := flow.StartPayment(h.base, func(_ domain.UnlockedResult, err error) {
		if err != nil {
			h.logger.WarnContext(h.base, "payment attempt failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	})
	if err != nil {
		h.writeWorkflowError(r.Context(), w, id, err)
		return
	}
	writeJSON(w, http.StatusAccepted, unlockResponse{Snapshot: flow.Snapshot()})
}

// GetUnlock returns the workflow snapshot of one market.
// GET /api/unlock/{id}
func (h *UnlockHandler) GetUnlock(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flows.Lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no unlock in progress")
		return
	}
	writeJSON(w, http.StatusOK, unlockResponse{Snapshot: flow.Snapshot()})
}

// ListUnlocks returns every workflow snapshot.
// GET /api/unlock
func (h *UnlockHandler) ListUnlocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"unlocks": h.flows.Snapshots()})
}

// CloseUnlock discards the held invoice (dialog close).
// DELETE /api/unlock/{id}
func (h *UnlockHandler) CloseUnlock(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flows.Lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no unlock in progress")
		return
	}
	flow.Close()
	writeJSON(w, http.StatusOK, unlockResponse{Snapshot: flow.Snapshot()})
}

func (h *UnlockHandler) writeWorkflowError(ctx context.Context, w http.ResponseWriter, id string, err error) {
	var apiErr *fortune.APIError
	switch {
	case errors.Is(err, domain.ErrPaymentInProgress):
		writeError(w, http.StatusConflict, payment.UserMessage(err))
	case errors.Is(err, domain.ErrWalletNotConnected), errors.Is(err, domain.ErrNoInvoice),
		errors.Is(err, domain.ErrMissingContract):
		writeError(w, http.StatusPreconditionFailed, payment.UserMessage(err))
	case errors.Is(err, domain.ErrInvoiceExpired):
		writeError(w, http.StatusGone, payment.UserMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, apiErr.Message)
	default:
		h.logger.ErrorContext(ctx, "unlock request failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
