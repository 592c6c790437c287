package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/fortune/internal/domain"
)

// ReceiptSource reads archived unlock receipts. *s3blob.ReceiptArchiver
// satisfies it.
type ReceiptSource interface {
	List(ctx context.Context, marketID string) ([]domain.BlobInfo, error)
	Receipt(ctx context.Context, marketID, reference string) (domain.Receipt, error)
}

// ReceiptHandler serves the receipt archive.
type ReceiptHandler struct {
	receipts ReceiptSource
	logger   *slog.Logger
}

// NewReceiptHandler creates a ReceiptHandler. receipts may be nil when no
// object store is configured.
func NewReceiptHandler(receipts ReceiptSource, logger *slog.Logger) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts, logger: logHandler(logger, "receipts")}
}

// ListReceipts returns the archived receipts of one market.
// GET /api/receipts/{id}
func (h *ReceiptHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		writeError(w, http.StatusServiceUnavailable, "receipt archive not configured")
		return
	}
	id := r.PathValue("id")
	infos, err := h.receipts.List(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list receipts failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list receipts")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "receipts": infos})
}

// GetReceipt returns one archived receipt by payment reference.
// GET /api/receipts/{id}/{ref}
func (h *ReceiptHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		writeError(w, http.StatusServiceUnavailable, "receipt archive not configured")
		return
	}
	id, ref := r.PathValue("id"), r.PathValue("ref")
	rec, err := h.receipts.Receipt(r.Context(), id, ref)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "receipt not found")
	case err != nil:
		h.logger.ErrorContext(r.Context(), "get receipt failed",
			slog.String("market_id", id),
			slog.String("reference", ref),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read receipt")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}
