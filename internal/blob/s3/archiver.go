package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
)

// ReceiptArchiver implements domain.ReceiptArchiver by writing each verified
// unlock as JSON to receipts/{market}/{reference}.json. A receipt already
// present is left untouched.
type ReceiptArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	logger *slog.Logger
}

// NewReceiptArchiver creates a ReceiptArchiver. reader may be nil, in which
// case receipts are always written.
func NewReceiptArchiver(writer domain.BlobWriter, reader domain.BlobReader, logger *slog.Logger) *ReceiptArchiver {
	return &ReceiptArchiver{
		writer: writer,
		reader: reader,
		logger: logger.With(slog.String("component", "receipt_archiver")),
	}
}

// Archive stores result for marketID.
func (a *ReceiptArchiver) Archive(ctx context.Context, marketID string, result domain.UnlockedResult) error {
	path := ReceiptPath(marketID, receiptRef(result))

	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			a.logger.DebugContext(ctx, "receipt exists check failed", slog.String("path", path), slog.String("error", err.Error()))
		} else if exists {
			return nil
		}
	}

	body, err := json.MarshalIndent(domain.Receipt{
		MarketID:   marketID,
		ArchivedAt: time.Now().UTC(),
		Result:     result,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal receipt %s: %w", marketID, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(body), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive receipt: %w", err)
	}
	a.logger.InfoContext(ctx, "receipt archived", slog.String("path", path))
	return nil
}

// List returns the archived receipts of one market.
func (a *ReceiptArchiver) List(ctx context.Context, marketID string) ([]domain.BlobInfo, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: receipt listing needs a reader")
	}
	return a.reader.List(ctx, "receipts/"+url.PathEscape(marketID)+"/")
}

// Receipt reads back the receipt archived for reference. A missing receipt
// returns domain.ErrNotFound.
func (a *ReceiptArchiver) Receipt(ctx context.Context, marketID, reference string) (domain.Receipt, error) {
	if a.reader == nil {
		return domain.Receipt{}, fmt.Errorf("s3blob: receipt lookup needs a reader")
	}
	body, err := a.reader.Get(ctx, ReceiptPath(marketID, reference))
	if err != nil {
		return domain.Receipt{}, err
	}
	defer body.Close()

	var rec domain.Receipt
	if err := json.NewDecoder(body).Decode(&rec); err != nil {
		return domain.Receipt{}, fmt.Errorf("s3blob: decode receipt %s/%s: %w", marketID, reference, err)
	}
	return rec, nil
}

// ReceiptPath builds the object key of a receipt.
//
//	receipts/{market}/{reference}.json
func ReceiptPath(marketID, reference string) string {
	return fmt.Sprintf("receipts/%s/%s.json", url.PathEscape(marketID), url.PathEscape(reference))
}

func receiptRef(r domain.UnlockedResult) string {
	if r.VerifiedPayment != nil && r.VerifiedPayment.Reference != "" {
		return r.VerifiedPayment.Reference
	}
	return "unreferenced-" + time.Now().UTC().Format("20060102T150405Z")
}

// StreamWriter uploads bodies of unknown length. *Writer satisfies it.
type StreamWriter interface {
	PutStream(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// AuditExporter copies audit log entries to object storage as JSON lines.
type AuditExporter struct {
	audit    domain.AuditStore
	writer   StreamWriter
	pageSize int
	logger   *slog.Logger
}

// NewAuditExporter creates an exporter reading audit in pages of pageSize.
func NewAuditExporter(audit domain.AuditStore, writer StreamWriter, pageSize int, logger *slog.Logger) *AuditExporter {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &AuditExporter{
		audit:    audit,
		writer:   writer,
		pageSize: pageSize,
		logger:   logger.With(slog.String("component", "audit_exporter")),
	}
}

// Export streams every entry created in [since, until) to
// audit/{yyyy-mm-dd}/{unix}.jsonl and returns the path and entry count.
func (e *AuditExporter) Export(ctx context.Context, since, until time.Time) (string, int, error) {
	path := AuditExportPath(until)
	pr, pw := io.Pipe()

	var count int
	go func() {
		enc := json.NewEncoder(pw)
		enc.SetEscapeHTML(false)
		opts := domain.ListOpts{Since: &since, Until: &until, Limit: e.pageSize}
		for {
			page, err := e.audit.List(ctx, opts)
			if err != nil {
				pw.CloseWithError(fmt.Errorf("s3blob: list audit page: %w", err))
				return
			}
			for _, entry := range page {
				if !entry.CreatedAt.Before(until) {
					continue
				}
				if err := enc.Encode(entry); err != nil {
					pw.CloseWithError(err)
					return
				}
				count++
			}
			if len(page) < e.pageSize {
				pw.Close()
				return
			}
			opts.Offset += len(page)
		}
	}()

	if err := e.writer.PutStream(ctx, path, pr, "application/x-ndjson", 0); err != nil {
		pr.CloseWithError(err)
		return "", 0, fmt.Errorf("s3blob: export audit: %w", err)
	}
	e.logger.InfoContext(ctx, "audit log exported", slog.String("path", path), slog.Int("entries", count))
	return path, count, nil
}

// AuditExportPath builds the object key of an audit export taken at t.
//
//	audit/2026-01-02/1767312000.jsonl
func AuditExportPath(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("audit/%s/%d.jsonl", t.Format("2006-01-02"), t.Unix())
}
