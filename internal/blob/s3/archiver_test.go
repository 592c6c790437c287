package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memBlobs) PutStream(ctx context.Context, path string, data io.Reader, contentType string, _ int64) error {
	return m.Put(ctx, path, data, contentType)
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestReceiptArchiver(t *testing.T) {
	blobs := newMemBlobs()
	a := NewReceiptArchiver(blobs, blobs, discard())
	ctx := context.Background()

	res := domain.UnlockedResult{
		MarketID:        "m 1",
		Title:           "Rain",
		VerifiedPayment: &domain.VerifiedPayment{Reference: "ref/7", TxSignature: "0xabc"},
	}
	if err := a.Archive(ctx, "m 1", res); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	path := "receipts/m%201/ref%2F7.json"
	raw, ok := blobs.objects[path]
	if !ok {
		t.Fatalf("no object at %s; have %v", path, blobs.objects)
	}
	if blobs.types[path] != "application/json" {
		t.Errorf("content type = %q", blobs.types[path])
	}
	var doc domain.Receipt
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.MarketID != "m 1" || doc.Result.Title != "Rain" {
		t.Errorf("doc = %+v", doc)
	}

	rec, err := a.Receipt(ctx, "m 1", "ref/7")
	if err != nil {
		t.Fatalf("Receipt: %v", err)
	}
	if rec.Result.VerifiedPayment == nil || rec.Result.VerifiedPayment.TxSignature != "0xabc" {
		t.Errorf("receipt = %+v", rec)
	}
	if _, err := a.Receipt(ctx, "m 1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing receipt err = %v, want ErrNotFound", err)
	}

	blobs.objects[path] = []byte("original")
	if err := a.Archive(ctx, "m 1", res); err != nil {
		t.Fatal(err)
	}
	if string(blobs.objects[path]) != "original" {
		t.Error("existing receipt was overwritten")
	}

	infos, err := a.List(ctx, "m 1")
	if err != nil || len(infos) != 1 {
		t.Errorf("List = %v, %v", infos, err)
	}
}

type pagedAudit struct {
	entries []domain.AuditEntry
	calls   int
}

func (p *pagedAudit) Log(context.Context, string, map[string]any) error { return nil }

func (p *pagedAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	p.calls++
	if opts.Offset >= len(p.entries) {
		return nil, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(p.entries) {
		end = len(p.entries)
	}
	return p.entries[opts.Offset:end], nil
}

func TestAuditExporterPages(t *testing.T) {
	until := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	audit := &pagedAudit{}
	for i := 0; i < 5; i++ {
		audit.entries = append(audit.entries, domain.AuditEntry{
			ID: int64(i), Event: "payment_started", CreatedAt: until.Add(-time.Duration(i+1) * time.Minute),
		})
	}
	blobs := newMemBlobs()
	e := NewAuditExporter(audit, blobs, 2, discard())

	path, n, err := e.Export(context.Background(), until.Add(-time.Hour), until)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if path != "audit/2026-01-02/1767312000.jsonl" {
		t.Errorf("path = %s", path)
	}
	if n != 5 {
		t.Errorf("count = %d, want 5", n)
	}
	if audit.calls != 3 {
		t.Errorf("list calls = %d, want 3", audit.calls)
	}

	sc := bufio.NewScanner(bytes.NewReader(blobs.objects[path]))
	lines := 0
	for sc.Scan() {
		var entry domain.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		lines++
	}
	if lines != 5 {
		t.Errorf("lines = %d", lines)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	if got := normaliseEndpoint("minio:9000", false); got != "http://minio:9000" {
		t.Errorf("got %s", got)
	}
	if got := normaliseEndpoint("minio:9000", true); got != "https://minio:9000" {
		t.Errorf("got %s", got)
	}
	if got := normaliseEndpoint("https://s3.example.com", false); got != "https://s3.example.com" {
		t.Errorf("got %s", got)
	}
	if got := normaliseEndpoint("localhost:9000", false); got != "http://localhost:9000" {
		t.Errorf("got %s", got)
	}
	if got := normaliseEndpoint("http://minio:9000", true); got != "http://minio:9000" {
		t.Errorf("explicit scheme replaced: %s", got)
	}
}
