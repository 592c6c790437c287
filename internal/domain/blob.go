package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader reads from object storage. Get returns ErrNotFound for a
// missing object.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Receipt is the archived record of one verified unlock.
type Receipt struct {
	MarketID   string         `json:"market_id"`
	ArchivedAt time.Time      `json:"archived_at"`
	Result     UnlockedResult `json:"result"`
}

// ReceiptArchiver keeps a durable copy of every verified unlock.
type ReceiptArchiver interface {
	Archive(ctx context.Context, marketID string, result UnlockedResult) error
}
