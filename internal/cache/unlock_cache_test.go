package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(kv domain.KVStore, clk *fakeClock) *UnlockCache {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUnlockCache(kv, 0, logger, WithClock(clk.Now))
}

func TestPutGetWithinTTL(t *testing.T) {
	kv := NewMemoryKV()
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(kv, clk)
	ctx := context.Background()

	res := domain.UnlockedResult{MarketID: "m1", Title: "Rain", Outcomes: []domain.Outcome{{ID: "o", Name: "Yes", Probability: 0.4}}}
	if err := c.Put(ctx, "m1", res); err != nil {
		t.Fatalf("Put: %v", err)
	}

	clk.Advance(24*time.Hour - time.Millisecond)
	got, ok := c.Get(ctx, "m1")
	if !ok {
		t.Fatal("expected hit just before expiry")
	}
	if got.Title != "Rain" || len(got.Outcomes) != 1 {
		t.Errorf("got = %+v", got)
	}
}

func TestGetExpiredEvicts(t *testing.T) {
	kv := NewMemoryKV()
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(kv, clk)
	ctx := context.Background()

	c.Put(ctx, "m1", domain.UnlockedResult{MarketID: "m1"})
	clk.Advance(24 * time.Hour)

	if _, ok := c.Get(ctx, "m1"); ok {
		t.Fatal("expected miss at exactly 24h")
	}
	if _, err := kv.Get(ctx, UnlockKey("m1")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("stale record not evicted: %v", err)
	}
}

func TestGetCorruptEvicts(t *testing.T) {
	kv := NewMemoryKV()
	clk := &fakeClock{t: time.Now()}
	c := newTestCache(kv, clk)
	ctx := context.Background()

	kv.Set(ctx, "unlock_bad", []byte("{not json"))
	if _, ok := c.Get(ctx, "bad"); ok {
		t.Fatal("expected miss for corrupt value")
	}
	if kv.Len() != 0 {
		t.Error("corrupt record not evicted")
	}
}

func TestStoredShape(t *testing.T) {
	kv := NewMemoryKV()
	clk := &fakeClock{t: time.UnixMilli(1750000000123)}
	c := newTestCache(kv, clk)
	ctx := context.Background()

	c.Put(ctx, "m1", domain.UnlockedResult{MarketID: "m1", Title: "T"})
	raw, err := kv.Get(ctx, "unlock_m1")
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	var shape struct {
		Timestamp int64          `json:"timestamp"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		t.Fatal(err)
	}
	if shape.Timestamp != 1750000000123 {
		t.Errorf("timestamp = %d", shape.Timestamp)
	}
	if shape.Data["uuid"] != "m1" || shape.Data["title"] != "T" {
		t.Errorf("data = %v", shape.Data)
	}
}

func TestPutOverwrites(t *testing.T) {
	kv := NewMemoryKV()
	clk := &fakeClock{t: time.Now()}
	c := newTestCache(kv, clk)
	ctx := context.Background()

	c.Put(ctx, "m1", domain.UnlockedResult{Title: "old"})
	clk.Advance(23 * time.Hour)
	c.Put(ctx, "m1", domain.UnlockedResult{Title: "new"})
	clk.Advance(2 * time.Hour)

	got, ok := c.Get(ctx, "m1")
	if !ok || got.Title != "new" {
		t.Errorf("Get = %+v, %v; want refreshed record", got, ok)
	}
}
