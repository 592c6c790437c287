// Package cache implements the time-boxed unlock cache over any
// domain.KVStore, plus an in-process store for tests and one-shot runs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
)

// DefaultUnlockTTL is how long a paid unlock stays valid locally.
const DefaultUnlockTTL = 24 * time.Hour

// UnlockKey returns the storage key for a market's cached unlock.
func UnlockKey(marketID string) string {
	return "unlock_" + marketID
}

// record is the stored value. Timestamp is Unix milliseconds at save time.
type record struct {
	Timestamp int64                 `json:"timestamp"`
	Data      domain.UnlockedResult `json:"data"`
}

// UnlockCache implements domain.UnlockCache. A record is served only while
// now - timestamp < ttl; stale or unreadable records are removed on read.
type UnlockCache struct {
	kv     domain.KVStore
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an UnlockCache.
type Option func(*UnlockCache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *UnlockCache) { c.now = now }
}

// NewUnlockCache creates a cache over kv. A non-positive ttl selects
// DefaultUnlockTTL.
func NewUnlockCache(kv domain.KVStore, ttl time.Duration, logger *slog.Logger, opts ...Option) *UnlockCache {
	if ttl <= 0 {
		ttl = DefaultUnlockTTL
	}
	c := &UnlockCache{
		kv:     kv,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With(slog.String("component", "unlock_cache")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached result for marketID if it is still fresh.
func (c *UnlockCache) Get(ctx context.Context, marketID string) (domain.UnlockedResult, bool) {
	key := UnlockKey(marketID)
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.WarnContext(ctx, "unlock cache read failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
		return domain.UnlockedResult{}, false
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.logger.WarnContext(ctx, "evicting unreadable unlock record",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		c.evict(ctx, key)
		return domain.UnlockedResult{}, false
	}

	saved := time.UnixMilli(rec.Timestamp)
	if c.now().Sub(saved) >= c.ttl {
		c.evict(ctx, key)
		return domain.UnlockedResult{}, false
	}
	return rec.Data, true
}

// Put stores result for marketID stamped with the current time, replacing
// any previous record.
func (c *UnlockCache) Put(ctx context.Context, marketID string, result domain.UnlockedResult) error {
	data, err := json.Marshal(record{Timestamp: c.now().UnixMilli(), Data: result})
	if err != nil {
		return fmt.Errorf("cache: marshal unlock %s: %w", marketID, err)
	}
	if err := c.kv.Set(ctx, UnlockKey(marketID), data); err != nil {
		return fmt.Errorf("cache: put unlock %s: %w", marketID, err)
	}
	return nil
}

// Has reports whether a fresh record exists, without decoding it for the
// caller.
func (c *UnlockCache) Has(ctx context.Context, marketID string) bool {
	_, ok := c.Get(ctx, marketID)
	return ok
}

func (c *UnlockCache) evict(ctx context.Context, key string) {
	if err := c.kv.Delete(ctx, key); err != nil {
		c.logger.DebugContext(ctx, "unlock cache evict failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Compile-time interface check.
var _ domain.UnlockCache = (*UnlockCache)(nil)
