package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/fortune/internal/domain"
	"github.com/redis/go-redis/v9"
)

// KVStore implements domain.KVStore with plain Redis strings.
//
// Key schema:
//
//	{prefix}{key} - raw value bytes
type KVStore struct {
	c   *Client
	ttl time.Duration
}

// NewKVStore creates a KVStore. A positive ttl sets a Redis expiry on every
// write so stale entries are swept even if nobody reads them again; readers
// still apply their own freshness rules.
func NewKVStore(c *Client, ttl time.Duration) *KVStore {
	return &KVStore{c: c, ttl: ttl}
}

// Get returns the value for key, or domain.ErrNotFound.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.c.rdb.Get(ctx, s.c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return data, nil
}

// Set overwrites the value for key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.c.rdb.Set(ctx, s.c.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.c.rdb.Del(ctx, s.c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis: delete %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.KVStore = (*KVStore)(nil)
