// Package cache wraps the shared Redis client. Cached snapshots are advisory:
// every read error degrades to a miss and the caller falls back to the
// database. The strict Get/SetWithTTL/Delete primitives back the OTP store,
// where Redis unavailability must surface.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ozanyurt/caseflow/internal/apperr"
)

const (
	caseListPrefix = "case_list:"
	profilePrefix  = "profile:"
)

// CaseListKey returns the cache key for a user's case-list snapshot.
func CaseListKey(userID string) string { return caseListPrefix + userID }

// ProfileKey returns the cache key for a user's profile snapshot.
func ProfileKey(userID string) string { return profilePrefix + userID }

// Cache holds the process-wide Redis client and the default snapshot TTL.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

// New builds a Cache around an already configured Redis client.
func New(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, log: log.With("component", "cache")}
}

// Ping verifies the Redis connection at startup.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// GetJSON loads a cached snapshot into dest. Any error, including a plain
// miss, reports false so the caller reads the source of truth.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache get failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.log.Warn("cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON stores a snapshot with the default TTL, best-effort.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache set failed", "key", key, "error", err)
	}
}

// Invalidate removes snapshot keys, best-effort.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache invalidate failed", "keys", keys, "error", err)
	}
}

// Get returns the raw value at key. A missing key maps to apperr.ErrNotFound;
// other errors are storage failures.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.ErrNotFound
		}
		return "", apperr.E(apperr.KindStorage, "cache.get", err)
	}
	return val, nil
}

// SetWithTTL stores a value under key with an explicit expiry.
func (c *Cache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperr.E(apperr.KindStorage, "cache.set", err)
	}
	return nil
}

// Delete removes key and reports how many entries existed.
func (c *Cache) Delete(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Del(ctx, key).Result()
	if err != nil {
		return 0, apperr.E(apperr.KindStorage, "cache.delete", err)
	}
	return n, nil
}
