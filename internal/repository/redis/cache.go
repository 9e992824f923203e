package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through JSON cache. Redis failures never fail a read; the
// loader stays the source of truth.
type Cache struct {
	rdb   *redis.Client
	group singleflight.Group
}

func New(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

// lookup decodes the entry under key into dst and reports whether one was
// found.
func (c *Cache) lookup(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}

	return true, nil
}

func (c *Cache) store(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// GetOrSetJSON returns the value cached under key, or calls loader and caches
// its result for ttl. Concurrent misses on one key share a single loader
// call.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	var cached T
	if ok, err := c.lookup(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		var again T
		if ok, err := c.lookup(ctx, key, &again); err == nil && ok {
			return again, nil
		}

		fresh, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		// a failed write only costs the next reader a reload
		_ = c.store(ctx, key, fresh, ttl)

		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return v.(T), nil
}

// InvalidateEvents drops the cached event list.
func (c *Cache) InvalidateEvents(ctx context.Context) error {
	return c.rdb.Del(ctx, KeyEventList()).Err()
}
