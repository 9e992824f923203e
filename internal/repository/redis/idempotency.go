package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockValue    = "LOCK"
	resultPrefix = "RES:"
)

// IdempotencyStore holds short-lived locks and replayable responses. A key
// is either locked (work in flight) or holds a saved result.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, lockValue, lockTTL).Result()
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, jsonPayload string) error {
	return s.rdb.Set(ctx, key, resultPrefix+jsonPayload, s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	payload, ok := strings.CutPrefix(v, resultPrefix)

	return payload, ok, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// KeyLocker scopes IdempotencyStore locks under the confirmation namespace so
// it can serialize ledger writes per idempotency key.
type KeyLocker struct {
	store *IdempotencyStore
}

func NewKeyLocker(store *IdempotencyStore) *KeyLocker {
	return &KeyLocker{store: store}
}

func (l *KeyLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.store.AcquireLock(ctx, KeyConfirmLock(key), ttl)
}

func (l *KeyLocker) Release(ctx context.Context, key string) error {
	return l.store.Release(ctx, KeyConfirmLock(key))
}
