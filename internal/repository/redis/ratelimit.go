package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Accepted hits of one client live in a sorted set scored by time. A
// rejected hit is not recorded, so a client that keeps retrying gets back in
// as soon as its oldest accepted hit leaves the window.
//
// KEYS[1] hit set; ARGV now_ms, window_ms, limit, hit id.
// Replies {allowed, retry_ms}.
const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)

if redis.call('ZCARD', KEYS[1]) >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local retry = window - (now - tonumber(oldest[2]))
  if retry < 0 then retry = 0 end
  return {0, retry}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, 0}
`

// SlidingWindowLimiter allows at most limit hits per client within window.
type SlidingWindowLimiter struct {
	rdb    *redis.Client
	script *redis.Script
	scope  string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewSlidingWindowLimiter(rdb *redis.Client, scope string, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		script: redis.NewScript(slidingWindowScript),
		scope:  scope,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records one hit for id if it fits in the window. When it does not,
// retryAfter is the time until the oldest accepted hit expires.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, id string) (allowed bool, retryAfter time.Duration, err error) {
	const op = "redis.SlidingWindowLimiter.Allow"

	reply, err := l.script.Run(ctx, l.rdb,
		[]string{KeyRateLimit(l.scope, id)},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("%s: %w", op, err)
	}

	if len(reply) != 2 {
		return false, 0, fmt.Errorf("%s: unexpected script reply %v", op, reply)
	}

	return reply[0] == 1, time.Duration(reply[1]) * time.Millisecond, nil
}
