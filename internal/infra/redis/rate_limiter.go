package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter per user: ratelimit:{userID}:{windowStart}.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	clock  func() time.Time
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithClock(client, limit, window, time.Now)
}

// NewRateLimiterWithClock is test-only for deterministic windows.
func NewRateLimiterWithClock(client *redis.Client, limit int, window time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{client: client, limit: int64(limit), window: window, clock: now}
}

func (l *RateLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	now := l.clock()
	start := now.Truncate(l.window)
	key := "ratelimit:" + userID + ":" + strconv.FormatInt(start.Unix(), 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, start.Add(l.window))
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= l.limit, nil
}
