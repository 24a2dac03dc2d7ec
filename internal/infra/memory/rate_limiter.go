package memory

import (
	"context"
	"strconv"
	"time"
)

// RateLimiter is a fixed-window per-user counter in an Arena.
type RateLimiter struct {
	arena  *Arena
	limit  int64
	window time.Duration
	clock  func() time.Time
}

func NewRateLimiter(arena *Arena, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{arena: arena, limit: int64(limit), window: window, clock: arena.clock}
}

func (l *RateLimiter) Allow(_ context.Context, userID string) (bool, error) {
	now := l.clock()
	start := now.Truncate(l.window)
	key := "ratelimit:" + userID + ":" + strconv.FormatInt(start.Unix(), 10)
	n := l.arena.Incr(key, start.Add(l.window).Sub(now))
	return n <= l.limit, nil
}
