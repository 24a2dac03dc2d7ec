package memory

import (
	"context"
	"testing"
	"time"

	"adaptive-quiz-service/internal/domain"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestArenaExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	arena := NewArenaWithClock(clock.Now)

	arena.Set("k", []byte("v"), time.Minute)
	if _, ok := arena.Get("k"); !ok {
		t.Fatalf("expected live key")
	}
	if arena.SetNX("k", []byte("other"), time.Minute) {
		t.Fatalf("expected SetNX to refuse a live key")
	}

	clock.Advance(time.Minute)
	if _, ok := arena.Get("k"); ok {
		t.Fatalf("expected key expired")
	}
	if !arena.SetNX("k", []byte("other"), 0) {
		t.Fatalf("expected SetNX to store after expiry")
	}
}

func TestRateLimiterFixedWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 12, 0, 10, 0, time.UTC)}
	arena := NewArenaWithClock(clock.Now)
	limiter := NewRateLimiter(arena, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := limiter.Allow(ctx, "u1"); !ok {
			t.Fatalf("submission %d should be admitted", i+1)
		}
	}
	if ok, _ := limiter.Allow(ctx, "u1"); ok {
		t.Fatalf("fourth submission should be throttled")
	}
	if ok, _ := limiter.Allow(ctx, "u2"); !ok {
		t.Fatalf("other users are not affected")
	}

	clock.Advance(50 * time.Second)
	if ok, _ := limiter.Allow(ctx, "u1"); !ok {
		t.Fatalf("new window should admit again")
	}
}

func TestIdempotencyStoreKeepsFirstResult(t *testing.T) {
	store := NewIdempotencyStore(NewArena(), time.Hour)
	ctx := context.Background()

	first := domain.AnswerResult{Correct: true, TotalScore: 11, NewStateVersion: 2}
	if err := store.SaveResult(ctx, "u1", "tok", first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveResult(ctx, "u1", "tok", domain.AnswerResult{TotalScore: 99}); err != nil {
		t.Fatalf("save again: %v", err)
	}
	got, ok, err := store.LoadResult(ctx, "u1", "tok")
	if err != nil || !ok {
		t.Fatalf("expected stored result, got ok=%v err=%v", ok, err)
	}
	if got.TotalScore != 11 || !got.Correct {
		t.Fatalf("expected first result, got %+v", got)
	}
	if _, ok, _ := store.LoadResult(ctx, "u2", "tok"); ok {
		t.Fatalf("tokens are scoped per user")
	}
}

func TestProjectionCacheDropTops(t *testing.T) {
	cache := NewProjectionCache(NewArena(), ProjectionTTLs{State: time.Minute, Metrics: time.Minute, Leaderboard: time.Minute})
	ctx := context.Background()

	gen, _ := cache.TopGeneration(ctx)
	for _, dim := range domain.Dimensions {
		if err := cache.PutTop(ctx, dim, gen, []domain.RankedEntry{{UserID: "u1", Value: 1, Rank: 1}}); err != nil {
			t.Fatalf("put top: %v", err)
		}
		if _, ok, _ := cache.GetTop(ctx, dim); !ok {
			t.Fatalf("expected %s top cached", dim)
		}
	}
	if err := cache.DropTops(ctx); err != nil {
		t.Fatalf("drop tops: %v", err)
	}
	for _, dim := range domain.Dimensions {
		if _, ok, _ := cache.GetTop(ctx, dim); ok {
			t.Fatalf("expected %s top dropped", dim)
		}
	}
}

func TestProjectionCacheRejectsTopFromBeforeDrop(t *testing.T) {
	cache := NewProjectionCache(NewArena(), ProjectionTTLs{Leaderboard: time.Minute})
	ctx := context.Background()

	stale, _ := cache.TopGeneration(ctx)
	if err := cache.DropTops(ctx); err != nil {
		t.Fatalf("drop tops: %v", err)
	}
	if err := cache.PutTop(ctx, domain.DimensionScore, stale, []domain.RankedEntry{{UserID: "u1", Value: 1, Rank: 1}}); err != nil {
		t.Fatalf("put top: %v", err)
	}
	if _, ok, _ := cache.GetTop(ctx, domain.DimensionScore); ok {
		t.Fatalf("top computed before the drop must not be cached")
	}

	fresh, _ := cache.TopGeneration(ctx)
	if fresh != stale+1 {
		t.Fatalf("expected generation %d, got %d", stale+1, fresh)
	}
	if err := cache.PutTop(ctx, domain.DimensionScore, fresh, []domain.RankedEntry{{UserID: "u1", Value: 2, Rank: 1}}); err != nil {
		t.Fatalf("put top: %v", err)
	}
	if top, ok, _ := cache.GetTop(ctx, domain.DimensionScore); !ok || top[0].Value != 2 {
		t.Fatalf("expected fresh top cached, got ok=%v %+v", ok, top)
	}
}

func TestProjectionCacheKeepsNewestState(t *testing.T) {
	cache := NewProjectionCache(NewArena(), ProjectionTTLs{State: time.Minute})
	ctx := context.Background()

	st := domain.NewUserProgressionState("u1", time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC))
	newer := st
	newer.StateVersion = 3
	older := st
	older.StateVersion = 2

	if err := cache.PutState(ctx, newer); err != nil {
		t.Fatalf("put v3: %v", err)
	}
	if err := cache.PutState(ctx, older); err != nil {
		t.Fatalf("put v2: %v", err)
	}
	got, ok, err := cache.GetState(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("get state: ok=%v err=%v", ok, err)
	}
	if got.StateVersion != 3 {
		t.Fatalf("expected cached version 3, got %d", got.StateVersion)
	}
}

func TestArenaSweepsExpiredKeysWithoutReads(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	arena := NewArenaWithClock(clock.Now)
	limiter := NewRateLimiter(arena, 20, time.Minute)
	ctx := context.Background()

	// One rate-limit key per window, none of them read again.
	for i := 0; i < 5; i++ {
		if _, err := limiter.Allow(ctx, "u1"); err != nil {
			t.Fatalf("allow: %v", err)
		}
		clock.Advance(time.Minute)
	}
	arena.Set("pinned", []byte("v"), 0)

	arena.mu.Lock()
	stored := len(arena.items)
	arena.mu.Unlock()
	if stored != 1 {
		t.Fatalf("expected expired windows swept by writes, %d items stored", stored)
	}

	arena.Set("short", []byte("v"), time.Second)
	clock.Advance(time.Second)
	if removed := arena.Sweep(); removed != 1 {
		t.Fatalf("expected sweep to remove the short-lived key, removed %d", removed)
	}
	if arena.Len() != 1 {
		t.Fatalf("expected only the pinned key left, got %d", arena.Len())
	}
}
