package memory

import (
	"context"
	"encoding/json"
	"time"

	"adaptive-quiz-service/internal/domain"
)

// ProjectionTTLs are the independent lifetimes of the three derived views.
type ProjectionTTLs struct {
	State       time.Duration
	Metrics     time.Duration
	Leaderboard time.Duration
}

// ProjectionCache stores derived views in an Arena as JSON, like the Redis one.
type ProjectionCache struct {
	arena *Arena
	ttls  ProjectionTTLs
}

func NewProjectionCache(arena *Arena, ttls ProjectionTTLs) *ProjectionCache {
	return &ProjectionCache{arena: arena, ttls: ttls}
}

func (c *ProjectionCache) GetState(_ context.Context, userID string) (domain.UserProgressionState, bool, error) {
	var st domain.UserProgressionState
	ok, err := c.get(stateKey(userID), &st)
	return st, ok, err
}

// PutState stores st unless the cached state already has a higher stateVersion.
func (c *ProjectionCache) PutState(_ context.Context, st domain.UserProgressionState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	c.arena.Update(stateKey(st.UserID), c.ttls.State, func(cur []byte, ok bool) ([]byte, bool) {
		if !ok {
			return raw, true
		}
		var cached struct {
			StateVersion int64 `json:"stateVersion"`
		}
		if err := json.Unmarshal(cur, &cached); err != nil {
			return raw, true
		}
		return raw, cached.StateVersion <= st.StateVersion
	})
	return nil
}

func (c *ProjectionCache) GetMetrics(_ context.Context, userID string) (domain.UserMetrics, bool, error) {
	var m domain.UserMetrics
	ok, err := c.get(metricsKey(userID), &m)
	return m, ok, err
}

func (c *ProjectionCache) PutMetrics(_ context.Context, m domain.UserMetrics) error {
	return c.put(metricsKey(m.UserID), m, c.ttls.Metrics)
}

func (c *ProjectionCache) DropMetrics(_ context.Context, userID string) error {
	c.arena.Delete(metricsKey(userID))
	return nil
}

func (c *ProjectionCache) GetTop(_ context.Context, dim domain.Dimension) ([]domain.RankedEntry, bool, error) {
	var entries []domain.RankedEntry
	ok, err := c.get(topKey(dim), &entries)
	return entries, ok, err
}

func (c *ProjectionCache) TopGeneration(_ context.Context) (int64, error) {
	return c.arena.Counter(topGenerationKey), nil
}

// PutTop stores entries unless DropTops ran after generation was read.
func (c *ProjectionCache) PutTop(_ context.Context, dim domain.Dimension, generation int64, entries []domain.RankedEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	c.arena.SetIfCounter(topGenerationKey, generation, topKey(dim), raw, c.ttls.Leaderboard)
	return nil
}

// DropTops bumps the generation before deleting so in-flight refreshes cannot store.
func (c *ProjectionCache) DropTops(_ context.Context) error {
	c.arena.Incr(topGenerationKey, 0)
	keys := make([]string, 0, len(domain.Dimensions))
	for _, dim := range domain.Dimensions {
		keys = append(keys, topKey(dim))
	}
	c.arena.Delete(keys...)
	return nil
}

func (c *ProjectionCache) get(key string, dst any) (bool, error) {
	raw, ok := c.arena.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *ProjectionCache) put(key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.arena.Set(key, raw, ttl)
	return nil
}

const topGenerationKey = "leaderboard:generation"

func stateKey(userID string) string      { return "progression:state:" + userID }
func metricsKey(userID string) string    { return "progression:metrics:" + userID }
func topKey(dim domain.Dimension) string { return "leaderboard:top:" + string(dim) }
