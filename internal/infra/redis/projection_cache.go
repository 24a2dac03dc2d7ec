package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"adaptive-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ProjectionTTLs are the independent lifetimes of the three derived views.
type ProjectionTTLs struct {
	State       time.Duration
	Metrics     time.Duration
	Leaderboard time.Duration
}

// ProjectionCache stores the derived views as JSON strings:
//
//	progression:state:{userID}
//	progression:metrics:{userID}
//	leaderboard:top:{dimension}
//	leaderboard:generation (bumped by every DropTops)
type ProjectionCache struct {
	client *redis.Client
	ttls   ProjectionTTLs
}

func NewProjectionCache(client *redis.Client, ttls ProjectionTTLs) *ProjectionCache {
	return &ProjectionCache{client: client, ttls: ttls}
}

func (c *ProjectionCache) GetState(ctx context.Context, userID string) (domain.UserProgressionState, bool, error) {
	var st domain.UserProgressionState
	ok, err := c.get(ctx, stateKey(userID), &st)
	return st, ok, err
}

// putStateScript sets KEYS[1] unless the cached stateVersion is higher than ARGV[2].
var putStateScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, cached = pcall(cjson.decode, cur)
	if ok and type(cached) == 'table' then
		local v = tonumber(cached['stateVersion'])
		if v and v > tonumber(ARGV[2]) then
			return 0
		end
	end
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// putTopScript sets KEYS[1] only while the generation at KEYS[2] equals ARGV[2].
var putTopScript = redis.NewScript(`
local gen = tonumber(redis.call('GET', KEYS[2]) or '0')
if gen ~= tonumber(ARGV[2]) then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// PutState stores st unless the cached state already has a higher stateVersion.
func (c *ProjectionCache) PutState(ctx context.Context, st domain.UserProgressionState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return putStateScript.Run(ctx, c.client, []string{stateKey(st.UserID)},
		raw, st.StateVersion, c.ttls.State.Milliseconds()).Err()
}

func (c *ProjectionCache) GetMetrics(ctx context.Context, userID string) (domain.UserMetrics, bool, error) {
	var m domain.UserMetrics
	ok, err := c.get(ctx, metricsKey(userID), &m)
	return m, ok, err
}

func (c *ProjectionCache) PutMetrics(ctx context.Context, m domain.UserMetrics) error {
	return c.put(ctx, metricsKey(m.UserID), m, c.ttls.Metrics)
}

func (c *ProjectionCache) DropMetrics(ctx context.Context, userID string) error {
	return c.client.Del(ctx, metricsKey(userID)).Err()
}

func (c *ProjectionCache) GetTop(ctx context.Context, dim domain.Dimension) ([]domain.RankedEntry, bool, error) {
	var entries []domain.RankedEntry
	ok, err := c.get(ctx, topKey(dim), &entries)
	return entries, ok, err
}

func (c *ProjectionCache) TopGeneration(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, topGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// PutTop stores entries unless DropTops ran after generation was read.
func (c *ProjectionCache) PutTop(ctx context.Context, dim domain.Dimension, generation int64, entries []domain.RankedEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return putTopScript.Run(ctx, c.client, []string{topKey(dim), topGenerationKey},
		raw, generation, c.ttls.Leaderboard.Milliseconds()).Err()
}

func (c *ProjectionCache) DropTops(ctx context.Context) error {
	keys := make([]string, 0, len(domain.Dimensions))
	for _, dim := range domain.Dimensions {
		keys = append(keys, topKey(dim))
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, topGenerationKey)
		pipe.Del(ctx, keys...)
		return nil
	})
	return err
}

func (c *ProjectionCache) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
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

func (c *ProjectionCache) put(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

const topGenerationKey = "leaderboard:generation"

func stateKey(userID string) string      { return "progression:state:" + userID }
func metricsKey(userID string) string    { return "progression:metrics:" + userID }
func topKey(dim domain.Dimension) string { return "leaderboard:top:" + string(dim) }
