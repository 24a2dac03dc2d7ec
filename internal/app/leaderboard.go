package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"adaptive-quiz-service/internal/domain"
	"adaptive-quiz-service/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// MaxTopLimit is the size of the cached top projection and the largest accepted limit.
const MaxTopLimit = 100

// refreshTimeout bounds a shared top recompute, which outlives the caller that started it.
const refreshTimeout = 5 * time.Second

// Leaderboard serves rankings. Tops come from a cached projection when present;
// ranks always come from the durable rows.
type Leaderboard struct {
	backend Backend
	cache   ProjectionCache
	logger  *slog.Logger
	sf      singleflight.Group
}

func NewLeaderboard(backend Backend, cache ProjectionCache, logger *slog.Logger) *Leaderboard {
	if cache == nil {
		cache = DisabledCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Leaderboard{backend: backend, cache: cache, logger: logger}
}

// Top returns the first limit ranked entries of dim.
func (l *Leaderboard) Top(ctx context.Context, dim domain.Dimension, limit int) ([]domain.RankedEntry, error) {
	entries, ok, err := l.cache.GetTop(ctx, dim)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("leaderboard", "error").Inc()
		l.logger.Warn("leaderboard cache read failed", "dimension", dim, "error", err)
	case ok:
		metrics.CacheLookups.WithLabelValues("leaderboard", "hit").Inc()
		return head(entries, limit), nil
	default:
		metrics.CacheLookups.WithLabelValues("leaderboard", "miss").Inc()
	}

	entries, err = l.Refresh(ctx, dim)
	if err != nil {
		return nil, err
	}
	return head(entries, limit), nil
}

// Refresh recomputes the top projection of dim from the durable rows and caches it.
// Concurrent refreshes of one dimension share a single durable read. The result is
// not cached when a commit invalidated the tops while it was being computed.
func (l *Leaderboard) Refresh(ctx context.Context, dim domain.Dimension) ([]domain.RankedEntry, error) {
	result, err, _ := l.sf.Do(string(dim), func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		generation, genErr := l.cache.TopGeneration(ctx)
		if genErr != nil {
			metrics.CacheErrors.WithLabelValues("top_generation").Inc()
			l.logger.Warn("leaderboard generation read failed", "dimension", dim, "error", genErr)
		}
		rows, err := l.backend.Top(ctx, dim, MaxTopLimit)
		if err != nil {
			return nil, storeErr(fmt.Errorf("load %s leaderboard: %w", dim, err))
		}
		ranked := rankEntries(rows)
		if genErr != nil {
			return ranked, nil
		}
		if err := l.cache.PutTop(ctx, dim, generation, ranked); err != nil {
			metrics.CacheErrors.WithLabelValues("put_top").Inc()
			l.logger.Warn("leaderboard cache write failed", "dimension", dim, "error", err)
		}
		return ranked, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.RankedEntry), nil
}

// Rank computes userID's rank per dimension from the durable rows.
func (l *Leaderboard) Rank(ctx context.Context, userID string) (domain.RankInfo, error) {
	var info domain.RankInfo
	for _, dim := range domain.Dimensions {
		entry, ok, err := l.backend.Entry(ctx, dim, userID)
		if err != nil {
			return domain.RankInfo{}, storeErr(err)
		}
		if !ok {
			continue
		}
		above, err := l.backend.CountAbove(ctx, dim, entry.Value)
		if err != nil {
			return domain.RankInfo{}, storeErr(err)
		}
		rank := above + 1
		switch dim {
		case domain.DimensionScore:
			info.ByScore = &rank
		case domain.DimensionStreak:
			info.ByStreak = &rank
		}
	}
	return info, nil
}

// Invalidate drops the cached tops of both dimensions.
func (l *Leaderboard) Invalidate(ctx context.Context) {
	if err := l.cache.DropTops(ctx); err != nil {
		metrics.CacheErrors.WithLabelValues("drop_tops").Inc()
		l.logger.Warn("leaderboard cache invalidation failed", "error", err)
	}
}

// rankEntries assigns competition ranks to rows sorted by value desc: equal values share
// the rank of the first of them, which equals the count of strictly greater values plus one.
func rankEntries(rows []domain.LeaderboardEntry) []domain.RankedEntry {
	ranked := make([]domain.RankedEntry, len(rows))
	for i, row := range rows {
		rank := int64(i + 1)
		if i > 0 && rows[i-1].Value == row.Value {
			rank = ranked[i-1].Rank
		}
		ranked[i] = domain.RankedEntry{UserID: row.UserID, Value: row.Value, Rank: rank}
	}
	return ranked
}

func head(entries []domain.RankedEntry, limit int) []domain.RankedEntry {
	if limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]domain.RankedEntry, len(entries))
	copy(out, entries)
	return out
}
