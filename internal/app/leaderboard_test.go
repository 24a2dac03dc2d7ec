package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"adaptive-quiz-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingBackend holds Top until release is closed, then honours ctx.
type blockingBackend struct {
	Backend
	entered     chan struct{}
	enteredOnce sync.Once
	release     chan struct{}
}

func (b *blockingBackend) Top(ctx context.Context, _ domain.Dimension, _ int) ([]domain.LeaderboardEntry, error) {
	b.enteredOnce.Do(func() { close(b.entered) })
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []domain.LeaderboardEntry{{UserID: "a", Value: 10}}, nil
}

func TestRankEntriesUsesCompetitionRanking(t *testing.T) {
	now := time.Now()
	rows := []domain.LeaderboardEntry{
		{UserID: "a", Value: 90, UpdatedAt: now},
		{UserID: "b", Value: 70, UpdatedAt: now},
		{UserID: "c", Value: 70, UpdatedAt: now.Add(time.Second)},
		{UserID: "d", Value: 70, UpdatedAt: now.Add(2 * time.Second)},
		{UserID: "e", Value: 10, UpdatedAt: now},
	}

	ranked := rankEntries(rows)
	got := make([]int64, len(ranked))
	for i, r := range ranked {
		got[i] = r.Rank
	}
	assert.Equal(t, []int64{1, 2, 2, 2, 5}, got)
	assert.Equal(t, "d", ranked[3].UserID)
}

func TestHeadCopiesPrefix(t *testing.T) {
	entries := []domain.RankedEntry{{UserID: "a", Rank: 1}, {UserID: "b", Rank: 2}}

	out := head(entries, 1)
	assert.Len(t, out, 1)
	out[0].UserID = "mutated"
	assert.Equal(t, "a", entries[0].UserID)

	assert.Len(t, head(entries, 10), 2)
	assert.Empty(t, head(nil, 10))
}

func TestRefreshSurvivesCancelledInitiator(t *testing.T) {
	backend := &blockingBackend{entered: make(chan struct{}), release: make(chan struct{})}
	lb := NewLeaderboard(backend, DisabledCache{}, nil)

	initiatorCtx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		entries []domain.RankedEntry
		err     error
	}
	first := make(chan outcome, 1)
	go func() {
		entries, err := lb.Refresh(initiatorCtx, domain.DimensionScore)
		first <- outcome{entries, err}
	}()
	<-backend.entered

	second := make(chan outcome, 1)
	go func() {
		entries, err := lb.Refresh(context.Background(), domain.DimensionScore)
		second <- outcome{entries, err}
	}()

	cancel()
	close(backend.release)

	for _, ch := range []chan outcome{first, second} {
		select {
		case got := <-ch:
			require.NoError(t, got.err)
			require.Len(t, got.entries, 1)
			assert.Equal(t, "a", got.entries[0].UserID)
		case <-time.After(time.Second):
			t.Fatal("refresh did not return")
		}
	}
}
