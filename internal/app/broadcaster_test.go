package app

import (
	"testing"

	"adaptive-quiz-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterDeliversToEverySubscriber(t *testing.T) {
	b := NewBroadcaster()
	first, cancelFirst := b.Subscribe()
	second, cancelSecond := b.Subscribe()
	defer cancelSecond()
	require.Equal(t, 2, b.Len())

	b.Publish(domain.LeaderboardUpdate{UserID: "u1", TotalScore: 10})
	assert.Equal(t, "u1", (<-first).UserID)
	assert.Equal(t, "u1", (<-second).UserID)

	cancelFirst()
	cancelFirst()
	assert.Equal(t, 1, b.Len())
	_, open := <-first
	assert.False(t, open, "cancelled subscription must be closed")
}

func TestBroadcasterDropsStaleUpdatesForSlowSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := int64(1); i <= 20; i++ {
		b.Publish(domain.LeaderboardUpdate{UserID: "u1", TotalScore: i})
	}

	var last domain.LeaderboardUpdate
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, int64(20), last.TotalScore, "the newest update always lands")
}
