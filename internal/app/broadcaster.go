package app

import (
	"sync"

	"adaptive-quiz-service/internal/domain"
	"adaptive-quiz-service/internal/metrics"
)

// Broadcaster fans committed leaderboard updates out to in-process subscribers.
// It is a notification channel only; subscribers re-read rankings through the service.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan domain.LeaderboardUpdate]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan domain.LeaderboardUpdate]struct{})}
}

// Subscribe returns a channel of updates. The caller must invoke cancel to avoid leaks.
func (b *Broadcaster) Subscribe() (<-chan domain.LeaderboardUpdate, func()) {
	ch := make(chan domain.LeaderboardUpdate, 8)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	metrics.LeaderboardSubscribers.Inc()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
			metrics.LeaderboardSubscribers.Dec()
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers update to every subscriber without blocking on slow ones.
func (b *Broadcaster) Publish(update domain.LeaderboardUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- update:
		default:
			// Full buffer: drop the oldest update so the newest one always lands.
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

// Len reports the number of open subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
