package memory

import (
	"context"
	"sort"
	"sync"

	"adaptive-quiz-service/internal/app"
	"adaptive-quiz-service/internal/domain"
)

// StateBackend is an in-process implementation of app.Backend for tests and demos.
// A per-user mutex plays the role of the row lock; writes are staged in the
// transaction and applied all at once on success.
type StateBackend struct {
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	mu          sync.RWMutex
	states      map[string]domain.UserProgressionState
	answers     []domain.AnswerLogEntry
	leaderboard map[domain.Dimension]map[string]domain.LeaderboardEntry
}

func NewStateBackend() *StateBackend {
	return &StateBackend{
		locks:  make(map[string]*sync.Mutex),
		states: make(map[string]domain.UserProgressionState),
		leaderboard: map[domain.Dimension]map[string]domain.LeaderboardEntry{
			domain.DimensionScore:  {},
			domain.DimensionStreak: {},
		},
	}
}

func (b *StateBackend) Create(_ context.Context, st domain.UserProgressionState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.states[st.UserID]; ok {
		return domain.ErrUserExists
	}
	b.states[st.UserID] = st
	return nil
}

func (b *StateBackend) Load(_ context.Context, userID string) (domain.UserProgressionState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.states[userID]
	if !ok {
		return domain.UserProgressionState{}, domain.ErrStateNotFound
	}
	return st, nil
}

func (b *StateBackend) InTx(ctx context.Context, userID string, fn func(ctx context.Context, tx app.Tx) error) error {
	lock := b.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	st, err := b.Load(ctx, userID)
	if err != nil {
		return err
	}

	tx := &stateTx{backend: b, state: st, upserts: make(map[domain.Dimension]domain.LeaderboardEntry)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if tx.saved != nil {
		b.states[userID] = *tx.saved
	}
	b.answers = append(b.answers, tx.answers...)
	for dim, entry := range tx.upserts {
		b.leaderboard[dim][entry.UserID] = entry
	}
	return nil
}

func (b *StateBackend) Top(_ context.Context, dim domain.Dimension, limit int) ([]domain.LeaderboardEntry, error) {
	b.mu.RLock()
	rows := make([]domain.LeaderboardEntry, 0, len(b.leaderboard[dim]))
	for _, entry := range b.leaderboard[dim] {
		rows = append(rows, entry)
	}
	b.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			return rows[i].Value > rows[j].Value
		}
		if !rows[i].UpdatedAt.Equal(rows[j].UpdatedAt) {
			return rows[i].UpdatedAt.Before(rows[j].UpdatedAt)
		}
		return rows[i].UserID < rows[j].UserID
	})
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (b *StateBackend) Entry(_ context.Context, dim domain.Dimension, userID string) (domain.LeaderboardEntry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.leaderboard[dim][userID]
	return entry, ok, nil
}

func (b *StateBackend) CountAbove(_ context.Context, dim domain.Dimension, value int64) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.countAboveLocked(dim, value, "", domain.LeaderboardEntry{}), nil
}

func (b *StateBackend) AnswerStats(_ context.Context, userID string, recent int) (domain.AnswerStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var (
		stats         domain.AnswerStats
		difficultySum int64
	)
	for i := len(b.answers) - 1; i >= 0; i-- {
		entry := b.answers[i]
		if entry.UserID != userID {
			continue
		}
		stats.TotalAnswers++
		if entry.Correct {
			stats.CorrectAnswers++
		}
		difficultySum += int64(entry.Difficulty)
		if len(stats.Recent) < recent {
			stats.Recent = append(stats.Recent, entry.Correct)
		}
	}
	if stats.TotalAnswers > 0 {
		stats.AverageDifficulty = float64(difficultySum) / float64(stats.TotalAnswers)
	}
	return stats, nil
}

// Answers returns a copy of the answer log, oldest first.
func (b *StateBackend) Answers() []domain.AnswerLogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.AnswerLogEntry, len(b.answers))
	copy(out, b.answers)
	return out
}

// countAboveLocked counts rows strictly above value, seeing the staged row of userID
// in place of its committed one.
func (b *StateBackend) countAboveLocked(dim domain.Dimension, value int64, userID string, staged domain.LeaderboardEntry) int64 {
	var n int64
	for id, entry := range b.leaderboard[dim] {
		if id == userID {
			continue
		}
		if entry.Value > value {
			n++
		}
	}
	if userID != "" && staged.Value > value {
		n++
	}
	return n
}

func (b *StateBackend) userLock(userID string) *sync.Mutex {
	b.locksMu.Lock()
	defer b.locksMu.Unlock()
	lock, ok := b.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		b.locks[userID] = lock
	}
	return lock
}

type stateTx struct {
	backend *StateBackend
	state   domain.UserProgressionState
	saved   *domain.UserProgressionState
	answers []domain.AnswerLogEntry
	upserts map[domain.Dimension]domain.LeaderboardEntry
}

func (t *stateTx) State() domain.UserProgressionState { return t.state }

func (t *stateTx) SaveState(_ context.Context, st domain.UserProgressionState) error {
	t.saved = &st
	return nil
}

func (t *stateTx) AppendAnswer(_ context.Context, entry domain.AnswerLogEntry) error {
	t.answers = append(t.answers, entry)
	return nil
}

func (t *stateTx) UpsertLeaderboard(_ context.Context, dim domain.Dimension, entry domain.LeaderboardEntry) error {
	t.backend.mu.RLock()
	prev, ok := t.backend.leaderboard[dim][entry.UserID]
	t.backend.mu.RUnlock()
	// Keep the original timestamp while the value is unchanged so earlier achievers stay ahead on ties.
	if ok && prev.Value == entry.Value {
		entry.UpdatedAt = prev.UpdatedAt
	}
	t.upserts[dim] = entry
	return nil
}

func (t *stateTx) CountAbove(_ context.Context, dim domain.Dimension, value int64) (int64, error) {
	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()
	staged, ok := t.upserts[dim]
	if !ok {
		return t.backend.countAboveLocked(dim, value, "", domain.LeaderboardEntry{}), nil
	}
	return t.backend.countAboveLocked(dim, value, staged.UserID, staged), nil
}
