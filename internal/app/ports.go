package app

import (
	"context"

	"adaptive-quiz-service/internal/domain"
)

// Backend is the durable, transactional record of truth (Postgres, SQLite, memory).
type Backend interface {
	// Create inserts a fresh state row. It returns domain.ErrUserExists if the user is onboarded.
	Create(ctx context.Context, st domain.UserProgressionState) error
	// Load reads the committed state without locking.
	Load(ctx context.Context, userID string) (domain.UserProgressionState, error)
	// InTx runs fn while holding the exclusive lock on userID's row. A non-nil error from fn
	// rolls back every write made through tx. Missing rows fail with domain.ErrStateNotFound.
	InTx(ctx context.Context, userID string, fn func(ctx context.Context, tx Tx) error) error
	// Top returns up to limit durable rows of dim ordered by value desc, updatedAt asc, userID asc.
	Top(ctx context.Context, dim domain.Dimension, limit int) ([]domain.LeaderboardEntry, error)
	// Entry returns the durable row of userID in dim, or false if none exists.
	Entry(ctx context.Context, dim domain.Dimension, userID string) (domain.LeaderboardEntry, bool, error)
	// CountAbove counts rows of dim with a strictly greater value.
	CountAbove(ctx context.Context, dim domain.Dimension, value int64) (int64, error)
	// AnswerStats aggregates the answer log of userID, with up to recent newest outcomes.
	AnswerStats(ctx context.Context, userID string, recent int) (domain.AnswerStats, error)
}

// Tx is the write surface of one locked transaction.
type Tx interface {
	// State returns the locked row as read at the start of the transaction.
	State() domain.UserProgressionState
	SaveState(ctx context.Context, st domain.UserProgressionState) error
	AppendAnswer(ctx context.Context, entry domain.AnswerLogEntry) error
	UpsertLeaderboard(ctx context.Context, dim domain.Dimension, entry domain.LeaderboardEntry) error
	// CountAbove counts rows of dim with a strictly greater value, as seen by this transaction.
	CountAbove(ctx context.Context, dim domain.Dimension, value int64) (int64, error)
}

// QuestionBank serves question content.
type QuestionBank interface {
	// FetchQuestion returns a question at targetDifficulty, or the nearest difficulty
	// available, never excludeID when another question exists.
	FetchQuestion(ctx context.Context, targetDifficulty int, excludeID string) (domain.Question, error)
	GetQuestion(ctx context.Context, questionID string) (domain.Question, error)
}

// IdempotencyStore keeps committed answer results for replay.
type IdempotencyStore interface {
	LoadResult(ctx context.Context, userID, token string) (domain.AnswerResult, bool, error)
	// SaveResult stores result unless one is already stored for the token.
	SaveResult(ctx context.Context, userID, token string, result domain.AnswerResult) error
}

// RateLimiter throttles submissions per user.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// ProjectionCache holds the disposable derived views. It is never authoritative.
type ProjectionCache interface {
	GetState(ctx context.Context, userID string) (domain.UserProgressionState, bool, error)
	// PutState stores st unless a state with a higher StateVersion is already cached.
	PutState(ctx context.Context, st domain.UserProgressionState) error
	GetMetrics(ctx context.Context, userID string) (domain.UserMetrics, bool, error)
	PutMetrics(ctx context.Context, m domain.UserMetrics) error
	DropMetrics(ctx context.Context, userID string) error
	GetTop(ctx context.Context, dim domain.Dimension) ([]domain.RankedEntry, bool, error)
	// TopGeneration returns the counter that every DropTops advances.
	TopGeneration(ctx context.Context) (int64, error)
	// PutTop stores entries only if no DropTops ran since generation was read.
	PutTop(ctx context.Context, dim domain.Dimension, generation int64, entries []domain.RankedEntry) error
	DropTops(ctx context.Context) error
}

// DisabledCache is a ProjectionCache that never holds anything.
type DisabledCache struct{}

func (DisabledCache) GetState(context.Context, string) (domain.UserProgressionState, bool, error) {
	return domain.UserProgressionState{}, false, nil
}
func (DisabledCache) PutState(context.Context, domain.UserProgressionState) error { return nil }
func (DisabledCache) GetMetrics(context.Context, string) (domain.UserMetrics, bool, error) {
	return domain.UserMetrics{}, false, nil
}
func (DisabledCache) PutMetrics(context.Context, domain.UserMetrics) error { return nil }
func (DisabledCache) DropMetrics(context.Context, string) error            { return nil }
func (DisabledCache) GetTop(context.Context, domain.Dimension) ([]domain.RankedEntry, bool, error) {
	return nil, false, nil
}
func (DisabledCache) TopGeneration(context.Context) (int64, error) { return 0, nil }
func (DisabledCache) PutTop(context.Context, domain.Dimension, int64, []domain.RankedEntry) error {
	return nil
}
func (DisabledCache) DropTops(context.Context) error { return nil }
