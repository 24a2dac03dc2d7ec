package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adaptive-quiz-service/internal/domain"
	"adaptive-quiz-service/internal/progression"
)

// MutateFunc applies one answer to the locked state and returns the audit record to append.
type MutateFunc func(st *domain.UserProgressionState) domain.AnswerLogEntry

// Commit is the outcome of a committed answer transaction.
type Commit struct {
	State      domain.UserProgressionState
	Entry      domain.AnswerLogEntry
	RankScore  int64
	RankStreak int64
	Decayed    bool
}

// StateStore owns UserProgressionState: every mutation goes through one locked
// transaction that also appends the answer log and upserts both leaderboards.
type StateStore struct {
	backend Backend
	decay   progression.DecayPolicy
}

func NewStateStore(backend Backend, decay progression.DecayPolicy) *StateStore {
	return &StateStore{backend: backend, decay: decay}
}

// Create onboards userID with default state.
func (s *StateStore) Create(ctx context.Context, userID string, now time.Time) (domain.UserProgressionState, error) {
	st := domain.NewUserProgressionState(userID, now)
	if err := s.backend.Create(ctx, st); err != nil {
		return domain.UserProgressionState{}, storeErr(err)
	}
	return st, nil
}

// Load reads the committed state without applying decay.
func (s *StateStore) Load(ctx context.Context, userID string) (domain.UserProgressionState, error) {
	st, err := s.backend.Load(ctx, userID)
	if err != nil {
		return domain.UserProgressionState{}, storeErr(err)
	}
	return st, nil
}

// Refresh returns the current state, persisting decay first when it is due.
func (s *StateStore) Refresh(ctx context.Context, userID string, now time.Time) (domain.UserProgressionState, bool, error) {
	st, err := s.Load(ctx, userID)
	if err != nil {
		return domain.UserProgressionState{}, false, err
	}
	if !s.decay.Due(st, now) {
		return st, false, nil
	}

	var decayed bool
	err = s.backend.InTx(ctx, userID, func(ctx context.Context, tx Tx) error {
		st, decayed = s.decay.Apply(tx.State(), now)
		if !decayed {
			return nil
		}
		return tx.SaveState(ctx, st)
	})
	if err != nil {
		return domain.UserProgressionState{}, false, storeErr(err)
	}
	return st, decayed, nil
}

// MarkServed records questionID as the last served question.
func (s *StateStore) MarkServed(ctx context.Context, userID, questionID string, now time.Time) (domain.UserProgressionState, bool, error) {
	var (
		st      domain.UserProgressionState
		decayed bool
	)
	err := s.backend.InTx(ctx, userID, func(ctx context.Context, tx Tx) error {
		st, decayed = s.decay.Apply(tx.State(), now)
		st.LastQuestionID = questionID
		st.StateVersion++
		st.UpdatedAt = now
		return tx.SaveState(ctx, st)
	})
	if err != nil {
		return domain.UserProgressionState{}, false, storeErr(err)
	}
	return st, decayed, nil
}

// Mutate applies fn under the row lock when expected matches the (possibly decay-bumped)
// version. On a conflict only the decay, if any, is committed; the returned Commit then
// carries the authoritative state.
func (s *StateStore) Mutate(ctx context.Context, userID string, expected int64, now time.Time, fn MutateFunc) (Commit, error) {
	ctx, span := tracer.Start(ctx, "StateStore.Mutate")
	defer span.End()

	var (
		commit   Commit
		conflict error
	)
	err := s.backend.InTx(ctx, userID, func(ctx context.Context, tx Tx) error {
		commit = Commit{}
		conflict = nil

		st, decayed := s.decay.Apply(tx.State(), now)
		commit.Decayed = decayed

		if expected != st.StateVersion {
			conflict = &domain.VersionConflictError{Expected: expected, Actual: st.StateVersion}
			commit.State = st
			if decayed {
				return tx.SaveState(ctx, st)
			}
			return nil
		}

		entry := fn(&st)
		entry.UserID = userID
		st.StateVersion++
		st.UpdatedAt = now

		if err := tx.SaveState(ctx, st); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		if err := tx.AppendAnswer(ctx, entry); err != nil {
			return fmt.Errorf("append answer: %w", err)
		}

		values := map[domain.Dimension]int64{
			domain.DimensionScore:  st.TotalScore,
			domain.DimensionStreak: int64(st.MaxStreak),
		}
		ranks := make(map[domain.Dimension]int64, len(values))
		for _, dim := range domain.Dimensions {
			if err := tx.UpsertLeaderboard(ctx, dim, domain.LeaderboardEntry{UserID: userID, Value: values[dim], UpdatedAt: now}); err != nil {
				return fmt.Errorf("upsert %s leaderboard: %w", dim, err)
			}
			above, err := tx.CountAbove(ctx, dim, values[dim])
			if err != nil {
				return fmt.Errorf("rank %s: %w", dim, err)
			}
			ranks[dim] = above + 1
		}

		commit.State = st
		commit.Entry = entry
		commit.RankScore = ranks[domain.DimensionScore]
		commit.RankStreak = ranks[domain.DimensionStreak]
		return nil
	})
	if err != nil {
		return Commit{}, storeErr(err)
	}
	if conflict != nil {
		return commit, conflict
	}
	return commit, nil
}

// storeErr passes domain and context errors through and marks the rest as store failures.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrStateNotFound),
		errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrStoreUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
