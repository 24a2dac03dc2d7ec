package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"adaptive-quiz-service/internal/app"
	"adaptive-quiz-service/internal/domain"
	"github.com/uptrace/bun"
)

// StateBackend keeps progression state, the answer log and leaderboard rows in Postgres.
// InTx holds SELECT ... FOR UPDATE on the user's row for the whole transaction.
type StateBackend struct {
	db *bun.DB
}

func NewStateBackend(db *bun.DB) *StateBackend {
	return &StateBackend{db: db}
}

func (b *StateBackend) Create(ctx context.Context, st domain.UserProgressionState) error {
	row := toProgressionRow(st)
	res, err := b.db.NewInsert().Model(&row).On("CONFLICT (user_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserExists
	}
	return nil
}

func (b *StateBackend) Load(ctx context.Context, userID string) (domain.UserProgressionState, error) {
	return loadState(ctx, b.db, userID, false)
}

func (b *StateBackend) InTx(ctx context.Context, userID string, fn func(ctx context.Context, tx app.Tx) error) error {
	return b.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		st, err := loadState(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		return fn(ctx, &stateTx{tx: tx, state: st})
	})
}

func (b *StateBackend) Top(ctx context.Context, dim domain.Dimension, limit int) ([]domain.LeaderboardEntry, error) {
	var rows []leaderboardRow
	err := b.db.NewSelect().
		Model(&rows).
		Where("dimension = ?", string(dim)).
		OrderExpr("value DESC, updated_at ASC, user_id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select top: %w", err)
	}
	out := make([]domain.LeaderboardEntry, len(rows))
	for i, row := range rows {
		out[i] = row.entry()
	}
	return out, nil
}

func (b *StateBackend) Entry(ctx context.Context, dim domain.Dimension, userID string) (domain.LeaderboardEntry, bool, error) {
	var row leaderboardRow
	err := b.db.NewSelect().
		Model(&row).
		Where("dimension = ?", string(dim)).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("select entry: %w", err)
	}
	return row.entry(), true, nil
}

func (b *StateBackend) CountAbove(ctx context.Context, dim domain.Dimension, value int64) (int64, error) {
	return countAbove(ctx, b.db, dim, value)
}

func (b *StateBackend) AnswerStats(ctx context.Context, userID string, recent int) (domain.AnswerStats, error) {
	var stats domain.AnswerStats
	err := b.db.NewSelect().
		Model((*answerRow)(nil)).
		ColumnExpr("count(*)").
		ColumnExpr("count(*) FILTER (WHERE correct)").
		ColumnExpr("coalesce(avg(difficulty), 0)::float8").
		Where("user_id = ?", userID).
		Scan(ctx, &stats.TotalAnswers, &stats.CorrectAnswers, &stats.AverageDifficulty)
	if err != nil {
		return domain.AnswerStats{}, fmt.Errorf("aggregate answers: %w", err)
	}
	if stats.TotalAnswers == 0 || recent <= 0 {
		return stats, nil
	}

	err = b.db.NewSelect().
		Model((*answerRow)(nil)).
		Column("correct").
		Where("user_id = ?", userID).
		OrderExpr("answered_at DESC, id DESC").
		Limit(recent).
		Scan(ctx, &stats.Recent)
	if err != nil {
		return domain.AnswerStats{}, fmt.Errorf("recent answers: %w", err)
	}
	return stats, nil
}

func loadState(ctx context.Context, db bun.IDB, userID string, forUpdate bool) (domain.UserProgressionState, error) {
	var row progressionRow
	q := db.NewSelect().Model(&row).Where("user_id = ?", userID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserProgressionState{}, domain.ErrStateNotFound
		}
		return domain.UserProgressionState{}, fmt.Errorf("select state: %w", err)
	}
	return row.state(), nil
}

func countAbove(ctx context.Context, db bun.IDB, dim domain.Dimension, value int64) (int64, error) {
	n, err := db.NewSelect().
		Model((*leaderboardRow)(nil)).
		Where("dimension = ?", string(dim)).
		Where("value > ?", value).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count above: %w", err)
	}
	return int64(n), nil
}

type stateTx struct {
	tx    bun.Tx
	state domain.UserProgressionState
}

func (t *stateTx) State() domain.UserProgressionState { return t.state }

func (t *stateTx) SaveState(ctx context.Context, st domain.UserProgressionState) error {
	row := toProgressionRow(st)
	_, err := t.tx.NewUpdate().Model(&row).WherePK().Exec(ctx)
	return err
}

func (t *stateTx) AppendAnswer(ctx context.Context, entry domain.AnswerLogEntry) error {
	row := answerRow{
		ID:              entry.ID,
		UserID:          entry.UserID,
		QuestionID:      entry.QuestionID,
		Difficulty:      entry.Difficulty,
		Correct:         entry.Correct,
		ScoreDelta:      entry.ScoreDelta,
		StreakAtAnswer:  entry.StreakAtAnswer,
		ConfidenceAfter: entry.ConfidenceAfter,
		AnsweredAt:      entry.AnsweredAt,
	}
	_, err := t.tx.NewInsert().Model(&row).Exec(ctx)
	return err
}

// UpsertLeaderboard keeps the stored updated_at while the value is unchanged so that
// earlier achievers stay ahead on ties.
func (t *stateTx) UpsertLeaderboard(ctx context.Context, dim domain.Dimension, entry domain.LeaderboardEntry) error {
	row := leaderboardRow{
		Dimension: string(dim),
		UserID:    entry.UserID,
		Value:     entry.Value,
		UpdatedAt: entry.UpdatedAt,
	}
	_, err := t.tx.NewInsert().
		Model(&row).
		On("CONFLICT (dimension, user_id) DO UPDATE").
		Set("updated_at = CASE WHEN le.value = EXCLUDED.value THEN le.updated_at ELSE EXCLUDED.updated_at END").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}

func (t *stateTx) CountAbove(ctx context.Context, dim domain.Dimension, value int64) (int64, error) {
	return countAbove(ctx, t.tx, dim, value)
}
