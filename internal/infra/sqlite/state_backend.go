package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"adaptive-quiz-service/internal/app"
	"adaptive-quiz-service/internal/domain"
	"github.com/jmoiron/sqlx"
)

type stateRow struct {
	UserID            string        `db:"user_id"`
	CurrentDifficulty int           `db:"current_difficulty"`
	Streak            int           `db:"streak"`
	MaxStreak         int           `db:"max_streak"`
	TotalScore        int64         `db:"total_score"`
	Confidence        int           `db:"confidence"`
	StateVersion      int64         `db:"state_version"`
	LastAnswerAt      sql.NullInt64 `db:"last_answer_at"`
	LastDecayAt       sql.NullInt64 `db:"last_decay_at"`
	LastQuestionID    string        `db:"last_question_id"`
	CreatedAt         int64         `db:"created_at"`
	UpdatedAt         int64         `db:"updated_at"`
}

func toStateRow(st domain.UserProgressionState) stateRow {
	return stateRow{
		UserID:            st.UserID,
		CurrentDifficulty: st.CurrentDifficulty,
		Streak:            st.Streak,
		MaxStreak:         st.MaxStreak,
		TotalScore:        st.TotalScore,
		Confidence:        st.Confidence,
		StateVersion:      st.StateVersion,
		LastAnswerAt:      toNullNanos(st.LastAnswerAt),
		LastDecayAt:       toNullNanos(st.LastDecayAt),
		LastQuestionID:    st.LastQuestionID,
		CreatedAt:         toNanos(st.CreatedAt),
		UpdatedAt:         toNanos(st.UpdatedAt),
	}
}

func (r stateRow) state() domain.UserProgressionState {
	return domain.UserProgressionState{
		UserID:            r.UserID,
		CurrentDifficulty: r.CurrentDifficulty,
		Streak:            r.Streak,
		MaxStreak:         r.MaxStreak,
		TotalScore:        r.TotalScore,
		Confidence:        r.Confidence,
		StateVersion:      r.StateVersion,
		LastAnswerAt:      fromNullNanos(r.LastAnswerAt),
		LastDecayAt:       fromNullNanos(r.LastDecayAt),
		LastQuestionID:    r.LastQuestionID,
		CreatedAt:         fromNanos(r.CreatedAt),
		UpdatedAt:         fromNanos(r.UpdatedAt),
	}
}

type leaderboardRow struct {
	UserID    string `db:"user_id"`
	Value     int64  `db:"value"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r leaderboardRow) entry() domain.LeaderboardEntry {
	return domain.LeaderboardEntry{UserID: r.UserID, Value: r.Value, UpdatedAt: fromNanos(r.UpdatedAt)}
}

const (
	selectState = `SELECT user_id, current_difficulty, streak, max_streak, total_score, confidence,
		state_version, last_answer_at, last_decay_at, last_question_id, created_at, updated_at
		FROM progression_states WHERE user_id = ?`

	insertState = `INSERT INTO progression_states (user_id, current_difficulty, streak, max_streak,
		total_score, confidence, state_version, last_answer_at, last_decay_at, last_question_id,
		created_at, updated_at)
		VALUES (:user_id, :current_difficulty, :streak, :max_streak, :total_score, :confidence,
		:state_version, :last_answer_at, :last_decay_at, :last_question_id, :created_at, :updated_at)
		ON CONFLICT (user_id) DO NOTHING`

	updateState = `UPDATE progression_states SET current_difficulty = :current_difficulty,
		streak = :streak, max_streak = :max_streak, total_score = :total_score,
		confidence = :confidence, state_version = :state_version, last_answer_at = :last_answer_at,
		last_decay_at = :last_decay_at, last_question_id = :last_question_id, updated_at = :updated_at
		WHERE user_id = :user_id`

	insertAnswer = `INSERT INTO answer_log (id, user_id, question_id, difficulty, correct,
		score_delta, streak_at_answer, confidence_after, answered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	upsertLeaderboard = `INSERT INTO leaderboard_entries (dimension, user_id, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (dimension, user_id) DO UPDATE SET
			updated_at = CASE WHEN leaderboard_entries.value = excluded.value
				THEN leaderboard_entries.updated_at ELSE excluded.updated_at END,
			value = excluded.value`

	countAboveQuery = `SELECT COUNT(*) FROM leaderboard_entries WHERE dimension = ? AND value > ?`
)

// StateBackend is the single-node durable backend on SQLite via sqlx.
type StateBackend struct {
	db *sqlx.DB
}

func NewStateBackend(db *sqlx.DB) *StateBackend {
	return &StateBackend{db: db}
}

func (b *StateBackend) Create(ctx context.Context, st domain.UserProgressionState) error {
	res, err := b.db.NamedExecContext(ctx, insertState, toStateRow(st))
	if err != nil {
		return fmt.Errorf("insert state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserExists
	}
	return nil
}

func (b *StateBackend) Load(ctx context.Context, userID string) (domain.UserProgressionState, error) {
	return loadState(ctx, b.db, userID)
}

func (b *StateBackend) InTx(ctx context.Context, userID string, fn func(ctx context.Context, tx app.Tx) error) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	st, err := loadState(ctx, tx, userID)
	if err != nil {
		return err
	}
	if err := fn(ctx, &stateTx{tx: tx, state: st}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *StateBackend) Top(ctx context.Context, dim domain.Dimension, limit int) ([]domain.LeaderboardEntry, error) {
	var rows []leaderboardRow
	err := b.db.SelectContext(ctx, &rows, `SELECT user_id, value, updated_at FROM leaderboard_entries
		WHERE dimension = ?
		ORDER BY value DESC, updated_at ASC, user_id ASC
		LIMIT ?`, string(dim), limit)
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
	err := b.db.GetContext(ctx, &row, `SELECT user_id, value, updated_at FROM leaderboard_entries
		WHERE dimension = ? AND user_id = ?`, string(dim), userID)
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
	err := b.db.QueryRowxContext(ctx, `SELECT COUNT(*), COALESCE(SUM(correct), 0), COALESCE(AVG(difficulty), 0)
		FROM answer_log WHERE user_id = ?`, userID).
		Scan(&stats.TotalAnswers, &stats.CorrectAnswers, &stats.AverageDifficulty)
	if err != nil {
		return domain.AnswerStats{}, fmt.Errorf("aggregate answers: %w", err)
	}
	if stats.TotalAnswers == 0 || recent <= 0 {
		return stats, nil
	}
	err = b.db.SelectContext(ctx, &stats.Recent, `SELECT correct FROM answer_log
		WHERE user_id = ?
		ORDER BY answered_at DESC, rowid DESC
		LIMIT ?`, userID, recent)
	if err != nil {
		return domain.AnswerStats{}, fmt.Errorf("recent answers: %w", err)
	}
	return stats, nil
}

func loadState(ctx context.Context, q sqlx.QueryerContext, userID string) (domain.UserProgressionState, error) {
	var row stateRow
	if err := sqlx.GetContext(ctx, q, &row, selectState, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserProgressionState{}, domain.ErrStateNotFound
		}
		return domain.UserProgressionState{}, fmt.Errorf("select state: %w", err)
	}
	return row.state(), nil
}

func countAbove(ctx context.Context, q sqlx.QueryerContext, dim domain.Dimension, value int64) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, q, &n, countAboveQuery, string(dim), value); err != nil {
		return 0, fmt.Errorf("count above: %w", err)
	}
	return n, nil
}

type stateTx struct {
	tx    *sqlx.Tx
	state domain.UserProgressionState
}

func (t *stateTx) State() domain.UserProgressionState { return t.state }

func (t *stateTx) SaveState(ctx context.Context, st domain.UserProgressionState) error {
	_, err := t.tx.NamedExecContext(ctx, updateState, toStateRow(st))
	return err
}

func (t *stateTx) AppendAnswer(ctx context.Context, e domain.AnswerLogEntry) error {
	_, err := t.tx.ExecContext(ctx, insertAnswer, e.ID, e.UserID, e.QuestionID, e.Difficulty, e.Correct,
		e.ScoreDelta, e.StreakAtAnswer, e.ConfidenceAfter, toNanos(e.AnsweredAt))
	return err
}

func (t *stateTx) UpsertLeaderboard(ctx context.Context, dim domain.Dimension, entry domain.LeaderboardEntry) error {
	_, err := t.tx.ExecContext(ctx, upsertLeaderboard, string(dim), entry.UserID, entry.Value, toNanos(entry.UpdatedAt))
	return err
}

func (t *stateTx) CountAbove(ctx context.Context, dim domain.Dimension, value int64) (int64, error) {
	return countAbove(ctx, t.tx, dim, value)
}
