package postgres

import (
	"database/sql"
	"time"

	"adaptive-quiz-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// OpenDB opens a bun handle over the pgdriver connector.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

type progressionRow struct {
	bun.BaseModel `bun:"table:progression_states,alias:ps"`

	UserID            string     `bun:"user_id,pk"`
	CurrentDifficulty int        `bun:"current_difficulty,notnull"`
	Streak            int        `bun:"streak,notnull"`
	MaxStreak         int        `bun:"max_streak,notnull"`
	TotalScore        int64      `bun:"total_score,notnull"`
	Confidence        int        `bun:"confidence,notnull"`
	StateVersion      int64      `bun:"state_version,notnull"`
	LastAnswerAt      *time.Time `bun:"last_answer_at"`
	LastDecayAt       *time.Time `bun:"last_decay_at"`
	LastQuestionID    string     `bun:"last_question_id,notnull"`
	CreatedAt         time.Time  `bun:"created_at,notnull"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull"`
}

func toProgressionRow(st domain.UserProgressionState) progressionRow {
	return progressionRow{
		UserID:            st.UserID,
		CurrentDifficulty: st.CurrentDifficulty,
		Streak:            st.Streak,
		MaxStreak:         st.MaxStreak,
		TotalScore:        st.TotalScore,
		Confidence:        st.Confidence,
		StateVersion:      st.StateVersion,
		LastAnswerAt:      st.LastAnswerAt,
		LastDecayAt:       st.LastDecayAt,
		LastQuestionID:    st.LastQuestionID,
		CreatedAt:         st.CreatedAt,
		UpdatedAt:         st.UpdatedAt,
	}
}

func (r progressionRow) state() domain.UserProgressionState {
	return domain.UserProgressionState{
		UserID:            r.UserID,
		CurrentDifficulty: r.CurrentDifficulty,
		Streak:            r.Streak,
		MaxStreak:         r.MaxStreak,
		TotalScore:        r.TotalScore,
		Confidence:        r.Confidence,
		StateVersion:      r.StateVersion,
		LastAnswerAt:      utcPtr(r.LastAnswerAt),
		LastDecayAt:       utcPtr(r.LastDecayAt),
		LastQuestionID:    r.LastQuestionID,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:answer_log,alias:al"`

	ID              string    `bun:"id,pk"`
	UserID          string    `bun:"user_id,notnull"`
	QuestionID      string    `bun:"question_id,notnull"`
	Difficulty      int       `bun:"difficulty,notnull"`
	Correct         bool      `bun:"correct,notnull"`
	ScoreDelta      int       `bun:"score_delta,notnull"`
	StreakAtAnswer  int       `bun:"streak_at_answer,notnull"`
	ConfidenceAfter int       `bun:"confidence_after,notnull"`
	AnsweredAt      time.Time `bun:"answered_at,notnull"`
}

type leaderboardRow struct {
	bun.BaseModel `bun:"table:leaderboard_entries,alias:le"`

	Dimension string    `bun:"dimension,pk"`
	UserID    string    `bun:"user_id,pk"`
	Value     int64     `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (r leaderboardRow) entry() domain.LeaderboardEntry {
	return domain.LeaderboardEntry{UserID: r.UserID, Value: r.Value, UpdatedAt: r.UpdatedAt.UTC()}
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID                string   `bun:"id,pk"`
	Difficulty        int      `bun:"difficulty,notnull"`
	Prompt            string   `bun:"prompt,notnull"`
	Choices           []string `bun:"choices,type:jsonb,notnull"`
	CorrectAnswerHash string   `bun:"correct_answer_hash,notnull"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
