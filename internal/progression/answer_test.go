package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"adaptive-quiz-service/internal/domain"
)

func TestAnswerMatchesNormalizes(t *testing.T) {
	hash := HashAnswer("Paris")
	assert.True(t, AnswerMatches("paris", hash))
	assert.True(t, AnswerMatches("  PARIS ", hash))
	assert.False(t, AnswerMatches("London", hash))
	assert.NotContains(t, hash, "paris")
}

func TestApplyAnswerSequence(t *testing.T) {
	now := time.Now()
	st := domain.NewUserProgressionState("u1", now)
	q := domain.Question{ID: "q1", Difficulty: 2}

	out := ApplyAnswer(&st, q, true, now)
	assert.Equal(t, 22, out.ScoreDelta)
	out = ApplyAnswer(&st, q, true, now)
	assert.Equal(t, 24, out.ScoreDelta)
	assert.Equal(t, 2, st.CurrentDifficulty)
	assert.Equal(t, 0, st.Confidence)
	assert.Equal(t, 2, st.MaxStreak)
	assert.Equal(t, int64(46), st.TotalScore)

	out = ApplyAnswer(&st, q, false, now)
	assert.Equal(t, WrongAnswerPenalty, out.ScoreDelta)
	assert.Equal(t, 0, st.Streak)
	assert.Equal(t, 2, st.MaxStreak)
	assert.Equal(t, int64(41), st.TotalScore)
	assert.Equal(t, "q1", st.LastQuestionID)
	assert.Equal(t, int64(1), st.StateVersion)
}
