package progression

import (
	"time"

	"adaptive-quiz-service/internal/domain"
)

// Outcome is what one answer did to a progression state.
type Outcome struct {
	Correct    bool
	ScoreDelta int
}

// ApplyAnswer advances st by one answer to q. It does not touch StateVersion;
// the store bumps it when the mutation commits.
func ApplyAnswer(st *domain.UserProgressionState, q domain.Question, correct bool, now time.Time) Outcome {
	if correct {
		st.Streak++
		if st.Streak > st.MaxStreak {
			st.MaxStreak = st.Streak
		}
	} else {
		st.Streak = 0
	}

	delta := Score(q.Difficulty, st.Streak, correct)
	st.TotalScore = ApplyScore(st.TotalScore, delta)
	st.CurrentDifficulty, st.Confidence = Step(st.CurrentDifficulty, st.Confidence, st.Streak, correct)

	answeredAt := now
	st.LastAnswerAt = &answeredAt
	st.LastQuestionID = q.ID
	st.UpdatedAt = now
	return Outcome{Correct: correct, ScoreDelta: delta}
}
