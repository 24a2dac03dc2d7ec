package progression

import "math"

const (
	// WrongAnswerPenalty is applied to every incorrect answer regardless of difficulty or streak.
	WrongAnswerPenalty = -5

	pointsPerDifficulty = 10
	streakBonusStep     = 0.1
	maxStreakMultiplier = 2.0
)

// Score returns the score delta of one answer. For a correct answer streak is the
// streak after counting this answer.
func Score(difficulty, streak int, correct bool) int {
	if !correct {
		return WrongAnswerPenalty
	}
	base := float64(difficulty * pointsPerDifficulty)
	multiplier := math.Min(1+float64(streak)*streakBonusStep, maxStreakMultiplier)
	return int(math.Round(base * multiplier))
}

// ApplyScore adds delta to total, never going below zero.
func ApplyScore(total int64, delta int) int64 {
	next := total + int64(delta)
	if next < 0 {
		return 0
	}
	return next
}
