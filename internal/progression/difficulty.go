package progression

const (
	MinDifficulty = 1
	MaxDifficulty = 10
	MinConfidence = -2
	MaxConfidence = 2

	// promotionStreak is the live streak required, on top of full confidence, to step up.
	promotionStreak = 2
)

// Step advances the difficulty machine by one answer. streak is the post-answer streak.
//
// Promotion needs confidence at the top of its range and a streak of at least two;
// demotion only needs confidence at the bottom. Either transition resets confidence.
func Step(difficulty, confidence, streak int, correct bool) (int, int) {
	if correct {
		confidence++
	} else {
		confidence--
	}

	switch {
	case confidence >= MaxConfidence && streak >= promotionStreak:
		difficulty++
		confidence = 0
	case confidence <= MinConfidence:
		difficulty--
		confidence = 0
	}

	return clamp(difficulty, MinDifficulty, MaxDifficulty), clamp(confidence, MinConfidence, MaxConfidence)
}

// ClampDifficulty bounds d to the valid difficulty range.
func ClampDifficulty(d int) int {
	return clamp(d, MinDifficulty, MaxDifficulty)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
