package progression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreMatchesFormula(t *testing.T) {
	for d := MinDifficulty; d <= MaxDifficulty; d++ {
		for s := 0; s <= 15; s++ {
			want := int(math.Round(float64(d*10) * math.Min(1+0.1*float64(s), 2.0)))
			assert.Equal(t, want, Score(d, s, true), "difficulty=%d streak=%d", d, s)
			assert.Equal(t, -5, Score(d, s, false), "difficulty=%d streak=%d", d, s)
		}
	}
}

func TestScoreMultiplierCaps(t *testing.T) {
	assert.Equal(t, 200, Score(10, 10, true))
	assert.Equal(t, 200, Score(10, 50, true))
	assert.Equal(t, 33, Score(3, 1, true))
}

func TestApplyScoreNeverNegative(t *testing.T) {
	assert.Equal(t, int64(0), ApplyScore(0, WrongAnswerPenalty))
	assert.Equal(t, int64(0), ApplyScore(3, WrongAnswerPenalty))
	assert.Equal(t, int64(5), ApplyScore(10, WrongAnswerPenalty))
	assert.Equal(t, int64(42), ApplyScore(20, 22))
}
