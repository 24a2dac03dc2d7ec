package domain

import "time"

// Dimension names one of the two independently ranked leaderboard metrics.
type Dimension string

const (
	DimensionScore  Dimension = "score"
	DimensionStreak Dimension = "streak"
)

// Dimensions lists every leaderboard dimension in a stable order.
var Dimensions = []Dimension{DimensionScore, DimensionStreak}

// ParseDimension maps a wire value onto a Dimension.
func ParseDimension(raw string) (Dimension, bool) {
	switch Dimension(raw) {
	case DimensionScore:
		return DimensionScore, true
	case DimensionStreak:
		return DimensionStreak, true
	}
	return "", false
}

// UserProgressionState is the durable, versioned progression record of one user.
type UserProgressionState struct {
	UserID            string     `json:"userId"`
	CurrentDifficulty int        `json:"currentDifficulty"`
	Streak            int        `json:"streak"`
	MaxStreak         int        `json:"maxStreak"`
	TotalScore        int64      `json:"totalScore"`
	Confidence        int        `json:"confidence"`
	StateVersion      int64      `json:"stateVersion"`
	LastAnswerAt      *time.Time `json:"lastAnswerAt,omitempty"`
	LastDecayAt       *time.Time `json:"lastDecayAt,omitempty"`
	LastQuestionID    string     `json:"lastQuestionId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// NewUserProgressionState returns the onboarding defaults for userID.
func NewUserProgressionState(userID string, now time.Time) UserProgressionState {
	return UserProgressionState{
		UserID:            userID,
		CurrentDifficulty: 1,
		StateVersion:      1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// AnswerLogEntry is the immutable audit record of one answer.
type AnswerLogEntry struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	QuestionID      string    `json:"questionId"`
	Difficulty      int       `json:"difficulty"` // difficulty of the question, not of the user
	Correct         bool      `json:"correct"`
	ScoreDelta      int       `json:"scoreDelta"`
	StreakAtAnswer  int       `json:"streakAtAnswer"`
	ConfidenceAfter int       `json:"confidenceAfter"`
	AnsweredAt      time.Time `json:"answeredAt"`
}

// LeaderboardEntry is one durable ranking row for a dimension.
type LeaderboardEntry struct {
	UserID    string    `json:"userId"`
	Value     int64     `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RankedEntry is a leaderboard row with its derived rank.
type RankedEntry struct {
	UserID string `json:"userId"`
	Value  int64  `json:"value"`
	Rank   int64  `json:"rank"`
}

// RankInfo holds a user's rank per dimension; nil means no durable entry yet.
type RankInfo struct {
	ByScore  *int64 `json:"rankByScore"`
	ByStreak *int64 `json:"rankByStreak"`
}

// SubmitAnswerRequest is the input of one answer submission.
type SubmitAnswerRequest struct {
	UserID               string `validate:"required,max=64"`
	QuestionID           string `validate:"required,max=64"`
	AnswerText           string `validate:"required,max=1024"`
	ExpectedStateVersion *int64 `validate:"required,gte=1"`
	IdempotencyToken     string `validate:"omitempty,max=128"`
}

// AnswerResult is the response of a committed submission. It is stored verbatim for replays.
type AnswerResult struct {
	Correct               bool      `json:"correct"`
	NewDifficulty         int       `json:"newDifficulty"`
	NewConfidence         int       `json:"newConfidence"`
	NewStreak             int       `json:"newStreak"`
	ScoreDelta            int       `json:"scoreDelta"`
	TotalScore            int64     `json:"totalScore"`
	NewStateVersion       int64     `json:"newStateVersion"`
	LeaderboardRankScore  int64     `json:"leaderboardRankScore"`
	LeaderboardRankStreak int64     `json:"leaderboardRankStreak"`
	MaxStreak             int       `json:"maxStreak"`
	AnsweredAt            time.Time `json:"answeredAt"`
}

// Question is a question-bank item. The plaintext answer is never held, only its digest.
type Question struct {
	ID                string   `json:"id" yaml:"id"`
	Difficulty        int      `json:"difficulty" yaml:"difficulty"`
	Prompt            string   `json:"prompt" yaml:"prompt"`
	Choices           []string `json:"choices,omitempty" yaml:"choices"`
	CorrectAnswerHash string   `json:"-" yaml:"correctAnswerHash"`
}

// ServedQuestion is what a client receives when asking for its next question.
type ServedQuestion struct {
	QuestionID       string   `json:"questionId"`
	Difficulty       int      `json:"difficulty"`
	Prompt           string   `json:"prompt"`
	Choices          []string `json:"choices,omitempty"`
	TargetDifficulty int      `json:"targetDifficulty"`
	StateVersion     int64    `json:"stateVersion"`
}

// AnswerStats aggregates a user's answer log.
type AnswerStats struct {
	TotalAnswers      int64
	CorrectAnswers    int64
	AverageDifficulty float64
	Recent            []bool // newest first
}

// UserMetrics is the derived per-user metrics view.
type UserMetrics struct {
	UserID            string  `json:"userId"`
	TotalAnswers      int64   `json:"totalAnswers"`
	CorrectAnswers    int64   `json:"correctAnswers"`
	Accuracy          float64 `json:"accuracy"`
	RecentAccuracy    float64 `json:"recentAccuracy"`
	AverageDifficulty float64 `json:"averageDifficulty"`
	CurrentDifficulty int     `json:"currentDifficulty"`
	Confidence        int     `json:"confidence"`
	Streak            int     `json:"streak"`
	MaxStreak         int     `json:"maxStreak"`
	TotalScore        int64   `json:"totalScore"`
}

// LeaderboardUpdate is published after each committed answer.
type LeaderboardUpdate struct {
	UserID     string    `json:"userId"`
	TotalScore int64     `json:"totalScore"`
	MaxStreak  int       `json:"maxStreak"`
	RankScore  int64     `json:"rankScore"`
	RankStreak int64     `json:"rankStreak"`
	At         time.Time `json:"at"`
}
