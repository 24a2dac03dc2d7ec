package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"adaptive-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/uptrace/bun"
)

const questionColumns = `id, difficulty, prompt, choices, correct_answer_hash`

// QuestionBank reads questions from Postgres.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

func (b *QuestionBank) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	row := b.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id=$1`, questionID)
	q, err := scanQuestion(row)
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	return q, nil
}

// FetchQuestion picks randomly among the questions nearest to targetDifficulty,
// falling back to excludeID only when it is the sole question.
func (b *QuestionBank) FetchQuestion(ctx context.Context, targetDifficulty int, excludeID string) (domain.Question, error) {
	row := b.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions
		WHERE id <> $2
		ORDER BY abs(difficulty - $1), random()
		LIMIT 1`, targetDifficulty, excludeID)
	q, err := scanQuestion(row)
	if errors.Is(err, domain.ErrQuestionNotFound) && excludeID != "" {
		return b.GetQuestion(ctx, excludeID)
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("fetch question: %w", err)
	}
	return q, nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q   domain.Question
		raw []byte
	)
	if err := row.Scan(&q.ID, &q.Difficulty, &q.Prompt, &raw, &q.CorrectAnswerHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Question{}, domain.ErrQuestionNotFound
		}
		return domain.Question{}, err
	}
	if err := json.Unmarshal(raw, &q.Choices); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal choices: %w", err)
	}
	return q, nil
}

// SaveQuestions upserts questions by id.
func SaveQuestions(ctx context.Context, db bun.IDB, questions []domain.Question) error {
	if len(questions) == 0 {
		return nil
	}
	rows := make([]questionRow, len(questions))
	for i, q := range questions {
		rows[i] = questionRow{
			ID:                q.ID,
			Difficulty:        q.Difficulty,
			Prompt:            q.Prompt,
			Choices:           q.Choices,
			CorrectAnswerHash: q.CorrectAnswerHash,
		}
		if rows[i].Choices == nil {
			rows[i].Choices = []string{}
		}
	}
	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("difficulty = EXCLUDED.difficulty").
		Set("prompt = EXCLUDED.prompt").
		Set("choices = EXCLUDED.choices").
		Set("correct_answer_hash = EXCLUDED.correct_answer_hash").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert questions: %w", err)
	}
	return nil
}
