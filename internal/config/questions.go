package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"adaptive-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

type questionFile struct {
	Questions []domain.Question `yaml:"questions"`
}

// LoadQuestions reads a YAML question bank. Answers are stored as sha256 hex digests.
func LoadQuestions(path string) ([]domain.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file questionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}

	seen := make(map[string]bool, len(file.Questions))
	for i, q := range file.Questions {
		switch {
		case q.ID == "":
			return nil, fmt.Errorf("question %d: missing id", i)
		case seen[q.ID]:
			return nil, fmt.Errorf("question %s: duplicate id", q.ID)
		case q.Difficulty < 1 || q.Difficulty > 10:
			return nil, fmt.Errorf("question %s: difficulty %d out of range", q.ID, q.Difficulty)
		case !isDigest(q.CorrectAnswerHash):
			return nil, fmt.Errorf("question %s: correctAnswerHash is not a sha256 hex digest", q.ID)
		}
		seen[q.ID] = true
	}
	return file.Questions, nil
}

func isDigest(s string) bool {
	b, err := hex.DecodeString(s)
	return err == nil && len(b) == 32
}
