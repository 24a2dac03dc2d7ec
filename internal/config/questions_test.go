package config

import (
	"strings"
	"testing"
)

const digest = "4b227777d4dd1fc61c6f884f48641d02b4d121d3fd328cb08b5531fcacdabf8a"

func TestLoadQuestions(t *testing.T) {
	path := writeConfig(t, `
questions:
  - id: q1
    difficulty: 1
    prompt: "What is 2 + 2?"
    choices: ["3", "4"]
    correctAnswerHash: `+digest+`
`)
	qs, err := LoadQuestions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(qs) != 1 || qs[0].ID != "q1" || qs[0].CorrectAnswerHash != digest || len(qs[0].Choices) != 2 {
		t.Fatalf("unexpected questions: %+v", qs)
	}
}

func TestLoadQuestionsRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"missing id":   "questions:\n  - difficulty: 1\n    correctAnswerHash: " + digest + "\n",
		"difficulty":   "questions:\n  - id: q1\n    difficulty: 11\n    correctAnswerHash: " + digest + "\n",
		"plain answer": "questions:\n  - id: q1\n    difficulty: 1\n    correctAnswerHash: four\n",
		"duplicate":    "questions:\n" + strings.Repeat("  - id: q1\n    difficulty: 1\n    correctAnswerHash: "+digest+"\n", 2),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadQuestions(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestShippedQuestionBankLoads(t *testing.T) {
	qs, err := LoadQuestions("../../config/questions.yaml")
	if err != nil {
		t.Fatalf("load shipped questions: %v", err)
	}
	if len(qs) == 0 {
		t.Fatalf("expected questions")
	}
}
