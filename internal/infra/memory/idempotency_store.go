package memory

import (
	"context"
	"encoding/json"
	"time"

	"adaptive-quiz-service/internal/domain"
)

// IdempotencyStore keeps committed answer results in an Arena.
type IdempotencyStore struct {
	arena *Arena
	ttl   time.Duration
}

func NewIdempotencyStore(arena *Arena, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{arena: arena, ttl: ttl}
}

func (s *IdempotencyStore) LoadResult(_ context.Context, userID, token string) (domain.AnswerResult, bool, error) {
	raw, ok := s.arena.Get(idempotencyKey(userID, token))
	if !ok {
		return domain.AnswerResult{}, false, nil
	}
	var result domain.AnswerResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.AnswerResult{}, false, err
	}
	return result, true, nil
}

func (s *IdempotencyStore) SaveResult(_ context.Context, userID, token string, result domain.AnswerResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	s.arena.SetNX(idempotencyKey(userID, token), raw, s.ttl)
	return nil
}

func idempotencyKey(userID, token string) string {
	return "idempotency:" + userID + ":" + token
}
