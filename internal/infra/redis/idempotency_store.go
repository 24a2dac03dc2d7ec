package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"adaptive-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore keeps committed answer results keyed by idempotency:{userID}:{token}.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func (s *IdempotencyStore) LoadResult(ctx context.Context, userID, token string) (domain.AnswerResult, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID, token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AnswerResult{}, false, nil
	}
	if err != nil {
		return domain.AnswerResult{}, false, err
	}
	var result domain.AnswerResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.AnswerResult{}, false, err
	}
	return result, true, nil
}

// SaveResult uses SET NX so the first committed response stays the replayed one.
func (s *IdempotencyStore) SaveResult(ctx context.Context, userID, token string, result domain.AnswerResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.client.SetNX(ctx, s.key(userID, token), raw, s.ttl).Err()
}

func (s *IdempotencyStore) key(userID, token string) string {
	return "idempotency:" + userID + ":" + token
}
