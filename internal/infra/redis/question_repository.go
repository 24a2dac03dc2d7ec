package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"adaptive-quiz-service/internal/app"
	"adaptive-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionRepository caches questions in Redis (hash per question) and falls back to a bank on miss.
// Questions are stored as: HSET question:{id} difficulty {n} prompt {text} choices {json} hash {digest}
type QuestionRepository struct {
	client *redis.Client
	bank   app.QuestionBank
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewQuestionRepository(client *redis.Client, bank app.QuestionBank, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		bank:   bank,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	if q, ok := r.cached(ctx, questionID); ok {
		return q, nil
	}

	result, err, _ := r.sf.Do(questionID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if q, ok := r.cached(ctx, questionID); ok {
			return q, nil
		}
		q, err := r.bank.GetQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}
		r.store(ctx, q)
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

// FetchQuestion selects through the bank and warms the cache with the pick,
// which the following submission will look up by id.
func (r *QuestionRepository) FetchQuestion(ctx context.Context, targetDifficulty int, excludeID string) (domain.Question, error) {
	q, err := r.bank.FetchQuestion(ctx, targetDifficulty, excludeID)
	if err != nil {
		return domain.Question{}, err
	}
	r.store(ctx, q)
	return q, nil
}

func (r *QuestionRepository) cached(ctx context.Context, questionID string) (domain.Question, bool) {
	fields, err := r.client.HGetAll(ctx, r.key(questionID)).Result()
	if err != nil || len(fields) == 0 {
		return domain.Question{}, false
	}
	return buildQuestionFromCache(questionID, fields)
}

func (r *QuestionRepository) store(ctx context.Context, q domain.Question) {
	choices, err := json.Marshal(q.Choices)
	if err != nil {
		return
	}
	key := r.key(q.ID)
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key,
		"difficulty", q.Difficulty,
		"prompt", q.Prompt,
		"choices", string(choices),
		"hash", q.CorrectAnswerHash,
	)
	if ttl := r.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (r *QuestionRepository) key(questionID string) string {
	return "question:" + questionID
}

func buildQuestionFromCache(questionID string, fields map[string]string) (domain.Question, bool) {
	difficulty, err := strconv.Atoi(fields["difficulty"])
	if err != nil || fields["hash"] == "" {
		return domain.Question{}, false
	}
	q := domain.Question{
		ID:                questionID,
		Difficulty:        difficulty,
		Prompt:            fields["prompt"],
		CorrectAnswerHash: fields["hash"],
	}
	if raw := fields["choices"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &q.Choices)
	}
	return q, true
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
