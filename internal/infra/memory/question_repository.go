package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"adaptive-quiz-service/internal/app"
	"adaptive-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionRepository caches questions by id with TTL to avoid repeated bank hits.
// Selection by difficulty always goes to the underlying bank.
type QuestionRepository struct {
	bank  app.QuestionBank
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestion
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(bank app.QuestionBank, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		bank:  bank,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedQuestion),
	}
}

func (r *QuestionRepository) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	if q, ok := r.cached(questionID); ok {
		return q, nil
	}

	result, err, _ := r.sf.Do(questionID, func() (interface{}, error) {
		if q, ok := r.cached(questionID); ok {
			return q, nil
		}
		q, err := r.bank.GetQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}
		r.store(q)
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (r *QuestionRepository) FetchQuestion(ctx context.Context, targetDifficulty int, excludeID string) (domain.Question, error) {
	q, err := r.bank.FetchQuestion(ctx, targetDifficulty, excludeID)
	if err != nil {
		return domain.Question{}, err
	}
	r.store(q)
	return q, nil
}

func (r *QuestionRepository) cached(questionID string) (domain.Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[questionID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Question{}, false
	}
	return entry.question, true
}

func (r *QuestionRepository) store(q domain.Question) {
	ttl := r.ttlWithJitter()
	r.mu.Lock()
	r.cache[q.ID] = cachedQuestion{question: q, expiresAt: r.clock().Add(ttl)}
	r.mu.Unlock()
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionBank is a question bank backed by an in-memory slice (useful for tests/demos).
type StaticQuestionBank struct {
	byID map[string]domain.Question
	all  []domain.Question
	mu   sync.Mutex
	rnd  *rand.Rand
}

func NewStaticQuestionBank(questions []domain.Question) *StaticQuestionBank {
	b := &StaticQuestionBank{
		byID: make(map[string]domain.Question, len(questions)),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, q := range questions {
		b.byID[q.ID] = q
		b.all = append(b.all, q)
	}
	return b
}

func (b *StaticQuestionBank) GetQuestion(_ context.Context, questionID string) (domain.Question, error) {
	if q, ok := b.byID[questionID]; ok {
		return q, nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

// FetchQuestion picks randomly among the questions closest to targetDifficulty.
func (b *StaticQuestionBank) FetchQuestion(_ context.Context, targetDifficulty int, excludeID string) (domain.Question, error) {
	candidates := make([]domain.Question, 0, len(b.all))
	for _, q := range b.all {
		if q.ID != excludeID {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		// Only the excluded question exists; a repeat beats no question.
		if q, ok := b.byID[excludeID]; ok {
			return q, nil
		}
		return domain.Question{}, domain.ErrQuestionNotFound
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return distance(candidates[i].Difficulty, targetDifficulty) < distance(candidates[j].Difficulty, targetDifficulty)
	})
	nearest := distance(candidates[0].Difficulty, targetDifficulty)
	n := 1
	for n < len(candidates) && distance(candidates[n].Difficulty, targetDifficulty) == nearest {
		n++
	}

	b.mu.Lock()
	pick := candidates[b.rnd.Intn(n)]
	b.mu.Unlock()
	return pick, nil
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
