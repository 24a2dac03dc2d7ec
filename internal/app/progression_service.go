package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"adaptive-quiz-service/internal/domain"
	"adaptive-quiz-service/internal/logging"
	"adaptive-quiz-service/internal/metrics"
	"adaptive-quiz-service/internal/progression"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// recentWindow is how many of the newest answers feed RecentAccuracy.
const recentWindow = 10

var (
	tracer   = otel.Tracer("adaptive-quiz-service/internal/app")
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// ProgressionService is the answer-submission consistency engine plus its read paths.
type ProgressionService struct {
	states      *StateStore
	backend     Backend
	questions   QuestionBank
	leaderboard *Leaderboard
	cache       ProjectionCache
	idempotency IdempotencyStore
	limiter     RateLimiter
	broadcaster *Broadcaster
	decay       progression.DecayPolicy
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a ProgressionService.
type Option func(*ProgressionService)

// WithCache enables the projection cache. Without it every read goes to the backend.
func WithCache(cache ProjectionCache) Option {
	return func(s *ProgressionService) { s.cache = cache }
}

// WithIdempotency enables replay protection for tokened submissions.
func WithIdempotency(store IdempotencyStore) Option {
	return func(s *ProgressionService) { s.idempotency = store }
}

// WithRateLimiter enables per-user submission throttling.
func WithRateLimiter(limiter RateLimiter) Option {
	return func(s *ProgressionService) { s.limiter = limiter }
}

// WithBroadcaster publishes leaderboard updates after each commit.
func WithBroadcaster(b *Broadcaster) Option {
	return func(s *ProgressionService) { s.broadcaster = b }
}

// WithDecayAfter overrides the inactivity threshold.
func WithDecayAfter(after time.Duration) Option {
	return func(s *ProgressionService) { s.decay = progression.NewDecayPolicy(after) }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *ProgressionService) { s.logger = logger }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ProgressionService) { s.now = now }
}

func NewProgressionService(backend Backend, questions QuestionBank, opts ...Option) *ProgressionService {
	s := &ProgressionService{
		backend:   backend,
		questions: questions,
		cache:     DisabledCache{},
		decay:     progression.NewDecayPolicy(0),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = DisabledCache{}
	}
	if s.broadcaster == nil {
		s.broadcaster = NewBroadcaster()
	}
	s.states = NewStateStore(backend, s.decay)
	s.leaderboard = NewLeaderboard(backend, s.cache, s.logger)
	return s
}

// Onboard creates the default progression state. Existing users get their current state.
func (s *ProgressionService) Onboard(ctx context.Context, userID string) (domain.UserProgressionState, error) {
	if err := validateUserID(userID); err != nil {
		return domain.UserProgressionState{}, err
	}
	st, err := s.states.Create(ctx, userID, s.now())
	if errors.Is(err, domain.ErrUserExists) {
		return s.GetUserState(ctx, userID)
	}
	if err != nil {
		return domain.UserProgressionState{}, err
	}
	s.putState(ctx, st)
	s.logger.Info("user onboarded", "user_id", userID)
	return st, nil
}

// GetUserState returns the user's state, persisting inactivity decay when it is due.
func (s *ProgressionService) GetUserState(ctx context.Context, userID string) (domain.UserProgressionState, error) {
	if err := validateUserID(userID); err != nil {
		return domain.UserProgressionState{}, err
	}
	now := s.now()

	cached, ok, err := s.cache.GetState(ctx, userID)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("state", "error").Inc()
		s.logger.Warn("state cache read failed", "user_id", userID, "error", err)
	case ok && !s.decay.Due(cached, now):
		metrics.CacheLookups.WithLabelValues("state", "hit").Inc()
		return cached, nil
	default:
		metrics.CacheLookups.WithLabelValues("state", "miss").Inc()
	}

	st, decayed, err := s.states.Refresh(ctx, userID, now)
	if err != nil {
		return domain.UserProgressionState{}, err
	}
	if decayed {
		s.onDecay(ctx, st)
	}
	s.putState(ctx, st)
	return st, nil
}

// NextQuestion picks a question at the user's difficulty, avoiding an immediate repeat,
// and records it as served.
func (s *ProgressionService) NextQuestion(ctx context.Context, userID string) (domain.ServedQuestion, error) {
	st, err := s.GetUserState(ctx, userID)
	if err != nil {
		return domain.ServedQuestion{}, err
	}
	q, err := s.questions.FetchQuestion(ctx, st.CurrentDifficulty, st.LastQuestionID)
	if err != nil {
		return domain.ServedQuestion{}, fmt.Errorf("fetch question: %w", err)
	}

	st, decayed, err := s.states.MarkServed(ctx, userID, q.ID, s.now())
	if err != nil {
		return domain.ServedQuestion{}, err
	}
	if decayed {
		s.onDecay(ctx, st)
	}
	s.putState(ctx, st)

	return domain.ServedQuestion{
		QuestionID:       q.ID,
		Difficulty:       q.Difficulty,
		Prompt:           q.Prompt,
		Choices:          q.Choices,
		TargetDifficulty: st.CurrentDifficulty,
		StateVersion:     st.StateVersion,
	}, nil
}

// SubmitAnswer scores one answer and commits every resulting change atomically.
func (s *ProgressionService) SubmitAnswer(ctx context.Context, req domain.SubmitAnswerRequest) (domain.AnswerResult, error) {
	ctx, span := tracer.Start(ctx, "ProgressionService.SubmitAnswer", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("question.id", req.QuestionID),
		attribute.Bool("idempotent", req.IdempotencyToken != ""),
	))
	defer span.End()

	result, outcome, err := s.submit(ctx, req)
	metrics.Submissions.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (s *ProgressionService) submit(ctx context.Context, req domain.SubmitAnswerRequest) (domain.AnswerResult, string, error) {
	if err := validateSubmission(req); err != nil {
		return domain.AnswerResult{}, "invalid", err
	}
	if !s.allow(ctx, req.UserID) {
		return domain.AnswerResult{}, "rate_limited", domain.ErrRateLimited
	}
	if req.IdempotencyToken != "" {
		if prior, ok := s.replay(ctx, req); ok {
			return prior, "replayed", nil
		}
	}

	q, err := s.questions.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, domain.ErrQuestionNotFound) {
			return domain.AnswerResult{}, "not_found", err
		}
		return domain.AnswerResult{}, "error", fmt.Errorf("get question: %w", err)
	}
	correct := progression.AnswerMatches(req.AnswerText, q.CorrectAnswerHash)
	now := s.now()

	start := time.Now()
	commit, err := s.states.Mutate(ctx, req.UserID, *req.ExpectedStateVersion, now, func(st *domain.UserProgressionState) domain.AnswerLogEntry {
		out := progression.ApplyAnswer(st, q, correct, now)
		return domain.AnswerLogEntry{
			ID:              uuid.NewString(),
			QuestionID:      q.ID,
			Difficulty:      q.Difficulty,
			Correct:         out.Correct,
			ScoreDelta:      out.ScoreDelta,
			StreakAtAnswer:  st.Streak,
			ConfidenceAfter: st.Confidence,
			AnsweredAt:      now,
		}
	})
	metrics.CommitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var conflict *domain.VersionConflictError
		if errors.As(err, &conflict) {
			if commit.Decayed {
				s.onDecay(ctx, commit.State)
			}
			s.putState(ctx, commit.State)
			return domain.AnswerResult{}, "conflict", err
		}
		if errors.Is(err, domain.ErrStateNotFound) {
			return domain.AnswerResult{}, "not_found", err
		}
		return domain.AnswerResult{}, "error", err
	}
	if commit.Decayed {
		metrics.DecayEvents.Inc()
	}

	result := domain.AnswerResult{
		Correct:               commit.Entry.Correct,
		NewDifficulty:         commit.State.CurrentDifficulty,
		NewConfidence:         commit.State.Confidence,
		NewStreak:             commit.State.Streak,
		ScoreDelta:            commit.Entry.ScoreDelta,
		TotalScore:            commit.State.TotalScore,
		NewStateVersion:       commit.State.StateVersion,
		LeaderboardRankScore:  commit.RankScore,
		LeaderboardRankStreak: commit.RankStreak,
		MaxStreak:             commit.State.MaxStreak,
		AnsweredAt:            now,
	}
	s.afterCommit(ctx, commit)

	if req.IdempotencyToken != "" && s.idempotency != nil {
		if err := s.idempotency.SaveResult(ctx, req.UserID, req.IdempotencyToken, result); err != nil {
			metrics.CacheErrors.WithLabelValues("save_result").Inc()
			s.logger.Warn("idempotency save failed", "user_id", req.UserID, "error", err)
		}
	}

	logging.WithTrace(ctx, s.logger).Debug("answer committed",
		"user_id", req.UserID,
		"question_id", q.ID,
		"correct", correct,
		"score_delta", result.ScoreDelta,
		"state_version", result.NewStateVersion,
	)
	if correct {
		return result, "correct", nil
	}
	return result, "incorrect", nil
}

// GetTop returns the top limit entries of dim.
func (s *ProgressionService) GetTop(ctx context.Context, dim domain.Dimension, limit int) ([]domain.RankedEntry, error) {
	if _, ok := domain.ParseDimension(string(dim)); !ok {
		return nil, &domain.ValidationError{Fields: []string{fmt.Sprintf("dimension %q is not one of score, streak", dim)}}
	}
	if limit < 1 || limit > MaxTopLimit {
		return nil, &domain.ValidationError{Fields: []string{fmt.Sprintf("limit must be between 1 and %d", MaxTopLimit)}}
	}
	return s.leaderboard.Top(ctx, dim, limit)
}

// GetRank returns userID's ranks from the durable rows. It may briefly disagree with the
// ranks returned by a concurrent SubmitAnswer, which are the transactional ones.
func (s *ProgressionService) GetRank(ctx context.Context, userID string) (domain.RankInfo, error) {
	if err := validateUserID(userID); err != nil {
		return domain.RankInfo{}, err
	}
	return s.leaderboard.Rank(ctx, userID)
}

// GetMetrics returns the aggregate metrics view of userID.
func (s *ProgressionService) GetMetrics(ctx context.Context, userID string) (domain.UserMetrics, error) {
	if err := validateUserID(userID); err != nil {
		return domain.UserMetrics{}, err
	}
	cached, ok, err := s.cache.GetMetrics(ctx, userID)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("metrics", "error").Inc()
		s.logger.Warn("metrics cache read failed", "user_id", userID, "error", err)
	case ok:
		metrics.CacheLookups.WithLabelValues("metrics", "hit").Inc()
		return cached, nil
	default:
		metrics.CacheLookups.WithLabelValues("metrics", "miss").Inc()
	}

	st, err := s.GetUserState(ctx, userID)
	if err != nil {
		return domain.UserMetrics{}, err
	}
	stats, err := s.backend.AnswerStats(ctx, userID, recentWindow)
	if err != nil {
		return domain.UserMetrics{}, storeErr(err)
	}
	m := buildMetrics(st, stats)
	if err := s.cache.PutMetrics(ctx, m); err != nil {
		metrics.CacheErrors.WithLabelValues("put_metrics").Inc()
		s.logger.Warn("metrics cache write failed", "user_id", userID, "error", err)
	}
	return m, nil
}

// WarmLeaderboards recomputes the cached top projections of every dimension.
func (s *ProgressionService) WarmLeaderboards(ctx context.Context) error {
	for _, dim := range domain.Dimensions {
		if _, err := s.leaderboard.Refresh(ctx, dim); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe returns a channel of leaderboard updates. The caller must invoke cancel.
func (s *ProgressionService) Subscribe() (<-chan domain.LeaderboardUpdate, func()) {
	return s.broadcaster.Subscribe()
}

func (s *ProgressionService) afterCommit(ctx context.Context, commit Commit) {
	s.putState(ctx, commit.State)
	if err := s.cache.DropMetrics(ctx, commit.State.UserID); err != nil {
		metrics.CacheErrors.WithLabelValues("drop_metrics").Inc()
		s.logger.Warn("metrics cache invalidation failed", "user_id", commit.State.UserID, "error", err)
	}
	s.leaderboard.Invalidate(ctx)
	s.broadcaster.Publish(domain.LeaderboardUpdate{
		UserID:     commit.State.UserID,
		TotalScore: commit.State.TotalScore,
		MaxStreak:  commit.State.MaxStreak,
		RankScore:  commit.RankScore,
		RankStreak: commit.RankStreak,
		At:         commit.Entry.AnsweredAt,
	})
}

func (s *ProgressionService) onDecay(ctx context.Context, st domain.UserProgressionState) {
	metrics.DecayEvents.Inc()
	if err := s.cache.DropMetrics(ctx, st.UserID); err != nil {
		metrics.CacheErrors.WithLabelValues("drop_metrics").Inc()
		s.logger.Warn("metrics cache invalidation failed", "user_id", st.UserID, "error", err)
	}
	s.logger.Debug("inactivity decay applied", "user_id", st.UserID, "streak", st.Streak, "confidence", st.Confidence)
}

func (s *ProgressionService) putState(ctx context.Context, st domain.UserProgressionState) {
	if err := s.cache.PutState(ctx, st); err != nil {
		metrics.CacheErrors.WithLabelValues("put_state").Inc()
		s.logger.Warn("state cache write failed", "user_id", st.UserID, "error", err)
	}
}

// allow fails open when the limiter errors.
func (s *ProgressionService) allow(ctx context.Context, userID string) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("rate_limit").Inc()
		s.logger.Warn("rate limiter unavailable, admitting request", "user_id", userID, "error", err)
		return true
	}
	return ok
}

func (s *ProgressionService) replay(ctx context.Context, req domain.SubmitAnswerRequest) (domain.AnswerResult, bool) {
	if s.idempotency == nil {
		return domain.AnswerResult{}, false
	}
	prior, ok, err := s.idempotency.LoadResult(ctx, req.UserID, req.IdempotencyToken)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("load_result").Inc()
		s.logger.Warn("idempotency lookup failed", "user_id", req.UserID, "error", err)
		return domain.AnswerResult{}, false
	}
	return prior, ok
}

func buildMetrics(st domain.UserProgressionState, stats domain.AnswerStats) domain.UserMetrics {
	m := domain.UserMetrics{
		UserID:            st.UserID,
		TotalAnswers:      stats.TotalAnswers,
		CorrectAnswers:    stats.CorrectAnswers,
		AverageDifficulty: stats.AverageDifficulty,
		CurrentDifficulty: st.CurrentDifficulty,
		Confidence:        st.Confidence,
		Streak:            st.Streak,
		MaxStreak:         st.MaxStreak,
		TotalScore:        st.TotalScore,
	}
	if stats.TotalAnswers > 0 {
		m.Accuracy = float64(stats.CorrectAnswers) / float64(stats.TotalAnswers)
	}
	if len(stats.Recent) > 0 {
		var correct int
		for _, ok := range stats.Recent {
			if ok {
				correct++
			}
		}
		m.RecentAccuracy = float64(correct) / float64(len(stats.Recent))
	}
	return m
}

func validateSubmission(req domain.SubmitAnswerRequest) error {
	var fields []string
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &domain.ValidationError{Fields: []string{err.Error()}}
		}
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	if req.AnswerText != "" && strings.TrimSpace(req.AnswerText) == "" {
		fields = append(fields, "AnswerText is blank")
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

func validateUserID(userID string) error {
	if err := validate.Var(userID, "required,max=64"); err != nil {
		return &domain.ValidationError{Fields: []string{"userId must be 1-64 characters"}}
	}
	return nil
}
