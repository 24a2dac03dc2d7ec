package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"adaptive-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// IdempotencyHeader carries the client's replay token on answer submissions.
const IdempotencyHeader = "Idempotency-Key"

const defaultTopLimit = 10

// Service is the engine surface served over HTTP.
type Service interface {
	Onboard(ctx context.Context, userID string) (domain.UserProgressionState, error)
	GetUserState(ctx context.Context, userID string) (domain.UserProgressionState, error)
	NextQuestion(ctx context.Context, userID string) (domain.ServedQuestion, error)
	SubmitAnswer(ctx context.Context, req domain.SubmitAnswerRequest) (domain.AnswerResult, error)
	GetTop(ctx context.Context, dim domain.Dimension, limit int) ([]domain.RankedEntry, error)
	GetRank(ctx context.Context, userID string) (domain.RankInfo, error)
	GetMetrics(ctx context.Context, userID string) (domain.UserMetrics, error)
	Subscribe() (<-chan domain.LeaderboardUpdate, func())
}

type Handler struct {
	service  Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// NewRouter mounts the API, the leaderboard stream, health and metrics endpoints.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/leaderboard", h.ServeLeaderboardStream)

	v1 := r.Group("/v1")
	users := v1.Group("/users/:userId")
	users.POST("", h.onboard)
	users.GET("/state", h.getState)
	users.GET("/next-question", h.nextQuestion)
	users.POST("/answers", h.submitAnswer)
	users.GET("/rank", h.getRank)
	users.GET("/metrics", h.getMetrics)
	v1.GET("/leaderboard/:dimension", h.getTop)
	return r
}

type submitAnswerBody struct {
	QuestionID           string `json:"questionId"`
	Answer               string `json:"answer"`
	ExpectedStateVersion *int64 `json:"expectedStateVersion"`
}

func (h *Handler) onboard(c *gin.Context) {
	st, err := h.service.Onboard(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) getState(c *gin.Context) {
	st, err := h.service.GetUserState(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) nextQuestion(c *gin.Context) {
	q, err := h.service.NextQuestion(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) submitAnswer(c *gin.Context) {
	var body submitAnswerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, &domain.ValidationError{Fields: []string{"body: " + err.Error()}})
		return
	}
	result, err := h.service.SubmitAnswer(c.Request.Context(), domain.SubmitAnswerRequest{
		UserID:               c.Param("userId"),
		QuestionID:           body.QuestionID,
		AnswerText:           body.Answer,
		ExpectedStateVersion: body.ExpectedStateVersion,
		IdempotencyToken:     c.GetHeader(IdempotencyHeader),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) getRank(c *gin.Context) {
	rank, err := h.service.GetRank(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rank)
}

func (h *Handler) getMetrics(c *gin.Context) {
	m, err := h.service.GetMetrics(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) getTop(c *gin.Context) {
	limit := defaultTopLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(c, &domain.ValidationError{Fields: []string{"limit must be an integer"}})
			return
		}
		limit = n
	}
	dim := domain.Dimension(c.Param("dimension"))
	entries, err := h.service.GetTop(c.Request.Context(), dim, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dimension": dim, "entries": entries})
}

type errorBody struct {
	Error              string   `json:"error"`
	Fields             []string `json:"fields,omitempty"`
	ActualStateVersion int64    `json:"actualStateVersion,omitempty"`
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Error = domain.ErrInvalidInput.Error()
		body.Fields = verr.Fields
	}
	var conflict *domain.VersionConflictError
	if errors.As(err, &conflict) {
		body.ActualStateVersion = conflict.Actual
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		body.Error = http.StatusText(status)
	}
	if errors.Is(err, domain.ErrRateLimited) {
		c.Header("Retry-After", "60")
	}
	c.AbortWithStatusJSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStateNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
