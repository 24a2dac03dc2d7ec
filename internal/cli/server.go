package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adaptive-quiz-service/internal/app"
	"adaptive-quiz-service/internal/config"
	"adaptive-quiz-service/internal/infra/memory"
	"adaptive-quiz-service/internal/infra/postgres"
	redisinfra "adaptive-quiz-service/internal/infra/redis"
	"adaptive-quiz-service/internal/infra/sqlite"
	"adaptive-quiz-service/internal/jobs"
	"adaptive-quiz-service/internal/logging"
	transport "adaptive-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const defaultQuestionsPath = "config/questions.yaml"

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	backend, bank, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithDecayAfter(cfg.Engine.Decay()),
	}
	var questions app.QuestionBank
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, caches degrade to the durable store", "addr", cfg.Redis.Addr, "error", err)
		}
		questions = redisinfra.NewQuestionRepository(redisClient, bank, cfg.Engine.Questions())
		opts = append(opts,
			app.WithCache(redisinfra.NewProjectionCache(redisClient, redisinfra.ProjectionTTLs{
				State:       cfg.Engine.State(),
				Metrics:     cfg.Engine.Metrics(),
				Leaderboard: cfg.Engine.Leaderboard(),
			})),
			app.WithIdempotency(redisinfra.NewIdempotencyStore(redisClient, cfg.Engine.Idempotency())),
			app.WithRateLimiter(redisinfra.NewRateLimiter(redisClient, cfg.Engine.Limit(), cfg.Engine.Window())),
		)
	} else {
		arena := memory.NewArena()
		questions = memory.NewQuestionRepository(bank, cfg.Engine.Questions())
		opts = append(opts,
			app.WithCache(memory.NewProjectionCache(arena, memory.ProjectionTTLs{
				State:       cfg.Engine.State(),
				Metrics:     cfg.Engine.Metrics(),
				Leaderboard: cfg.Engine.Leaderboard(),
			})),
			app.WithIdempotency(memory.NewIdempotencyStore(arena, cfg.Engine.Idempotency())),
			app.WithRateLimiter(memory.NewRateLimiter(arena, cfg.Engine.Limit(), cfg.Engine.Window())),
		)
	}
	service := app.NewProgressionService(backend, questions, opts...)

	warmer := jobs.NewLeaderboardWarmer(service, cfg.Engine.Warm(), logger)
	if err := warmer.Start(); err != nil {
		return fmt.Errorf("start leaderboard warmer: %w", err)
	}
	defer warmer.Stop()

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(transport.NewHandler(service, logger)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz service", "port", finalPort, "store", cfg.Driver(), "redis", cfg.Redis.Addr != "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore connects the configured durable backend and its question bank.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (app.Backend, app.QuestionBank, func(), error) {
	switch cfg.Driver() {
	case config.DriverPostgres:
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return nil, nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		db := postgres.OpenDB(cfg.Postgres.URL)
		closeFn := func() {
			db.Close()
			pool.Close()
		}
		return postgres.NewStateBackend(db), postgres.NewQuestionBank(pool), closeFn, nil

	case config.DriverSQLite:
		bank, err := staticBank(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return sqlite.NewStateBackend(db), bank, func() { db.Close() }, nil

	default:
		bank, err := staticBank(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Warn("using in-memory store, state is lost on restart")
		return memory.NewStateBackend(), bank, func() {}, nil
	}
}

func staticBank(cfg config.Config) (*memory.StaticQuestionBank, error) {
	questions, err := config.LoadQuestions(questionsPath(cfg))
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	return memory.NewStaticQuestionBank(questions), nil
}

func questionsPath(cfg config.Config) string {
	if cfg.Questions.Path != "" {
		return cfg.Questions.Path
	}
	return defaultQuestionsPath
}

func newLogger(cfg config.Config) *slog.Logger {
	return logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
}
