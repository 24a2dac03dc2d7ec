package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Warmer recomputes the cached top projections.
type Warmer interface {
	WarmLeaderboards(ctx context.Context) error
}

// LeaderboardWarmer refreshes the leaderboard projections on a fixed interval.
type LeaderboardWarmer struct {
	scheduler *gocron.Scheduler
	warmer    Warmer
	interval  time.Duration
	logger    *slog.Logger
}

func NewLeaderboardWarmer(warmer Warmer, interval time.Duration, logger *slog.Logger) *LeaderboardWarmer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaderboardWarmer{
		scheduler: gocron.NewScheduler(time.UTC),
		warmer:    warmer,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the job and returns immediately. The first run happens right away.
func (w *LeaderboardWarmer) Start() error {
	if _, err := w.scheduler.Every(w.interval).SingletonMode().Do(w.run); err != nil {
		return err
	}
	w.scheduler.StartAsync()
	w.logger.Info("leaderboard warmer started", "interval", w.interval)
	return nil
}

// Stop terminates the scheduler.
func (w *LeaderboardWarmer) Stop() {
	w.scheduler.Stop()
}

func (w *LeaderboardWarmer) run() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()
	if err := w.warmer.WarmLeaderboards(ctx); err != nil {
		w.logger.Warn("leaderboard warm failed", "error", err)
	}
}
