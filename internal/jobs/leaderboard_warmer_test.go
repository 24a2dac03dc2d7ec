package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingWarmer struct {
	calls atomic.Int32
	err   error
}

func (w *countingWarmer) WarmLeaderboards(context.Context) error {
	w.calls.Add(1)
	return w.err
}

func TestLeaderboardWarmerRunsOnInterval(t *testing.T) {
	warmer := &countingWarmer{}
	job := NewLeaderboardWarmer(warmer, 50*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, job.Start())
	defer job.Stop()

	require.Eventually(t, func() bool { return warmer.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestLeaderboardWarmerSurvivesErrors(t *testing.T) {
	warmer := &countingWarmer{err: errors.New("store down")}
	job := NewLeaderboardWarmer(warmer, 50*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, job.Start())
	defer job.Stop()

	require.Eventually(t, func() bool { return warmer.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}
