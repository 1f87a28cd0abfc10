package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"plantwatch/internal/config"
	"plantwatch/internal/logger"
	"plantwatch/internal/service/clock"
	"plantwatch/internal/service/submission"
)

type countingFlusher struct {
	calls int
}

func (f *countingFlusher) Flush(ctx context.Context) (submission.FlushStats, error) {
	f.calls++
	return submission.FlushStats{Attempted: 1, Sent: 1}, nil
}

func TestJanitor_RunOnce(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "old.jpg", 10, 60*24*time.Hour)
	writeImage(t, dir, "new.jpg", 10, time.Minute)

	queue := submission.NewPendingQueue(filepath.Join(dir, "pending.json"), logger.Discard())
	require.NoError(t, queue.Append(entry("stale", 9*24*time.Hour, 0)))

	cfg := &config.Config{
		Pending: defaultPolicy(),
		Images:  config.ImageCleanupConfig{MaxAge: 30 * 24 * time.Hour},
		Archive: config.ArchiveConfig{Directory: dir},
	}
	flusher := &countingFlusher{}
	var removed []string
	j := NewJanitor(cfg, flusher, queue, func(name string) { removed = append(removed, name) }, clock.NewFake(now), logger.Discard())

	report := j.RunOnce(context.Background())

	require.Equal(t, 1, flusher.calls)
	require.Equal(t, 1, report.Flush.Sent)
	require.Equal(t, 1, report.Pending.RemovedOld)
	require.Equal(t, 1, report.Images.RemovedOld)
	require.Equal(t, []string{"old.jpg"}, removed)
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	cfg := &config.Config{CleanupTick: time.Hour}
	flusher := &countingFlusher{}
	j := NewJanitor(cfg, flusher, nil, nil, clock.NewFake(now), logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
	require.Equal(t, 1, flusher.calls)
}
