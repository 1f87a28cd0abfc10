package maintenance

import (
	"context"
	"time"

	"plantwatch/internal/config"
	"plantwatch/internal/logger"
	"plantwatch/internal/model"
	"plantwatch/internal/service/clock"
	"plantwatch/internal/service/submission"
)

// Flusher retries queued submissions.
type Flusher interface {
	Flush(ctx context.Context) (submission.FlushStats, error)
}

// Report is the outcome of one maintenance pass.
type Report struct {
	Flush   submission.FlushStats   `json:"flush"`
	Pending model.CleanupStats      `json:"pending"`
	Images  model.ImageCleanupStats `json:"images"`
}

// Janitor flushes and prunes the pending queue and trims the capture
// directory, once at startup and then on every tick.
type Janitor struct {
	flusher  Flusher
	queue    *submission.PendingQueue
	pending  config.PendingCleanupConfig
	images   config.ImageCleanupConfig
	imageDir string
	interval time.Duration
	onRemove func(name string)
	clock    clock.Clock
	logger   *logger.Logger
}

// NewJanitor builds a janitor. flusher and queue may be nil when no durable sink exists.
func NewJanitor(cfg *config.Config, flusher Flusher, queue *submission.PendingQueue, onRemove func(name string), clk clock.Clock, logger *logger.Logger) *Janitor {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Janitor{
		flusher:  flusher,
		queue:    queue,
		pending:  cfg.Pending,
		images:   cfg.Images,
		imageDir: cfg.Archive.Directory,
		interval: cfg.CleanupTick,
		onRemove: onRemove,
		clock:    clk,
		logger:   logger,
	}
}

// RunOnce performs one pass. Failures of one step are logged and do not
// stop the others.
func (j *Janitor) RunOnce(ctx context.Context) Report {
	var report Report

	if j.flusher != nil {
		stats, err := j.flusher.Flush(ctx)
		if err != nil {
			j.logger.Error("Pending flush failed: %v", err)
		}
		report.Flush = stats
	}

	if j.queue != nil {
		stats, err := CleanupPending(j.queue, j.pending, j.clock.Now())
		if err != nil {
			j.logger.Error("Pending cleanup failed: %v", err)
		} else if stats.RemovedOld+stats.RemovedRetries+stats.RemovedExcess > 0 {
			j.logger.Info("Pending queue cleaned: %d -> %d entries (removed: %d old, %d max retries, %d excess)",
				stats.TotalBefore, stats.TotalAfter, stats.RemovedOld, stats.RemovedRetries, stats.RemovedExcess)
		} else {
			j.logger.Debug("Pending queue check: %d entries", stats.TotalAfter)
		}
		report.Pending = stats
	}

	if j.imageDir != "" {
		stats, err := CleanupImages(j.imageDir, j.images, j.clock.Now(), j.onRemove)
		if err != nil {
			j.logger.Error("Image cleanup failed: %v", err)
		} else if removed := stats.RemovedOld + stats.RemovedCount + stats.RemovedSize; removed > 0 {
			j.logger.Info("Image cleanup in %s: %d -> %d files (removed: %d old, %d excess, %d size, %d bytes)",
				j.imageDir, stats.TotalFiles, stats.Remaining, stats.RemovedOld, stats.RemovedCount, stats.RemovedSize, stats.FreedBytes)
		}
		report.Images = stats
	}

	return report
}

// Run performs a pass immediately and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	j.logger.Info("Running startup cleanup tasks")
	j.RunOnce(ctx)

	if j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}
