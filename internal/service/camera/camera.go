// Package camera provides frame sources for the acquisition loop.
package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"plantwatch/internal/config"
	"plantwatch/internal/logger"
	"plantwatch/internal/model"
	"plantwatch/internal/service/clock"
)

var (
	// ErrFrameTimeout is returned by Read when no frame arrived in time.
	ErrFrameTimeout = errors.New("timed out waiting for frame")
	// ErrNotStarted is returned by Read before Start or after Stop.
	ErrNotStarted = errors.New("capture not started")
	// ErrStartFailed wraps the last error once every start attempt failed.
	ErrStartFailed = errors.New("capture could not be started")
)

// Capture is a frame source owned by a single reader.
type Capture interface {
	Start(ctx context.Context) error
	Stop() error
	// Read blocks for the next frame for at most timeout.
	Read(ctx context.Context, timeout time.Duration) (*model.Frame, error)
}

// RetryPolicy bounds how a capture is (re)started.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// StartWithRetry calls Start up to policy.Attempts times, sleeping
// policy.Backoff between attempts.
func StartWithRetry(ctx context.Context, c Capture, policy RetryPolicy, clk clock.Clock, log *logger.Logger) error {
	attempts := max(policy.Attempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = c.Start(ctx)
		if lastErr == nil {
			if attempt > 1 {
				log.Info("Camera started on attempt %d/%d", attempt, attempts)
			}
			return nil
		}

		log.Warning("Camera start attempt %d/%d failed: %v", attempt, attempts, lastErr)
		if attempt < attempts {
			if err := clk.Sleep(ctx, policy.Backoff); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrStartFailed, attempts, lastErr)
}

// New picks a capture for cfg.Source: an existing directory is replayed,
// anything else is opened as a device index or stream URL.
func New(cfg config.CameraConfig, log *logger.Logger) Capture {
	if info, err := os.Stat(cfg.Source); err == nil && info.IsDir() {
		log.Info("Replaying frames from %s at %d fps", cfg.Source, cfg.FPS)
		return NewReplayCapture(cfg.Source, cfg.FPS)
	}
	log.Info("Opening camera %s (%dx%d @ %d fps)", cfg.Source, cfg.Width, cfg.Height, cfg.FPS)
	return NewGoCVCapture(cfg.Source, cfg.Width, cfg.Height, cfg.FPS)
}
