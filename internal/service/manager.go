// Package service runs the acquisition and inference loop and the
// detect-and-submit cycles built on it.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"plantwatch/internal/config"
	"plantwatch/internal/dto"
	"plantwatch/internal/logger"
	"plantwatch/internal/model"
	"plantwatch/internal/service/ai"
	"plantwatch/internal/service/analyzer"
	"plantwatch/internal/service/camera"
	"plantwatch/internal/service/clock"
	"plantwatch/internal/service/imaging"
	"plantwatch/internal/service/status"
	"plantwatch/internal/service/submission"
)

var (
	// ErrNoFrame is returned by TriggerDetection before the first frame.
	ErrNoFrame = errors.New("no_frame_available")
	// ErrCaptureUnavailable means the camera could not be (re)started.
	ErrCaptureUnavailable = errors.New("capture unavailable")
)

const fpsSmoothing = 0.9

// LoopState is the acquisition loop state.
type LoopState int32

const (
	StateIdle LoopState = iota
	StateRunning
	StateErrorCounting
	StateReconnecting
	StateStopping
	StateStopped
	StateFailed
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateErrorCounting:
		return "error_counting"
	case StateReconnecting:
		return "reconnecting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("LoopState(%d)", int32(s))
}

// Submitter delivers detections to the configured sinks.
type Submitter interface {
	Submit(ctx context.Context, sub *submission.Submission) (submission.Outcome, error)
	Enabled() []submission.Sink
}

// Archiver keeps a local copy of submitted images.
type Archiver interface {
	AddImage(data []byte, kind string, status model.Status, at time.Time) bool
}

// Broadcaster pushes live status to viewers.
type Broadcaster interface {
	Broadcast(message []byte) bool
}

// History records submitted detections.
type History interface {
	Insert(rec *model.DetectionRecord) (int64, error)
}

// Dependencies are the collaborators of a Manager. Archive, Hub and
// History are optional.
type Dependencies struct {
	Capture  camera.Capture
	Detector ai.Detector
	Analyzer *analyzer.Analyzer
	Store    *status.Store
	Pipeline Submitter
	Archive  Archiver
	Hub      Broadcaster
	History  History
}

type autoJob struct {
	frame   *model.Frame
	summary model.DetectionSummary
	fps     float64
	at      time.Time
}

// Manager owns the capture device and the detector. The loop goroutine is
// the only writer of frame state in the status store.
type Manager struct {
	cfg            config.LoopConfig
	deviceID       string
	previewQuality int
	deps           Dependencies
	clock          clock.Clock
	logger         *logger.Logger

	state             atomic.Int32
	consecutiveErrors atomic.Int32
	reconnects        atomic.Int32

	inferMu   sync.Mutex // guards the detector
	triggerMu sync.Mutex // serializes manual triggers

	fps      float64
	lastSend time.Time
	jobs     chan autoJob

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	workerDone chan struct{}
	errs       chan error
}

func NewManager(cfg *config.Config, deps Dependencies, clk clock.Clock, logger *logger.Logger) *Manager {
	if clk == nil {
		clk = clock.Real{}
	}
	fps := float64(cfg.Camera.FPS)
	if fps <= 0 {
		fps = 15
	}
	return &Manager{
		cfg:            cfg.Loop,
		deviceID:       cfg.DeviceID(),
		previewQuality: cfg.Server.JPEGQuality,
		deps:           deps,
		clock:          clk,
		logger:         logger,
		fps:            fps,
		jobs:           make(chan autoJob, 1),
		errs:           make(chan error, 1),
	}
}

// State returns the current loop state.
func (m *Manager) State() LoopState {
	return LoopState(m.state.Load())
}

func (m *Manager) setState(s LoopState) {
	m.state.Store(int32(s))
}

// ConsecutiveErrors is the current run of failed frame reads.
func (m *Manager) ConsecutiveErrors() int {
	return int(m.consecutiveErrors.Load())
}

// Reconnects counts reconnect sequences since start.
func (m *Manager) Reconnects() int {
	return int(m.reconnects.Load())
}

// Err delivers the terminal loop error, if the camera is lost for good.
func (m *Manager) Err() <-chan error {
	return m.errs
}

// Start brings up the camera within its retry budget and launches the
// loop. A camera that cannot be started is a fatal error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return errors.New("acquisition loop already started")
	}

	policy := camera.RetryPolicy{Attempts: m.cfg.ReconnectAttempts, Backoff: m.cfg.ReconnectBackoff}
	if err := camera.StartWithRetry(ctx, m.deps.Capture, policy, m.clock, m.logger); err != nil {
		m.setState(StateFailed)
		return fmt.Errorf("failed to start camera: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.workerDone = make(chan struct{})
	m.setState(StateRunning)

	go m.submitWorker(loopCtx)
	go m.run(loopCtx)

	m.logger.Info("🎬 Acquisition loop started (auto detection: %t, interval: %s)", m.cfg.AutoDetection, m.cfg.SendInterval)
	return nil
}

// Stop signals the loop and waits up to the configured stop timeout for it
// to release the camera.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cancel, done, workerDone := m.cancel, m.done, m.workerDone
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}

	if st := m.State(); st != StateStopped && st != StateFailed {
		m.setState(StateStopping)
	}
	cancel()

	timeout := m.cfg.StopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for _, ch := range []chan struct{}{done, workerDone} {
		select {
		case <-ch:
		case <-timer.C:
			return fmt.Errorf("acquisition loop did not stop within %s", timeout)
		}
	}
	m.logger.Info("🛑 Acquisition loop stopped")
	return nil
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	defer func() {
		if err := m.deps.Capture.Stop(); err != nil {
			m.logger.Warning("Error stopping camera: %v", err)
		}
		if m.State() != StateFailed {
			m.setState(StateStopped)
		}
	}()

	for ctx.Err() == nil {
		if err := m.iterate(ctx); err != nil {
			m.setState(StateFailed)
			m.deps.Store.RecordError(err)
			m.logger.Error("Acquisition loop terminated: %v", err)
			select {
			case m.errs <- err:
			default:
			}
			return
		}
	}
}

// iterate handles one frame. Only a lost camera is returned as an error;
// everything else is recorded and the loop continues.
func (m *Manager) iterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.unexpected(ctx, fmt.Errorf("panic in acquisition loop: %v", r))
			err = nil
		}
	}()

	frame, err := m.deps.Capture.Read(ctx, m.cfg.FrameTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return m.frameError(ctx, err)
	}

	m.consecutiveErrors.Store(0)
	m.setState(StateRunning)
	if err := m.process(ctx, frame); err != nil {
		m.unexpected(ctx, err)
	}
	return nil
}

func (m *Manager) frameError(ctx context.Context, err error) error {
	count := int(m.consecutiveErrors.Add(1))
	limit := max(m.cfg.MaxConsecutiveErrors, 1)
	m.setState(StateErrorCounting)
	m.logger.Warning("Frame error (%d/%d): %v", count, limit, err)

	if count < limit {
		if !errors.Is(err, camera.ErrFrameTimeout) {
			m.clock.Sleep(ctx, m.cfg.ErrorBackoff)
		}
		return nil
	}

	m.logger.Error("Too many frame errors in a row (%d), reconnecting camera", count)
	m.consecutiveErrors.Store(0)
	return m.reconnect(ctx)
}

func (m *Manager) reconnect(ctx context.Context) error {
	m.setState(StateReconnecting)
	m.reconnects.Add(1)

	if err := m.deps.Capture.Stop(); err != nil {
		m.logger.Warning("Error stopping camera: %v", err)
	}
	if err := m.clock.Sleep(ctx, m.cfg.ReconnectPause); err != nil {
		return nil
	}

	policy := camera.RetryPolicy{Attempts: m.cfg.ReconnectAttempts, Backoff: m.cfg.ReconnectBackoff}
	if err := camera.StartWithRetry(ctx, m.deps.Capture, policy, m.clock, m.logger); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	m.setState(StateRunning)
	m.logger.Info("Camera reconnected")
	return nil
}

func (m *Manager) unexpected(ctx context.Context, err error) {
	m.deps.Store.RecordError(err)
	m.logger.Error("Unexpected error in acquisition loop: %v", err)
	m.clock.Sleep(ctx, m.cfg.ErrorBackoff)
}

func (m *Manager) detect(ctx context.Context, frame *model.Frame) ([]model.RawDetection, time.Duration, error) {
	m.inferMu.Lock()
	defer m.inferMu.Unlock()
	start := m.clock.Now()
	detections, err := m.deps.Detector.Detect(ctx, frame)
	return detections, m.clock.Now().Sub(start), err
}

// process runs inference on frame and publishes the result.
func (m *Manager) process(ctx context.Context, frame *model.Frame) error {
	detections, elapsed, err := m.detect(context.WithoutCancel(ctx), frame)
	if err != nil {
		return fmt.Errorf("failed to run inference: %w", err)
	}
	labels := m.deps.Detector.Labels()
	summary := m.deps.Analyzer.Summarize(detections, labels)
	if elapsed > 0 {
		m.fps = fpsSmoothing*m.fps + (1-fpsSmoothing)/elapsed.Seconds()
	}

	preview := imaging.Annotate(frame.Image, detections, labels, m.deps.Analyzer.Threshold(), m.fps)
	encoded, err := imaging.EncodeJPEG(preview, m.previewQuality)
	if err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}

	now := m.clock.Now()
	m.deps.Store.Update(frame, encoded, summary, m.fps, now)
	m.logger.Debug("Frame processed: status=%s, count=%d, fps=%.2f", summary.Status, summary.ObjectCount, m.fps)

	m.broadcast(summary, now)
	if m.shouldSend(now) {
		m.queueAuto(autoJob{frame: frame, summary: summary, fps: m.fps, at: now})
	}
	return nil
}

func (m *Manager) broadcast(summary model.DetectionSummary, at time.Time) {
	if m.deps.Hub == nil {
		return
	}
	_, seq := m.deps.Store.Preview()
	msg, err := json.Marshal(dto.LiveStatus{
		Status:      summary.Status,
		Confidence:  summary.Confidence,
		ObjectCount: summary.ObjectCount,
		AvgFPS:      round2(m.fps),
		Timestamp:   unixSeconds(at),
		Seq:         seq,
		LoopState:   m.State().String(),
	})
	if err != nil {
		m.logger.Error("Failed to encode live status: %v", err)
		return
	}
	m.deps.Hub.Broadcast(msg)
}
