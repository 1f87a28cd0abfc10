package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"plantwatch/internal/config"
	"plantwatch/internal/logger"
	"plantwatch/internal/model"
	"plantwatch/internal/service/analyzer"
	"plantwatch/internal/service/camera"
	"plantwatch/internal/service/clock"
	"plantwatch/internal/service/imaging"
	"plantwatch/internal/service/status"
	"plantwatch/internal/service/submission"
)

var t0 = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

type readResult struct {
	frame *model.Frame
	err   error
}

// scriptedCapture replays a fixed list of read results, then blocks until
// the context is done.
type scriptedCapture struct {
	mu       sync.Mutex
	script   []readResult
	starts   int
	stops    int
	startErr func(attempt int) error
}

func (c *scriptedCapture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	if c.startErr != nil {
		return c.startErr(c.starts)
	}
	return nil
}

func (c *scriptedCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *scriptedCapture) Read(ctx context.Context, timeout time.Duration) (*model.Frame, error) {
	c.mu.Lock()
	if len(c.script) > 0 {
		next := c.script[0]
		c.script = c.script[1:]
		c.mu.Unlock()
		return next.frame, next.err
	}
	c.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *scriptedCapture) counts() (starts, stops int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.stops
}

type fakeDetector struct {
	mu         sync.Mutex
	detections []model.RawDetection
	err        error
	panicMsg   string
	calls      int
}

func (d *fakeDetector) Detect(ctx context.Context, frame *model.Frame) ([]model.RawDetection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.panicMsg != "" {
		panic(d.panicMsg)
	}
	return d.detections, d.err
}

func (d *fakeDetector) Labels() model.Labels {
	return model.Labels{0: "chrysanthemum", 1: "mealybug"}
}

func (d *fakeDetector) Close() error { return nil }

type stubSink struct{}

func (stubSink) Name() string  { return "primary" }
func (stubSink) Enabled() bool { return true }
func (stubSink) Durable() bool { return false }
func (stubSink) Send(ctx context.Context, sub *submission.Submission) (map[string]any, error) {
	return nil, nil
}

type fakeSubmitter struct {
	mu   sync.Mutex
	subs []*submission.Submission
	err  error
}

func (s *fakeSubmitter) Submit(ctx context.Context, sub *submission.Submission) (submission.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	return submission.Outcome{Results: []submission.Result{{Sink: "primary", Err: s.err}}}, nil
}

func (s *fakeSubmitter) Enabled() []submission.Sink { return []submission.Sink{stubSink{}} }

func (s *fakeSubmitter) submitted() []*submission.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*submission.Submission(nil), s.subs...)
}

type fakeHistory struct {
	mu      sync.Mutex
	records []model.DetectionRecord
}

func (h *fakeHistory) Insert(rec *model.DetectionRecord) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, *rec)
	return int64(len(h.records)), nil
}

func (h *fakeHistory) all() []model.DetectionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.DetectionRecord(nil), h.records...)
}

type fakeArchive struct {
	mu    sync.Mutex
	kinds []string
}

func (a *fakeArchive) AddImage(data []byte, kind string, st model.Status, at time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, kind)
	return true
}

type recordingHub struct {
	mu       sync.Mutex
	messages [][]byte
}

func (h *recordingHub) Broadcast(msg []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	return true
}

func testFrame(seq uint64) *model.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.White)
	return &model.Frame{Image: img, Seq: seq, CapturedAt: t0}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{JPEGQuality: 80},
		Camera: config.CameraConfig{FPS: 15},
		Loop: config.LoopConfig{
			FrameTimeout:          time.Second,
			MaxConsecutiveErrors:  10,
			ReconnectPause:        2 * time.Second,
			ReconnectAttempts:     5,
			ReconnectBackoff:      2 * time.Second,
			ErrorBackoff:          time.Second,
			StopTimeout:           2 * time.Second,
			SendInterval:          15 * time.Second,
			SubmissionJPEGQuality: 85,
		},
		Primary: config.PrimarySinkConfig{DeviceID: "pi-7"},
	}
}

type harness struct {
	manager   *Manager
	capture   *scriptedCapture
	detector  *fakeDetector
	store     *status.Store
	submitter *fakeSubmitter
	history   *fakeHistory
	archive   *fakeArchive
	hub       *recordingHub
	clock     *clock.Fake
}

func newHarness(t *testing.T, cfg *config.Config, script ...readResult) *harness {
	t.Helper()
	h := &harness{
		capture:   &scriptedCapture{script: script},
		detector:  &fakeDetector{},
		store:     status.NewStore(),
		submitter: &fakeSubmitter{},
		history:   &fakeHistory{},
		archive:   &fakeArchive{},
		hub:       &recordingHub{},
		clock:     clock.NewFake(t0),
	}
	h.manager = NewManager(cfg, Dependencies{
		Capture:  h.capture,
		Detector: h.detector,
		Analyzer: analyzer.New(analyzer.DefaultOptions(), imaging.EncodeJPEG),
		Store:    h.store,
		Pipeline: h.submitter,
		Archive:  h.archive,
		Hub:      h.hub,
		History:  h.history,
	}, h.clock, logger.Discard())
	t.Cleanup(func() { h.manager.Stop() })
	return h
}

func timeouts(n int) []readResult {
	out := make([]readResult, n)
	for i := range out {
		out[i] = readResult{err: camera.ErrFrameTimeout}
	}
	return out
}

func waitReady(t *testing.T, store *status.Store) status.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return store.Snapshot().Ready() }, 2*time.Second, 5*time.Millisecond)
	return store.Snapshot()
}

func TestManager_ReconnectsOnceAfterConsecutiveErrors(t *testing.T) {
	script := append(timeouts(10), readResult{frame: testFrame(1)})
	h := newHarness(t, testConfig(), script...)

	require.NoError(t, h.manager.Start(context.Background()))
	snap := waitReady(t, h.store)

	require.Equal(t, uint64(1), snap.Frame.Seq)
	require.Equal(t, 1, h.manager.Reconnects())
	require.Equal(t, 0, h.manager.ConsecutiveErrors())
	starts, stops := h.capture.counts()
	require.Equal(t, 2, starts)
	require.Equal(t, 1, stops)
	require.Contains(t, h.clock.Sleeps(), 2*time.Second)
	require.Equal(t, StateRunning, h.manager.State())
}

func TestManager_BelowThresholdDoesNotReconnect(t *testing.T) {
	script := append(timeouts(9), readResult{frame: testFrame(1)})
	h := newHarness(t, testConfig(), script...)

	require.NoError(t, h.manager.Start(context.Background()))
	waitReady(t, h.store)

	require.Equal(t, 0, h.manager.Reconnects())
	require.Equal(t, 0, h.manager.ConsecutiveErrors())
	starts, _ := h.capture.counts()
	require.Equal(t, 1, starts)
}

func TestManager_ReconnectExhaustedIsTerminal(t *testing.T) {
	cfg := testConfig()
	cfg.Loop.MaxConsecutiveErrors = 2
	cfg.Loop.ReconnectAttempts = 3
	h := newHarness(t, cfg, timeouts(2)...)
	h.capture.startErr = func(attempt int) error {
		if attempt == 1 {
			return nil
		}
		return errors.New("device busy")
	}

	require.NoError(t, h.manager.Start(context.Background()))

	select {
	case err := <-h.manager.Err():
		require.ErrorIs(t, err, ErrCaptureUnavailable)
		require.ErrorContains(t, err, "device busy")
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal error")
	}

	require.Eventually(t, func() bool { return h.manager.State() == StateFailed }, time.Second, 5*time.Millisecond)
	starts, _ := h.capture.counts()
	require.Equal(t, 4, starts)
	require.Contains(t, h.store.Snapshot().LastError, "capture unavailable")

	_, err := h.manager.TriggerDetection(context.Background(), "")
	require.ErrorIs(t, err, ErrCaptureUnavailable)
}

func TestManager_StartFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Loop.ReconnectAttempts = 2
	h := newHarness(t, cfg)
	h.capture.startErr = func(int) error { return errors.New("no device") }

	err := h.manager.Start(context.Background())
	require.ErrorIs(t, err, camera.ErrStartFailed)
	require.Equal(t, StateFailed, h.manager.State())
	require.Equal(t, []time.Duration{2 * time.Second}, h.clock.Sleeps())
}

func TestManager_InferenceErrorIsRecorded(t *testing.T) {
	h := newHarness(t, testConfig(), readResult{frame: testFrame(1)}, readResult{frame: testFrame(2)})
	h.detector.err = errors.New("model exploded")

	require.NoError(t, h.manager.Start(context.Background()))

	require.Eventually(t, func() bool {
		h.detector.mu.Lock()
		defer h.detector.mu.Unlock()
		return h.detector.calls == 2
	}, 2*time.Second, 5*time.Millisecond)

	snap := h.store.Snapshot()
	require.False(t, snap.Ready())
	require.Contains(t, snap.LastError, "model exploded")
	require.Equal(t, StateRunning, h.manager.State())
}

func TestManager_PanicIsRecovered(t *testing.T) {
	h := newHarness(t, testConfig(), readResult{frame: testFrame(1)})
	h.detector.panicMsg = "index out of range"

	require.NoError(t, h.manager.Start(context.Background()))
	require.Eventually(t, func() bool {
		return h.store.Snapshot().LastError != ""
	}, 2*time.Second, 5*time.Millisecond)

	require.Contains(t, h.store.Snapshot().LastError, "index out of range")
	require.NotEqual(t, StateFailed, h.manager.State())
}

func TestManager_PublishesSummaryAndPreview(t *testing.T) {
	h := newHarness(t, testConfig(), readResult{frame: testFrame(1)})
	h.detector.detections = []model.RawDetection{
		{Box: model.Box{XMin: 10, YMin: 10, XMax: 100, YMax: 100}, ClassID: 0, Confidence: 0.9},
		{Box: model.Box{XMin: 50, YMin: 50, XMax: 80, YMax: 80}, ClassID: 1, Confidence: 0.7},
	}

	require.NoError(t, h.manager.Start(context.Background()))
	snap := waitReady(t, h.store)

	require.Equal(t, model.StatusMixed, snap.Summary.Status)
	require.Equal(t, 2, snap.Summary.ObjectCount)
	require.InDelta(t, 90.0, *snap.Summary.Confidence, 1e-9)
	require.Equal(t, 15.0, snap.FPS)
	require.NotEmpty(t, snap.Preview)
	require.Equal(t, t0, snap.Timestamp)

	require.Eventually(t, func() bool {
		h.hub.mu.Lock()
		defer h.hub.mu.Unlock()
		return len(h.hub.messages) == 1
	}, time.Second, 5*time.Millisecond)
	require.Contains(t, string(h.hub.messages[0]), `"status":"mixed"`)

	require.Empty(t, h.submitter.submitted(), "auto detection is off")
}

func TestManager_AutoSubmissionRespectsInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Loop.AutoDetection = true
	h := newHarness(t, cfg, readResult{frame: testFrame(1)}, readResult{frame: testFrame(2)}, readResult{frame: testFrame(3)})
	h.detector.detections = []model.RawDetection{
		{Box: model.Box{XMin: 10, YMin: 10, XMax: 100, YMax: 100}, ClassID: 0, Confidence: 0.876},
	}

	require.NoError(t, h.manager.Start(context.Background()))
	require.Eventually(t, func() bool {
		return h.store.Snapshot().Frame != nil && h.store.Snapshot().Frame.Seq == 3
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.history.all()) == 1 }, 2*time.Second, 5*time.Millisecond)

	subs := h.submitter.submitted()
	require.Len(t, subs, 1)
	sub := subs[0]
	require.Equal(t, "pi-7", sub.Payload.DeviceID)
	require.Equal(t, model.StatusHealthy, sub.Payload.Status)
	require.Equal(t, 87.6, *sub.Payload.Confidence)
	require.Equal(t, 1, sub.Payload.Metadata["objectCount"])
	require.Equal(t, 15.0, sub.Payload.Metadata["avgFps"])
	require.Equal(t, "2024-07-01T09:00:00Z", sub.Payload.Metadata["created_at"])
	require.Equal(t, "20240701_090000.jpg", sub.Filename)
	require.NotEmpty(t, sub.Image)
	require.Empty(t, sub.Payload.MainImage)

	rec := h.history.all()[0]
	require.Equal(t, model.SourceAuto, rec.Source)
	require.Equal(t, []string{model.SourceAuto}, h.archive.kinds)
}

func TestManager_TriggerDetectionWithoutFrame(t *testing.T) {
	h := newHarness(t, testConfig())
	_, err := h.manager.TriggerDetection(context.Background(), "")
	require.ErrorIs(t, err, ErrNoFrame)
}

func TestManager_TriggerDetection(t *testing.T) {
	h := newHarness(t, testConfig())
	h.store.Update(testFrame(5), []byte("preview"), model.DetectionSummary{}, 15, t0)
	h.detector.detections = []model.RawDetection{
		{Box: model.Box{XMin: 0, YMin: 0, XMax: 100, YMax: 100}, ClassID: 0, Confidence: 0.9},
		{Box: model.Box{XMin: 10, YMin: 10, XMax: 90, YMax: 90}, ClassID: 1, Confidence: 0.8},
		{Box: model.Box{XMin: 120, YMin: 120, XMax: 190, YMax: 190}, ClassID: 0, Confidence: 0.8},
	}

	result, err := h.manager.TriggerDetection(context.Background(), "user-jwt")
	require.NoError(t, err)

	require.Equal(t, model.StatusMixed, result.Status)
	require.Equal(t, 2, result.ObjectCount)
	require.Equal(t, 85.0, *result.Confidence)
	require.True(t, result.Outcome.Delivered())
	require.Equal(t, t0, result.Timestamp)

	subs := h.submitter.submitted()
	require.Len(t, subs, 1)
	sub := subs[0]
	require.Equal(t, "user-jwt", sub.Token)
	require.Len(t, sub.Payload.PlantImages, 2)
	require.NotEmpty(t, sub.Payload.MainImage)
	require.Equal(t, 2, sub.Payload.Metadata["objectCount"])
	plants := sub.Payload.Metadata["plant_statuses"].([]model.PlantAssessment)
	require.Equal(t, model.StatusDiseased, plants[0].Status)
	require.Equal(t, model.StatusHealthy, plants[1].Status)

	records := h.history.all()
	require.Len(t, records, 1)
	require.Equal(t, model.SourceManual, records[0].Source)
	require.Len(t, records[0].Plants, 2)
	require.Equal(t, []string{model.SourceManual}, h.archive.kinds)
}

func TestManager_StopReleasesCamera(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.manager.Start(context.Background()))
	require.Error(t, h.manager.Start(context.Background()))

	require.NoError(t, h.manager.Stop())
	require.Equal(t, StateStopped, h.manager.State())
	_, stops := h.capture.counts()
	require.Equal(t, 1, stops)
	require.NoError(t, h.manager.Stop())
}

func TestLoopState_String(t *testing.T) {
	require.Equal(t, "reconnecting", StateReconnecting.String())
	require.Equal(t, "LoopState(42)", LoopState(42).String())
}
