// Package status holds the latest frame, its classification and the outcome
// of the most recent delivery to every sink.
package status

import (
	"sync"
	"time"

	"plantwatch/internal/model"
)

// SinkOutcome is the result of the latest attempt against one sink.
type SinkOutcome struct {
	Response map[string]any `json:"response"`
	Error    string         `json:"error,omitempty"`
	At       time.Time      `json:"at"`
}

// Snapshot is a read-only copy of the shared state.
type Snapshot struct {
	Frame     *model.Frame
	Preview   []byte // encoded, annotated image of Frame
	Timestamp time.Time
	Summary   model.DetectionSummary
	FPS       float64
	Seq       uint64
	Sinks     map[string]SinkOutcome
	LastError string
}

// Ready reports whether at least one frame has been published.
func (s Snapshot) Ready() bool {
	return s.Frame != nil
}

// Store is the single lock-protected record shared by the acquisition loop
// and HTTP handlers. Published frames and preview buffers must not be
// mutated after Update.
type Store struct {
	mu        sync.Mutex
	frame     *model.Frame
	preview   []byte
	timestamp time.Time
	summary   model.DetectionSummary
	fps       float64
	seq       uint64
	sinks     map[string]SinkOutcome
	lastError string
	changed   chan struct{}
}

func NewStore() *Store {
	return &Store{
		sinks:   make(map[string]SinkOutcome),
		changed: make(chan struct{}),
	}
}

// Update publishes a new frame together with its preview and summary.
func (s *Store) Update(frame *model.Frame, preview []byte, summary model.DetectionSummary, fps float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frame = frame
	s.preview = preview
	s.summary = summary
	s.fps = fps
	s.timestamp = at
	s.seq++
	s.lastError = ""

	close(s.changed)
	s.changed = make(chan struct{})
}

// Snapshot returns a consistent copy of the state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sinks := make(map[string]SinkOutcome, len(s.sinks))
	for name, outcome := range s.sinks {
		sinks[name] = outcome
	}
	return Snapshot{
		Frame:     s.frame,
		Preview:   s.preview,
		Timestamp: s.timestamp,
		Summary:   s.summary,
		FPS:       s.fps,
		Seq:       s.seq,
		Sinks:     sinks,
		LastError: s.lastError,
	}
}

// Frame returns the latest frame, nil before the first Update.
func (s *Store) Frame() *model.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Preview returns the latest encoded preview and its sequence number.
func (s *Store) Preview() ([]byte, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview, s.seq
}

// Changed returns a channel closed at the next Update.
func (s *Store) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// RecordSubmission stores the outcome of a delivery attempt. A success
// clears the previous error of that sink; a failure keeps the previous response.
func (s *Store) RecordSubmission(sink string, response map[string]any, err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := s.sinks[sink]
	outcome.At = at
	if err != nil {
		outcome.Error = err.Error()
	} else {
		outcome.Response = response
		outcome.Error = ""
	}
	s.sinks[sink] = outcome
}

// SinkOutcome returns the latest outcome for sink.
func (s *Store) SinkOutcome(sink string) (SinkOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome, ok := s.sinks[sink]
	return outcome, ok
}

// RecordError stores an unexpected loop error. It is cleared by the next Update.
func (s *Store) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err.Error()
}
