package status

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantwatch/internal/model"
)

func newFrame(seq uint64) *model.Frame {
	return &model.Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 4)), Seq: seq}
}

func TestStore_EmptySnapshot(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()

	require.False(t, snap.Ready())
	require.Nil(t, s.Frame())
	require.Equal(t, model.StatusNoObjects, snap.Summary.Status)
	require.Empty(t, snap.Sinks)
}

func TestStore_UpdateAndSnapshot(t *testing.T) {
	s := NewStore()
	conf := 88.0
	at := time.Unix(1700000000, 0)

	s.RecordError(errors.New("old failure"))
	s.Update(newFrame(1), []byte("jpeg"), model.DetectionSummary{Status: model.StatusHealthy, Confidence: &conf, ObjectCount: 1}, 14.2, at)

	snap := s.Snapshot()
	require.True(t, snap.Ready())
	require.Equal(t, uint64(1), snap.Frame.Seq)
	require.Equal(t, []byte("jpeg"), snap.Preview)
	require.Equal(t, model.StatusHealthy, snap.Summary.Status)
	require.Equal(t, 14.2, snap.FPS)
	require.Equal(t, at, snap.Timestamp)
	require.Empty(t, snap.LastError)
}

func TestStore_SinkOutcomes(t *testing.T) {
	s := NewStore()
	at := time.Unix(1700000000, 0)

	s.RecordSubmission("primary", map[string]any{"ok": true}, nil, at)
	s.RecordSubmission("primary", nil, errors.New("HTTP 500"), at.Add(time.Second))

	outcome, ok := s.SinkOutcome("primary")
	require.True(t, ok)
	require.Equal(t, "HTTP 500", outcome.Error)
	require.Equal(t, map[string]any{"ok": true}, outcome.Response)

	s.RecordSubmission("primary", map[string]any{"id": 2}, nil, at.Add(2*time.Second))
	outcome, _ = s.SinkOutcome("primary")
	require.Empty(t, outcome.Error)

	_, ok = s.SinkOutcome("storage")
	require.False(t, ok)

	snap := s.Snapshot()
	snap.Sinks["primary"] = SinkOutcome{Error: "mutated"}
	outcome, _ = s.SinkOutcome("primary")
	require.Empty(t, outcome.Error, "snapshot maps must be copies")
}

func TestStore_ChangedFiresOnUpdate(t *testing.T) {
	s := NewStore()
	changed := s.Changed()

	select {
	case <-changed:
		t.Fatal("changed before update")
	default:
	}

	s.Update(newFrame(1), []byte("a"), model.DetectionSummary{}, 1, time.Now())

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("changed not closed after update")
	}
	_, seq := s.Preview()
	require.Equal(t, uint64(1), seq)
}

func TestStore_ConsistentUnderConcurrency(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			s.Update(newFrame(uint64(i)), []byte{byte(i % 256)}, model.DetectionSummary{ObjectCount: i}, float64(i), time.Now())
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				snap := s.Snapshot()
				if !snap.Ready() {
					continue
				}
				n := int(snap.Frame.Seq)
				assert.Equal(t, n, snap.Summary.ObjectCount)
				assert.Equal(t, float64(n), snap.FPS)
				assert.Equal(t, []byte{byte(n % 256)}, snap.Preview)
			}
		}()
	}
	wg.Wait()
}
