package service

import (
	"context"
	"errors"
	"math"
	"time"

	"plantwatch/internal/model"
	"plantwatch/internal/service/imaging"
	"plantwatch/internal/service/submission"
)

// shouldSend reports whether an automatic submission is due. It is only
// called from the loop goroutine.
func (m *Manager) shouldSend(now time.Time) bool {
	if !m.cfg.AutoDetection || m.deps.Pipeline == nil || len(m.deps.Pipeline.Enabled()) == 0 {
		return false
	}
	if m.cfg.SendInterval <= 0 || m.lastSend.IsZero() {
		return true
	}
	return now.Sub(m.lastSend) >= m.cfg.SendInterval
}

// queueAuto hands job to the submission worker without blocking. A job is
// dropped while the previous one is still in flight.
func (m *Manager) queueAuto(job autoJob) {
	select {
	case m.jobs <- job:
		m.lastSend = job.at
	default:
		m.logger.Debug("Submission still in flight, skipping automatic detection")
	}
}

func (m *Manager) submitWorker(ctx context.Context) {
	defer close(m.workerDone)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-m.jobs:
			m.sendAuto(ctx, job)
		}
	}
}

func (m *Manager) sendAuto(ctx context.Context, job autoJob) {
	defer func() {
		if r := recover(); r != nil {
			m.deps.Store.RecordError(errors.New("panic in submission worker"))
			m.logger.Error("Panic in submission worker: %v", r)
		}
	}()

	data, err := imaging.EncodeJPEG(job.frame.Image, m.cfg.SubmissionJPEGQuality)
	if err != nil {
		m.deps.Store.RecordError(err)
		m.logger.Error("Failed to prepare frame for submission: %v", err)
		return
	}

	confidence := roundPtr(job.summary.Confidence)
	sub := &submission.Submission{
		Payload: model.SubmissionPayload{
			DeviceID:   m.deviceID,
			Status:     job.summary.Status,
			Confidence: confidence,
			Metadata: map[string]any{
				"objectCount": job.summary.ObjectCount,
				"avgFps":      round2(job.fps),
				"created_at":  isoTime(job.at),
			},
		},
		Image:    data,
		Filename: captureName(job.at),
	}

	m.deliver(ctx, sub, model.SourceAuto, job.summary.ObjectCount, nil, job.at)
}

// deliver submits sub, then archives the image and records history.
func (m *Manager) deliver(ctx context.Context, sub *submission.Submission, source string, count int, plants []model.PlantAssessment, at time.Time) submission.Outcome {
	var outcome submission.Outcome
	if m.deps.Pipeline != nil {
		out, err := m.deps.Pipeline.Submit(ctx, sub)
		if errors.Is(err, submission.ErrNoSinks) {
			m.logger.Warning("Cloud submission not enabled, missing credentials")
		} else if err != nil {
			m.logger.Error("Submission failed: %v", err)
		}
		outcome = out
	}

	if m.deps.Archive != nil && len(sub.Image) > 0 {
		m.deps.Archive.AddImage(sub.Image, source, sub.Payload.Status, at)
	}
	if m.deps.History != nil {
		_, err := m.deps.History.Insert(&model.DetectionRecord{
			Source:      source,
			Status:      sub.Payload.Status,
			Confidence:  sub.Payload.Confidence,
			ObjectCount: count,
			Filename:    sub.Filename,
			Plants:      plants,
			Timestamp:   at,
		})
		if err != nil {
			m.logger.Error("Failed to record detection history: %v", err)
		}
	}
	return outcome
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func captureName(t time.Time) string {
	return t.Format("20060102_150405") + ".jpg"
}
