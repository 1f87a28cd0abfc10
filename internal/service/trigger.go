package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"plantwatch/internal/model"
	"plantwatch/internal/service/submission"
)

// TriggerResult is the outcome of a manual detection.
type TriggerResult struct {
	Status      model.Status
	Confidence  *float64
	ObjectCount int
	Plants      []model.PlantAssessment
	Timestamp   time.Time
	Outcome     submission.Outcome
}

// TriggerDetection runs a fresh inference and the per-plant assessment on
// the latest frame and submits it with plant crops. token, when set, is
// forwarded to sinks as the caller's bearer credential. Sink failures are
// reported in the outcome, not as an error.
func (m *Manager) TriggerDetection(ctx context.Context, token string) (TriggerResult, error) {
	m.triggerMu.Lock()
	defer m.triggerMu.Unlock()

	if m.State() == StateFailed {
		return TriggerResult{}, ErrCaptureUnavailable
	}
	frame := m.deps.Store.Frame()
	if frame == nil {
		return TriggerResult{}, ErrNoFrame
	}

	detections, _, err := m.detect(ctx, frame)
	if err != nil {
		return TriggerResult{}, fmt.Errorf("failed to run inference: %w", err)
	}
	analysis, err := m.deps.Analyzer.Assess(frame.Image, detections, m.deps.Detector.Labels())
	if err != nil {
		return TriggerResult{}, fmt.Errorf("failed to analyze frame: %w", err)
	}

	now := m.clock.Now()
	crops := make([]string, 0, len(analysis.Crops))
	for _, crop := range analysis.Crops {
		crops = append(crops, base64.StdEncoding.EncodeToString(crop))
	}
	plants := analysis.Plants
	if plants == nil {
		plants = []model.PlantAssessment{}
	}

	sub := &submission.Submission{
		Payload: model.SubmissionPayload{
			DeviceID:    m.deviceID,
			Status:      analysis.Status,
			Confidence:  analysis.Confidence,
			MainImage:   base64.StdEncoding.EncodeToString(analysis.MainImage),
			PlantImages: crops,
			Metadata: map[string]any{
				"objectCount":    len(analysis.Plants),
				"created_at":     isoTime(now),
				"plant_statuses": plants,
			},
		},
		Image:    analysis.MainImage,
		Filename: captureName(now),
		Token:    token,
	}

	outcome := m.deliver(ctx, sub, model.SourceManual, len(analysis.Plants), analysis.Plants, now)
	m.logger.Info("Manual detection: %s with %d plant(s)", analysis.Status, len(analysis.Plants))

	return TriggerResult{
		Status:      analysis.Status,
		Confidence:  analysis.Confidence,
		ObjectCount: len(analysis.Plants),
		Plants:      analysis.Plants,
		Timestamp:   now,
		Outcome:     outcome,
	}, nil
}
