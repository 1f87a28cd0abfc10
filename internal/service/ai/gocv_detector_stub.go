//go:build !gocv
// +build !gocv

package ai

import (
	"context"
	"errors"

	"plantwatch/internal/model"
)

// GoCVDetector is unavailable without the gocv build tag.
type GoCVDetector struct{}

func NewGoCVDetector(modelPath string, labels model.Labels, confThreshold float64) (*GoCVDetector, error) {
	return nil, errors.New("gocv build tag is not enabled")
}

func (d *GoCVDetector) Detect(ctx context.Context, frame *model.Frame) ([]model.RawDetection, error) {
	return nil, errors.New("gocv build tag is not enabled")
}

func (d *GoCVDetector) Labels() model.Labels { return nil }

func (d *GoCVDetector) Close() error { return nil }
