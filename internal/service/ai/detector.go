// Package ai runs object detection on captured frames.
package ai

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"plantwatch/internal/config"
	"plantwatch/internal/logger"
	"plantwatch/internal/model"
)

// Detector produces raw detections for a frame. Implementations are not
// required to be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context, frame *model.Frame) ([]model.RawDetection, error)
	Labels() model.Labels
	Close() error
}

// NullDetector never detects anything. It stands in when no model is configured.
type NullDetector struct {
	labels model.Labels
}

func NewNullDetector(labels model.Labels) *NullDetector {
	return &NullDetector{labels: labels}
}

func (d *NullDetector) Detect(ctx context.Context, frame *model.Frame) ([]model.RawDetection, error) {
	return nil, nil
}

func (d *NullDetector) Labels() model.Labels { return d.labels }

func (d *NullDetector) Close() error { return nil }

// LoadLabels reads one class name per line; line N is class id N.
func LoadLabels(path string) (model.Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()

	labels := make(model.Labels)
	scanner := bufio.NewScanner(f)
	id := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels[id] = line
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return labels, nil
}

// NewDetector builds the configured backend. A backend that cannot be
// initialized degrades to a NullDetector so capture and streaming keep working.
func NewDetector(cfg config.DetectorConfig, log *logger.Logger) Detector {
	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		log.Warning("Could not load labels from %s: %v", cfg.LabelsPath, err)
		labels = model.Labels{0: cfg.SubjectClass, 1: cfg.PestClass}
	}

	switch cfg.Backend {
	case "none", "":
		log.Warning("Detection disabled (DETECTOR_BACKEND=%q)", cfg.Backend)
	case "http":
		if cfg.URL == "" {
			log.Warning("DETECTOR_URL is empty, detection disabled")
			break
		}
		log.Info("Using remote detector at %s", cfg.URL)
		return NewHTTPDetector(cfg.URL, labels, cfg.ConfThreshold)
	case "gocv":
		d, err := NewGoCVDetector(cfg.ModelPath, labels, cfg.ConfThreshold)
		if err != nil {
			log.Warning("Could not initialize detection network: %v", err)
			break
		}
		log.Info("Detection network initialized from %s", cfg.ModelPath)
		return d
	default:
		log.Warning("Unknown DETECTOR_BACKEND %q, detection disabled", cfg.Backend)
	}
	return NewNullDetector(labels)
}
