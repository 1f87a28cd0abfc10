package model

import "time"

// DetectionRecord is one submitted detection kept in local history.
type DetectionRecord struct {
	ID          int64             `json:"id"`
	Source      string            `json:"source"`
	Status      Status            `json:"status"`
	Confidence  *float64          `json:"confidence"`
	ObjectCount int               `json:"objectCount"`
	Filename    string            `json:"filename,omitempty"`
	Plants      []PlantAssessment `json:"plants,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

const (
	SourceAuto   = "auto"
	SourceManual = "manual"
)
