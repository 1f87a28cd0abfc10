package dto

import "plantwatch/internal/model"

// HistoryResponse lists recent detections with per-status totals.
type HistoryResponse struct {
	Detections []model.DetectionRecord `json:"detections"`
	Counts     map[string]int          `json:"counts"`
}

// CaptureList is a page of archived captures.
type CaptureList struct {
	Images    []model.Image `json:"images"`
	Total     int           `json:"total"`
	TotalSize int64         `json:"totalSize"`
	Limit     int           `json:"limit"`
	Offset    int           `json:"offset"`
}
