package dto

import "plantwatch/internal/model"

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	DeviceID             string                `json:"deviceId"`
	Status               model.Status          `json:"status"`
	Confidence           *float64              `json:"confidence"`
	ObjectCount          int                   `json:"objectCount"`
	AvgFPS               float64               `json:"avgFps"`
	LastFrameTs          *float64              `json:"lastFrameTs"`
	LastSendResponse     map[string]any        `json:"lastSendResponse"`
	LastSendError        *string               `json:"lastSendError"`
	SupabaseLastResponse map[string]any        `json:"supabaseLastResponse"`
	SupabaseLastError    *string               `json:"supabaseLastError"`
	Sinks                map[string]SinkStatus `json:"sinks"`
	LastError            *string               `json:"lastError"`
	LoopState            string                `json:"loopState"`
	SendInterval         float64               `json:"sendInterval"`
	Endpoint             string                `json:"endpoint"`
}

// SinkStatus is the latest outcome of one sink.
type SinkStatus struct {
	Enabled  bool           `json:"enabled"`
	Response map[string]any `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
	At       *float64       `json:"at,omitempty"`
}

// DetectResponse is the body of a successful POST /detect.
type DetectResponse struct {
	Success     bool                    `json:"success"`
	Status      model.Status            `json:"status"`
	Confidence  *float64                `json:"confidence"`
	ObjectCount int                     `json:"objectCount"`
	Plants      []model.PlantAssessment `json:"plants,omitempty"`
	Timestamp   float64                 `json:"timestamp"`
	Delivered   []string                `json:"delivered,omitempty"`
	Errors      map[string]string       `json:"errors,omitempty"`
}

// ErrorResponse is returned by every failing endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// LiveStatus is pushed to websocket viewers after every published frame.
type LiveStatus struct {
	Status      model.Status `json:"status"`
	Confidence  *float64     `json:"confidence"`
	ObjectCount int          `json:"objectCount"`
	AvgFPS      float64      `json:"avgFps"`
	Timestamp   float64      `json:"timestamp"`
	Seq         uint64       `json:"seq"`
	LoopState   string       `json:"loopState"`
}
