package model

import (
	"encoding/json"
	"math"
	"time"
)

// SubmissionPayload is the JSON body delivered to remote sinks.
type SubmissionPayload struct {
	DeviceID    string         `json:"device_id"`
	Status      Status         `json:"status"`
	Confidence  *float64       `json:"confidence"`
	MainImage   string         `json:"main_image,omitempty"`
	PlantImages []string       `json:"plant_images,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// PendingSubmission is a delivery that failed and waits in the durable queue.
type PendingSubmission struct {
	ID        string            `json:"id,omitempty"`
	Sink      string            `json:"sink,omitempty"`
	Payload   SubmissionPayload `json:"payload"`
	ImageB64  string            `json:"image_b64,omitempty"`
	Filename  string            `json:"filename"`
	Timestamp time.Time         `json:"-"`
	Error     string            `json:"error,omitempty"`
	Retries   int               `json:"retries"`
}

// MarshalJSON writes the timestamp as unix seconds under "ts".
func (p PendingSubmission) MarshalJSON() ([]byte, error) {
	type Alias PendingSubmission
	return json.Marshal(&struct {
		TS float64 `json:"ts"`
		Alias
	}{
		TS:    float64(p.Timestamp.UnixNano()) / float64(time.Second),
		Alias: (Alias)(p),
	})
}

func (p *PendingSubmission) UnmarshalJSON(data []byte) error {
	type Alias PendingSubmission
	aux := &struct {
		TS float64 `json:"ts"`
		*Alias
	}{Alias: (*Alias)(p)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	sec, frac := math.Modf(aux.TS)
	p.Timestamp = time.Unix(int64(sec), int64(frac*float64(time.Second)))
	return nil
}

// CleanupStats counts what pending-queue maintenance removed.
type CleanupStats struct {
	TotalBefore    int `json:"total_before"`
	RemovedOld     int `json:"removed_old"`
	RemovedRetries int `json:"removed_retries"`
	RemovedExcess  int `json:"removed_excess"`
	TotalAfter     int `json:"total_after"`
}

// ImageCleanupStats counts what the image janitor removed.
type ImageCleanupStats struct {
	TotalFiles   int   `json:"total_files"`
	RemovedOld   int   `json:"removed_old"`
	RemovedCount int   `json:"removed_count"`
	RemovedSize  int   `json:"removed_size"`
	FreedBytes   int64 `json:"freed_bytes"`
	Remaining    int   `json:"remaining"`
}
