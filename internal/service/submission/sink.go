// Package submission delivers detection results to remote sinks and keeps
// failed deliveries in a durable queue for later retry.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"plantwatch/internal/model"
)

// Sink names as reported in status and pending entries.
const (
	PrimarySinkName  = "primary"
	StorageSinkName  = "storage"
	TelegramSinkName = "telegram"
)

var (
	// ErrSinkDisabled is returned by a sink that lacks configuration.
	ErrSinkDisabled = errors.New("sink is not configured")
	// ErrNoSinks is returned when no sink is enabled at all.
	ErrNoSinks = errors.New("no submission sink is configured")
)

// Submission is one detection result ready for delivery.
type Submission struct {
	Payload  model.SubmissionPayload
	Image    []byte // encoded main image
	Filename string
	Token    string // optional caller bearer token
}

// Sink is one remote destination.
type Sink interface {
	Name() string
	Enabled() bool
	// Durable sinks get failed submissions appended to the pending queue.
	Durable() bool
	Send(ctx context.Context, sub *Submission) (map[string]any, error)
}

// HTTPError is a non-2xx answer from a sink.
type HTTPError struct {
	Sink       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Sink, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Sink, e.StatusCode, e.Body)
}

func checkResponse(sink string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &HTTPError{Sink: sink, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func isJSON(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// decodeResponse parses a JSON object body, falling back to the status code.
func decodeResponse(resp *http.Response) map[string]any {
	if isJSON(resp) {
		var parsed any
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil {
			if obj, ok := parsed.(map[string]any); ok {
				return obj
			}
			return map[string]any{"data": parsed}
		}
	}
	return map[string]any{"status_code": resp.StatusCode}
}
