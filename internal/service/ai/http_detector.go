package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"plantwatch/internal/model"
	"plantwatch/internal/service/imaging"
)

// HTTPDetector sends frames to a remote YOLO service.
type HTTPDetector struct {
	endpoint      string
	client        *http.Client
	confThreshold float64

	mu     sync.RWMutex
	labels model.Labels
}

type remoteDetection struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

type remoteResult struct {
	Detections []remoteDetection `json:"detections"`
}

func NewHTTPDetector(endpoint string, labels model.Labels, confThreshold float64) *HTTPDetector {
	copied := make(model.Labels, len(labels))
	for id, name := range labels {
		copied[id] = name
	}
	return &HTTPDetector{
		endpoint:      strings.TrimRight(endpoint, "/"),
		client:        &http.Client{Timeout: 10 * time.Second},
		confThreshold: confThreshold,
		labels:        copied,
	}
}

func (d *HTTPDetector) Detect(ctx context.Context, frame *model.Frame) ([]model.RawDetection, error) {
	data, err := imaging.EncodeJPEG(frame.Image, 90)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	fw.Write(data)
	w.WriteField("conf_threshold", fmt.Sprintf("%.3f", d.confThreshold))
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach detector: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result remoteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode detector response: %w", err)
	}

	detections := make([]model.RawDetection, 0, len(result.Detections))
	d.mu.Lock()
	for _, r := range result.Detections {
		if len(r.BBox) != 4 {
			continue
		}
		if r.Class != "" {
			d.labels[r.ClassID] = r.Class
		}
		detections = append(detections, model.RawDetection{
			ClassID:    r.ClassID,
			Confidence: r.Confidence,
			Box: model.Box{
				XMin: int(r.BBox[0]),
				YMin: int(r.BBox[1]),
				XMax: int(r.BBox[2]),
				YMax: int(r.BBox[3]),
			},
		})
	}
	d.mu.Unlock()
	return detections, nil
}

// Labels returns a copy of the known class names, including names learned from responses.
func (d *HTTPDetector) Labels() model.Labels {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(model.Labels, len(d.labels))
	for id, name := range d.labels {
		out[id] = name
	}
	return out
}

func (d *HTTPDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
