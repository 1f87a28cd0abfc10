package submission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"plantwatch/internal/config"
)

// PrimarySink posts the full payload, images included, to the device
// ingestion endpoint.
type PrimarySink struct {
	endpoint string
	deviceID string
	apiKey   string
	anonKey  string
	client   *http.Client
}

func NewPrimarySink(cfg config.PrimarySinkConfig) *PrimarySink {
	return &PrimarySink{
		endpoint: cfg.Endpoint,
		deviceID: cfg.DeviceID,
		apiKey:   cfg.APIKey,
		anonKey:  cfg.AnonKey,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *PrimarySink) Name() string { return PrimarySinkName }

func (s *PrimarySink) Durable() bool { return false }

func (s *PrimarySink) Enabled() bool {
	return s.endpoint != "" && s.apiKey != "" && s.deviceID != "" && s.anonKey != ""
}

// Endpoint returns the configured ingestion URL.
func (s *PrimarySink) Endpoint() string { return s.endpoint }

func (s *PrimarySink) Send(ctx context.Context, sub *Submission) (map[string]any, error) {
	if !s.Enabled() {
		return nil, ErrSinkDisabled
	}

	payload := sub.Payload
	if payload.MainImage == "" && len(sub.Image) > 0 {
		payload.MainImage = base64.StdEncoding.EncodeToString(sub.Image)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	token := sub.Token
	if token == "" {
		token = s.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("X-Raspberry-Pi-Key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to post detection: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(s.Name(), resp); err != nil {
		return nil, err
	}
	return decodeResponse(resp), nil
}
