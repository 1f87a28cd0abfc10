package submission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"plantwatch/internal/config"
)

// StorageSink uploads the main image to object storage and inserts a row
// through the REST interface of a Supabase-compatible backend.
type StorageSink struct {
	url    string
	table  string
	apiKey string
	bucket string
	prefix string
	client *http.Client
	now    func() time.Time
}

func NewStorageSink(cfg config.StorageSinkConfig) *StorageSink {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "detections"
	}
	return &StorageSink{
		url:    strings.TrimRight(cfg.URL, "/"),
		table:  cfg.Table,
		apiKey: cfg.APIKey,
		bucket: cfg.Bucket,
		prefix: prefix,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

func (s *StorageSink) Name() string { return StorageSinkName }

func (s *StorageSink) Durable() bool { return true }

func (s *StorageSink) Enabled() bool {
	return s.url != "" && s.table != "" && s.apiKey != "" && s.bucket != ""
}

func (s *StorageSink) Send(ctx context.Context, sub *Submission) (map[string]any, error) {
	if !s.Enabled() {
		return nil, ErrSinkDisabled
	}
	deviceID := sub.Payload.DeviceID
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required for storage insert")
	}

	image := sub.Image
	if len(image) == 0 && sub.Payload.MainImage != "" {
		decoded, err := base64.StdEncoding.DecodeString(sub.Payload.MainImage)
		if err != nil {
			return nil, fmt.Errorf("failed to decode main image: %w", err)
		}
		image = decoded
	}

	var imageURL any
	if len(image) > 0 {
		path := s.objectPath(deviceID, sub.Filename)
		if err := s.upload(ctx, path, image); err != nil {
			return nil, err
		}
		imageURL = s.PublicURL(path)
	}

	row := map[string]any{
		"device_id":  deviceID,
		"status":     sub.Payload.Status,
		"confidence": sub.Payload.Confidence,
		"metadata":   storageMetadata(sub),
		"image_url":  imageURL,
	}
	data, err := s.insert(ctx, row)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "success", "data": data, "image_url": imageURL}, nil
}

// storageMetadata mirrors the payload metadata with the row-specific keys
// captured_at and diseaseName, dropping empty values.
func storageMetadata(sub *Submission) map[string]any {
	meta := make(map[string]any, len(sub.Payload.Metadata)+2)
	for k, v := range sub.Payload.Metadata {
		meta[k] = v
	}
	if _, ok := meta["captured_at"]; !ok {
		meta["captured_at"] = meta["created_at"]
	}
	if _, ok := meta["diseaseName"]; !ok {
		meta["diseaseName"] = sub.Payload.Status.String()
	}
	for k, v := range meta {
		if v == nil {
			delete(meta, k)
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// objectPath builds {prefix}/{device-slug}/{stem}_main_{uuid}{ext}.
func (s *StorageSink) objectPath(deviceID, filename string) string {
	slug := strings.ReplaceAll(strings.TrimSpace(deviceID), " ", "-")
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	if stem == "" {
		stem = strconv.FormatInt(s.now().Unix(), 10)
	}
	if ext == "" {
		ext = ".jpg"
	}
	unique := strings.ReplaceAll(uuid.NewString(), "-", "")
	prefix := strings.Trim(s.prefix, "/")
	return fmt.Sprintf("%s/%s/%s_main_%s%s", prefix, slug, stem, unique, ext)
}

// PublicURL is the public download link of an uploaded object.
func (s *StorageSink) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.bucket, path)
}

func (s *StorageSink) authorize(req *http.Request) {
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
}

func (s *StorageSink) upload(ctx context.Context, path string, image []byte) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()
	return checkResponse(s.Name(), resp)
}

func (s *StorageSink) insert(ctx context.Context, row map[string]any) (any, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}
	url := fmt.Sprintf("%s/rest/v1/%s", s.url, s.table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build insert request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to insert row: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(s.Name(), resp); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read insert response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode insert response: %w", err)
	}
	return data, nil
}
