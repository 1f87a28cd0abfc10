package ai

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantwatch/internal/config"
	"plantwatch/internal/logger"
	"plantwatch/internal/model"
)

func testFrame() *model.Frame {
	return &model.Frame{Image: image.NewRGBA(image.Rect(0, 0, 64, 48)), Seq: 1}
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("chrysanthemum\n\nmealybug\n"), 0644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	require.Equal(t, model.Labels{0: "chrysanthemum", 1: "mealybug"}, labels)

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestNewDetector_DegradesToNull(t *testing.T) {
	cfg := config.DetectorConfig{
		Backend:      "gocv",
		ModelPath:    filepath.Join(t.TempDir(), "missing.onnx"),
		LabelsPath:   filepath.Join(t.TempDir(), "missing.txt"),
		SubjectClass: "chrysanthemum",
		PestClass:    "mealybug",
	}

	d := NewDetector(cfg, logger.Discard())
	_, ok := d.(*NullDetector)
	require.True(t, ok)
	require.Equal(t, "mealybug", d.Labels().Name(1))

	dets, err := d.Detect(context.Background(), testFrame())
	require.NoError(t, err)
	require.Empty(t, dets)
}

func TestNewDetector_HTTPWithoutURL(t *testing.T) {
	d := NewDetector(config.DetectorConfig{Backend: "http"}, logger.Discard())
	_, ok := d.(*NullDetector)
	require.True(t, ok)
}

func TestHTTPDetector_Detect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "0.500", r.FormValue("conf_threshold"))
		if file, _, err := r.FormFile("file"); assert.NoError(t, err) {
			file.Close()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"class": "chrysanthemum", "class_id": 0, "confidence": 0.91, "bbox": []float64{1, 2, 30.7, 40}},
				{"class": "bad", "class_id": 5, "confidence": 0.5, "bbox": []float64{1, 2}},
			},
		})
	}))
	defer server.Close()

	d := NewHTTPDetector(server.URL+"/", model.Labels{1: "mealybug"}, 0.5)
	dets, err := d.Detect(context.Background(), testFrame())

	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, model.Box{XMin: 1, YMin: 2, XMax: 30, YMax: 40}, dets[0].Box)
	require.Equal(t, 0.91, dets[0].Confidence)
	require.Equal(t, "chrysanthemum", d.Labels().Name(0))
	require.Equal(t, "mealybug", d.Labels().Name(1))
	require.NoError(t, d.Close())
}

func TestHTTPDetector_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPDetector(server.URL, nil, 0.5).Detect(context.Background(), testFrame())
	require.ErrorContains(t, err, "503")
	require.ErrorContains(t, err, "model not loaded")
}
