//go:build gocv
// +build gocv

package ai

import (
	"context"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"plantwatch/internal/model"
)

const (
	inputSize    = 640
	nmsThreshold = 0.45
)

// GoCVDetector runs an ONNX YOLOv8 export through the OpenCV DNN module.
type GoCVDetector struct {
	net           gocv.Net
	labels        model.Labels
	confThreshold float32
}

func NewGoCVDetector(modelPath string, labels model.Labels, confThreshold float64) (*GoCVDetector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network")
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable target: %w", err)
	}

	return &GoCVDetector{net: net, labels: labels, confThreshold: float32(confThreshold)}, nil
}

func (d *GoCVDetector) Detect(ctx context.Context, frame *model.Frame) ([]model.RawDetection, error) {
	mat, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(inputSize, inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	// YOLOv8 output is [1, 4+classes, candidates]; work on candidates x (4+classes).
	dims := out.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	rows := out.Reshape(1, dims[1])
	defer rows.Close()
	preds := gocv.NewMat()
	defer preds.Close()
	gocv.Transpose(rows, &preds)

	xFactor := float32(mat.Cols()) / inputSize
	yFactor := float32(mat.Rows()) / inputSize

	var (
		boxes   []image.Rectangle
		scores  []float32
		classes []int
	)
	for i := 0; i < preds.Rows(); i++ {
		best, bestID := float32(0), -1
		for c := 4; c < preds.Cols(); c++ {
			if s := preds.GetFloatAt(i, c); s > best {
				best, bestID = s, c-4
			}
		}
		if bestID < 0 || best < d.confThreshold {
			continue
		}
		cx, cy := preds.GetFloatAt(i, 0), preds.GetFloatAt(i, 1)
		w, h := preds.GetFloatAt(i, 2), preds.GetFloatAt(i, 3)
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*xFactor), int((cy-h/2)*yFactor),
			int((cx+w/2)*xFactor), int((cy+h/2)*yFactor),
		))
		scores = append(scores, best)
		classes = append(classes, bestID)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, d.confThreshold, nmsThreshold)
	detections := make([]model.RawDetection, 0, len(keep))
	for _, idx := range keep {
		r := boxes[idx]
		detections = append(detections, model.RawDetection{
			ClassID:    classes[idx],
			Confidence: float64(scores[idx]),
			Box:        model.Box{XMin: r.Min.X, YMin: r.Min.Y, XMax: r.Max.X, YMax: r.Max.Y},
		})
	}
	return detections, nil
}

func (d *GoCVDetector) Labels() model.Labels { return d.labels }

func (d *GoCVDetector) Close() error {
	return d.net.Close()
}
