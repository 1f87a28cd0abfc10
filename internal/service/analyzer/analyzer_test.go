package analyzer

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"plantwatch/internal/model"
)

var labels = model.Labels{0: "Chrysanthemum", 1: "mealybug", 2: "leaf"}

func det(class int, conf float64, x1, y1, x2, y2 int) model.RawDetection {
	return model.RawDetection{ClassID: class, Confidence: conf, Box: model.Box{XMin: x1, YMin: y1, XMax: x2, YMax: y2}}
}

// recordingEncoder returns the bounds of each encoded image as its "bytes".
type recordingEncoder struct {
	bounds []image.Rectangle
	failAt int
}

func (r *recordingEncoder) encode(img image.Image, _ int) ([]byte, error) {
	r.bounds = append(r.bounds, img.Bounds())
	if r.failAt > 0 && len(r.bounds) == r.failAt {
		return nil, errors.New("encoder broke")
	}
	return []byte{byte(len(r.bounds))}, nil
}

func frame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	return img
}

func newAnalyzer(enc *recordingEncoder) *Analyzer {
	return New(DefaultOptions(), enc.encode)
}

func TestIoU(t *testing.T) {
	a := model.Box{XMin: 0, YMin: 0, XMax: 100, YMax: 100}
	b := model.Box{XMin: 50, YMin: 50, XMax: 150, YMax: 150}

	require.InDelta(t, 2500.0/17500.0, IoU(a, b), 1e-9)
	require.InDelta(t, 0.1429, IoU(a, b), 1e-4)
	require.Equal(t, 1.0, IoU(a, a))
	require.Equal(t, 0.0, IoU(a, model.Box{XMin: 200, YMin: 200, XMax: 300, YMax: 300}))
	require.Equal(t, 0.0, IoU(model.Box{}, model.Box{}), "empty union")
}

func TestIoU_IdenticalBoxes(t *testing.T) {
	for _, b := range []model.Box{
		{XMin: 1, YMin: 1, XMax: 2, YMax: 2},
		{XMin: 10, YMin: 20, XMax: 640, YMax: 480},
		{XMin: 0, YMin: 0, XMax: 1279, YMax: 719},
	} {
		require.Equal(t, 1.0, IoU(b, b))
	}
}

func TestIoU_DisjointBoxes(t *testing.T) {
	a := model.Box{XMin: 0, YMin: 0, XMax: 10, YMax: 10}
	for _, b := range []model.Box{
		{XMin: 11, YMin: 0, XMax: 20, YMax: 10},
		{XMin: 0, YMin: 11, XMax: 10, YMax: 20},
		{XMin: 50, YMin: 50, XMax: 60, YMax: 60},
	} {
		require.Equal(t, 0.0, IoU(a, b))
		require.Equal(t, 0.0, IoU(b, a))
	}
}

func TestClampBox(t *testing.T) {
	got := ClampBox(model.Box{XMin: -5, YMin: -1, XMax: 700, YMax: 500}, 640, 480)
	require.Equal(t, model.Box{XMin: 0, YMin: 0, XMax: 639, YMax: 479}, got)
}

func TestExpandBox(t *testing.T) {
	r := ExpandBox(model.Box{XMin: 100, YMin: 100, XMax: 200, YMax: 150}, 0.1, 640, 480)
	require.Equal(t, image.Rect(90, 95, 210, 155), r)

	edge := ExpandBox(model.Box{XMin: 0, YMin: 0, XMax: 639, YMax: 479}, 0.1, 640, 480)
	require.Equal(t, image.Rect(0, 0, 640, 480), edge)

	degenerate := ExpandBox(model.Box{XMin: 639, YMin: 479, XMax: 639, YMax: 479}, 0.1, 640, 480)
	require.False(t, degenerate.Empty())
}

func TestSummarize(t *testing.T) {
	a := newAnalyzer(&recordingEncoder{})

	tests := []struct {
		name       string
		detections []model.RawDetection
		status     model.Status
		confidence float64
		count      int
	}{
		{"nil", nil, model.StatusNoObjects, 0, 0},
		{"all below threshold", []model.RawDetection{det(0, 0.2, 0, 0, 5, 5), det(1, 0.49, 0, 0, 5, 5)}, model.StatusNoObjects, 0, 0},
		{"subject only", []model.RawDetection{det(0, 0.8, 0, 0, 5, 5)}, model.StatusHealthy, 80, 1},
		{"pest only", []model.RawDetection{det(1, 0.7, 0, 0, 5, 5)}, model.StatusDiseased, 70, 1},
		{"both anywhere", []model.RawDetection{det(0, 0.6, 0, 0, 5, 5), det(1, 0.9, 100, 100, 110, 110)}, model.StatusMixed, 90, 2},
		{"other class", []model.RawDetection{det(2, 0.55, 0, 0, 5, 5)}, model.StatusHealthy, 55, 1},
		{"threshold inclusive", []model.RawDetection{det(0, 0.5, 0, 0, 5, 5)}, model.StatusHealthy, 50, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := a.Summarize(tt.detections, labels)
			require.Equal(t, tt.status, s.Status)
			require.Equal(t, tt.count, s.ObjectCount)
			if tt.status == model.StatusNoObjects {
				require.Nil(t, s.Confidence)
				return
			}
			require.NotNil(t, s.Confidence)
			require.InDelta(t, tt.confidence, *s.Confidence, 1e-9)
		})
	}
}

func TestSummarize_UnknownClassUsesID(t *testing.T) {
	a := newAnalyzer(&recordingEncoder{})
	s := a.Summarize([]model.RawDetection{det(7, 0.9, 0, 0, 5, 5)}, nil)
	require.Equal(t, model.StatusHealthy, s.Status)
}

func TestAssess_OverlapBelowThresholdIsHealthy(t *testing.T) {
	enc := &recordingEncoder{}
	a := newAnalyzer(enc)

	res, err := a.Assess(frame(640, 480), []model.RawDetection{
		det(0, 0.91234, 0, 0, 100, 100),
		det(1, 0.8, 50, 50, 150, 150),
	}, labels)

	require.NoError(t, err)
	require.Equal(t, model.StatusHealthy, res.Status)
	require.Len(t, res.Plants, 1)
	require.Equal(t, 1, res.Plants[0].OrderNum)
	require.Equal(t, model.StatusHealthy, res.Plants[0].Status)
	require.Equal(t, 91.23, res.Plants[0].Confidence)
	require.Equal(t, 91.23, *res.Confidence)
	require.Len(t, res.Crops, 1)
	require.Equal(t, []byte{1}, res.MainImage)
	require.Equal(t, image.Rect(0, 0, 640, 480), enc.bounds[0])
	require.Equal(t, image.Rect(0, 0, 110, 110), enc.bounds[1])
}

func TestAssess_MixedAndLimit(t *testing.T) {
	a := newAnalyzer(&recordingEncoder{})

	res, err := a.Assess(frame(640, 480), []model.RawDetection{
		det(0, 0.90, 0, 0, 100, 100),
		det(0, 0.80, 200, 200, 300, 300),
		det(1, 0.95, 210, 210, 290, 290),
		det(0, 0.70, 400, 0, 500, 100),
		det(0, 0.60, 500, 300, 600, 400),
	}, labels)

	require.NoError(t, err)
	require.Len(t, res.Plants, 3)
	require.Len(t, res.Crops, 3)
	require.Equal(t, model.StatusHealthy, res.Plants[0].Status)
	require.Equal(t, model.StatusDiseased, res.Plants[1].Status)
	require.Equal(t, model.StatusHealthy, res.Plants[2].Status)
	require.Equal(t, []int{1, 2, 3}, []int{res.Plants[0].OrderNum, res.Plants[1].OrderNum, res.Plants[2].OrderNum})
	require.Equal(t, model.StatusMixed, res.Status)
	require.Equal(t, 80.0, *res.Confidence)
}

func TestAssess_NoSubjects(t *testing.T) {
	a := newAnalyzer(&recordingEncoder{})

	res, err := a.Assess(frame(64, 64), []model.RawDetection{det(1, 0.9, 0, 0, 10, 10)}, labels)

	require.NoError(t, err)
	require.Equal(t, model.StatusNoObjects, res.Status)
	require.Nil(t, res.Confidence)
	require.Empty(t, res.Plants)
	require.Empty(t, res.Crops)
	require.NotEmpty(t, res.MainImage)
}

func TestAssess_EncoderFailure(t *testing.T) {
	a := newAnalyzer(&recordingEncoder{failAt: 2})

	_, err := a.Assess(frame(64, 64), []model.RawDetection{det(0, 0.9, 0, 0, 10, 10)}, labels)
	require.ErrorContains(t, err, "plant 1 crop")
}

func TestOverall_Property(t *testing.T) {
	verdicts := []model.Status{model.StatusHealthy, model.StatusDiseased}

	var walk func(plants []model.PlantAssessment)
	walk = func(plants []model.PlantAssessment) {
		if len(plants) > 0 {
			allHealthy, allDiseased := true, true
			for _, p := range plants {
				allHealthy = allHealthy && p.Status == model.StatusHealthy
				allDiseased = allDiseased && p.Status == model.StatusDiseased
			}
			got := Overall(plants)
			switch {
			case allHealthy:
				require.Equal(t, model.StatusHealthy, got)
			case allDiseased:
				require.Equal(t, model.StatusDiseased, got)
			default:
				require.Equal(t, model.StatusMixed, got)
			}
		}
		if len(plants) == 4 {
			return
		}
		for _, v := range verdicts {
			walk(append(append([]model.PlantAssessment(nil), plants...), model.PlantAssessment{Status: v}))
		}
	}
	walk(nil)

	require.Equal(t, model.StatusNoObjects, Overall(nil))
}
