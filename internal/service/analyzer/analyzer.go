// Package analyzer turns raw detections into plant health classifications.
package analyzer

import (
	"fmt"
	"image"
	"math"
	"strings"

	"plantwatch/internal/model"
	"plantwatch/internal/service/imaging"
)

// Options tune classification. Zero values fall back to defaults.
type Options struct {
	Threshold     float64 // minimum detection confidence, [0,1]
	IoUThreshold  float64 // subject/pest overlap above which a subject is diseased
	SubjectClass  string
	PestClass     string
	MaxPlants     int
	CropExpansion float64 // fraction of box size added on each side of a crop
	JPEGQuality   int
}

// DefaultOptions matches the deployed chrysanthemum/mealybug model.
func DefaultOptions() Options {
	return Options{
		Threshold:     0.5,
		IoUThreshold:  0.3,
		SubjectClass:  "chrysanthemum",
		PestClass:     "mealybug",
		MaxPlants:     3,
		CropExpansion: 0.1,
		JPEGQuality:   90,
	}
}

// Encoder turns an image into bytes (JPEG in production).
type Encoder func(img image.Image, quality int) ([]byte, error)

// Analyzer is stateless and safe for concurrent use.
type Analyzer struct {
	opts   Options
	encode Encoder
}

func New(opts Options, encode Encoder) *Analyzer {
	def := DefaultOptions()
	if opts.IoUThreshold <= 0 {
		opts.IoUThreshold = def.IoUThreshold
	}
	if opts.SubjectClass == "" {
		opts.SubjectClass = def.SubjectClass
	}
	if opts.PestClass == "" {
		opts.PestClass = def.PestClass
	}
	if opts.MaxPlants <= 0 {
		opts.MaxPlants = def.MaxPlants
	}
	if opts.CropExpansion <= 0 {
		opts.CropExpansion = def.CropExpansion
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = def.JPEGQuality
	}
	opts.SubjectClass = strings.ToLower(opts.SubjectClass)
	opts.PestClass = strings.ToLower(opts.PestClass)
	return &Analyzer{opts: opts, encode: encode}
}

// Threshold returns the confidence cut-off in use.
func (a *Analyzer) Threshold() float64 {
	return a.opts.Threshold
}

func (a *Analyzer) isSubject(name string) bool {
	return strings.Contains(strings.ToLower(name), a.opts.SubjectClass)
}

func (a *Analyzer) isPest(name string) bool {
	return strings.Contains(strings.ToLower(name), a.opts.PestClass)
}

// Summarize is the per-frame presence rule: any pest and any subject is
// mixed, pest alone is diseased, anything else kept is healthy. Confidence
// is the highest kept confidence scaled to 0..100.
func (a *Analyzer) Summarize(detections []model.RawDetection, labels model.Labels) model.DetectionSummary {
	var (
		hasPest, hasSubject bool
		highest             float64
		kept                int
	)
	for _, det := range detections {
		if det.Confidence < a.opts.Threshold {
			continue
		}
		kept++
		highest = math.Max(highest, det.Confidence*100)
		name := labels.Name(det.ClassID)
		if a.isPest(name) {
			hasPest = true
		}
		if a.isSubject(name) {
			hasSubject = true
		}
	}

	if kept == 0 {
		return model.DetectionSummary{Status: model.StatusNoObjects}
	}

	status := model.StatusHealthy
	switch {
	case hasPest && hasSubject:
		status = model.StatusMixed
	case hasPest:
		status = model.StatusDiseased
	}
	return model.DetectionSummary{Status: status, Confidence: &highest, ObjectCount: kept}
}

type scored struct {
	box  model.Box
	conf float64 // 0..100
}

// Assess runs the per-plant overlap rule on frame and encodes the main image
// plus one expanded crop per assessed plant.
func (a *Analyzer) Assess(frame image.Image, detections []model.RawDetection, labels model.Labels) (model.Analysis, error) {
	main, err := a.encode(frame, a.opts.JPEGQuality)
	if err != nil {
		return model.Analysis{}, fmt.Errorf("failed to encode main image: %w", err)
	}
	result := model.Analysis{Status: model.StatusNoObjects, MainImage: main}

	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()
	var subjects, pests []scored
	for _, det := range detections {
		if det.Confidence < a.opts.Threshold {
			continue
		}
		name := labels.Name(det.ClassID)
		s := scored{box: ClampBox(det.Box, w, h), conf: det.Confidence * 100}
		if a.isSubject(name) {
			subjects = append(subjects, s)
		} else if a.isPest(name) {
			pests = append(pests, s)
		}
	}

	if len(subjects) == 0 {
		return result, nil
	}
	if len(subjects) > a.opts.MaxPlants {
		subjects = subjects[:a.opts.MaxPlants]
	}

	var sum float64
	for i, plant := range subjects {
		status := model.StatusHealthy
		for _, pest := range pests {
			if IoU(plant.box, pest.box) > a.opts.IoUThreshold {
				status = model.StatusDiseased
				break
			}
		}
		conf := round2(plant.conf)
		sum += conf
		result.Plants = append(result.Plants, model.PlantAssessment{
			OrderNum:   i + 1,
			Status:     status,
			Confidence: conf,
			Box:        plant.box,
		})

		rect := ExpandBox(plant.box, a.opts.CropExpansion, w, h)
		crop, err := a.encode(imaging.Crop(frame, rect), a.opts.JPEGQuality)
		if err != nil {
			return model.Analysis{}, fmt.Errorf("failed to encode plant %d crop: %w", i+1, err)
		}
		result.Crops = append(result.Crops, crop)
	}

	result.Status = Overall(result.Plants)
	avg := round2(sum / float64(len(result.Plants)))
	result.Confidence = &avg
	return result, nil
}

// Overall folds per-plant verdicts: all healthy is healthy, all diseased is
// diseased, anything else is mixed. An empty list is noObjects.
func Overall(plants []model.PlantAssessment) model.Status {
	if len(plants) == 0 {
		return model.StatusNoObjects
	}
	healthy, diseased := 0, 0
	for _, p := range plants {
		switch p.Status {
		case model.StatusHealthy:
			healthy++
		case model.StatusDiseased:
			diseased++
		}
	}
	switch {
	case healthy == len(plants):
		return model.StatusHealthy
	case diseased == len(plants):
		return model.StatusDiseased
	}
	return model.StatusMixed
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
