package model

// DetectionSummary is the per-frame classification.
// Confidence is nil whenever Status is StatusNoObjects.
type DetectionSummary struct {
	Status      Status   `json:"status"`
	Confidence  *float64 `json:"confidence"`
	ObjectCount int      `json:"objectCount"`
}

// PlantAssessment is the verdict for one subject detection.
type PlantAssessment struct {
	OrderNum   int     `json:"order_num"`
	Status     Status  `json:"status"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"-"`
}

// Analysis is the detailed, per-plant result of a frame.
type Analysis struct {
	Status     Status
	Confidence *float64
	Plants     []PlantAssessment
	MainImage  []byte
	Crops      [][]byte
}
