package model

import (
	"image"
	"strconv"
	"time"
)

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	XMin int `json:"xmin"`
	YMin int `json:"ymin"`
	XMax int `json:"xmax"`
	YMax int `json:"ymax"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() int { return b.XMax - b.XMin }

// Height returns the vertical extent of the box.
func (b Box) Height() int { return b.YMax - b.YMin }

// Area returns the box area, zero for degenerate boxes.
func (b Box) Area() int {
	if b.XMax <= b.XMin || b.YMax <= b.YMin {
		return 0
	}
	return b.Width() * b.Height()
}

// Rect converts the box into an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.XMin, b.YMin, b.XMax, b.YMax)
}

// RawDetection is one inference result for a frame.
type RawDetection struct {
	Box        Box     `json:"box"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
}

// Labels maps class ids to class names.
type Labels map[int]string

// Name returns the class name, or the numeric id when the class is unknown.
func (l Labels) Name(classID int) string {
	if name, ok := l[classID]; ok {
		return name
	}
	return strconv.Itoa(classID)
}

// Frame is a captured image. Frames are never mutated after capture.
type Frame struct {
	Image      image.Image
	Seq        uint64
	CapturedAt time.Time
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Image.Bounds().Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Image.Bounds().Dy() }
