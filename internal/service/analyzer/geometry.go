package analyzer

import (
	"image"

	"plantwatch/internal/model"
)

// ClampBox limits every coordinate to [0,w-1] x [0,h-1].
func ClampBox(b model.Box, w, h int) model.Box {
	return model.Box{
		XMin: clamp(b.XMin, 0, w-1),
		YMin: clamp(b.YMin, 0, h-1),
		XMax: clamp(b.XMax, 0, w-1),
		YMax: clamp(b.YMax, 0, h-1),
	}
}

// IoU is the intersection area over the union area of two boxes.
// Non-overlapping boxes and an empty union yield 0.
func IoU(a, b model.Box) float64 {
	ixMin := max(a.XMin, b.XMin)
	iyMin := max(a.YMin, b.YMin)
	ixMax := min(a.XMax, b.XMax)
	iyMax := min(a.YMax, b.YMax)
	if ixMax < ixMin || iyMax < iyMin {
		return 0
	}

	inter := (ixMax - ixMin) * (iyMax - iyMin)
	union := (a.XMax-a.XMin)*(a.YMax-a.YMin) + (b.XMax-b.XMin)*(b.YMax-b.YMin) - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// ExpandBox grows b by factor of its width/height on each side and clamps
// the result to a w x h frame. The result is never empty inside a non-empty frame.
func ExpandBox(b model.Box, factor float64, w, h int) image.Rectangle {
	bw := float64(b.Width())
	bh := float64(b.Height())
	r := image.Rect(
		max(0, int(float64(b.XMin)-bw*factor)),
		max(0, int(float64(b.YMin)-bh*factor)),
		min(w, int(float64(b.XMax)+bw*factor)),
		min(h, int(float64(b.YMax)+bh*factor)),
	)
	if r.Empty() && w > 0 && h > 0 {
		x := clamp(b.XMin, 0, w-1)
		y := clamp(b.YMin, 0, h-1)
		r = image.Rect(x, y, x+1, y+1)
	}
	return r
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
