package imaging

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"plantwatch/internal/model"
)

var palette = []color.RGBA{
	{164, 120, 87, 255},
	{68, 148, 228, 255},
	{93, 97, 209, 255},
	{178, 182, 133, 255},
	{88, 159, 106, 255},
	{96, 202, 231, 255},
	{159, 124, 168, 255},
	{169, 162, 241, 255},
	{98, 118, 150, 255},
	{172, 176, 184, 255},
}

var overlayColor = color.RGBA{255, 255, 0, 255}

// Annotate returns a copy of img with detection boxes, class labels and the
// FPS / object-count overlay drawn on it. Only detections at or above
// threshold are drawn and counted.
func Annotate(img image.Image, detections []model.RawDetection, labels model.Labels, threshold, fps float64) *image.RGBA {
	rgba := ToRGBA(img)

	count := 0
	for _, det := range detections {
		if det.Confidence < threshold {
			continue
		}
		count++
		c := palette[((det.ClassID%len(palette))+len(palette))%len(palette)]
		b := det.Box
		drawBox(rgba, b.XMin, b.YMin, b.Width(), b.Height(), c, 2)
		label := fmt.Sprintf("%s %.0f%%", labels.Name(det.ClassID), det.Confidence*100)
		drawLabel(rgba, b.XMin, b.YMin-14, label, c)
	}

	drawLabel(rgba, 10, 6, fmt.Sprintf("FPS: %.2f", fps), overlayColor)
	drawLabel(rgba, 10, 24, fmt.Sprintf("Objects: %d", count), overlayColor)
	return rgba
}

func drawBox(img *image.RGBA, x, y, w, h int, c color.RGBA, thickness int) {
	bounds := img.Bounds()
	set := func(px, py int) {
		if image.Pt(px, py).In(bounds) {
			img.SetRGBA(px, py, c)
		}
	}

	for t := 0; t < thickness; t++ {
		for i := x; i <= x+w; i++ {
			set(i, y+t)
			set(i, y+h-t)
		}
		for j := y; j <= y+h; j++ {
			set(x+t, j)
			set(x+w-t, j)
		}
	}
}

func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 0 {
		y = 0
	}
	if x < 0 {
		x = 0
	}

	bg := color.RGBA{0, 0, 0, 180}
	textWidth := len(label) * 7
	bounds := img.Bounds()
	for dy := -2; dy < 14; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			if p := image.Pt(x+dx, y+dy); p.In(bounds) {
				img.SetRGBA(p.X, p.Y, bg)
			}
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}
