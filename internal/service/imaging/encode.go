// Package imaging encodes, crops and annotates frames.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

// EncodeJPEG encodes img at the given quality (1..100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("failed to encode frame: nil image")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64JPEG encodes img as JPEG and returns standard base64 text.
func EncodeBase64JPEG(img image.Image, quality int) (string, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of img inside r, intersected with the image bounds.
// The returned image may share pixels with img.
func Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Add(img.Bounds().Min).Intersect(img.Bounds())
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// ToRGBA copies img into a new RGBA image with origin (0,0).
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
