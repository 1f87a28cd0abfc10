//go:build !gocv
// +build !gocv

package camera

import (
	"context"
	"errors"
	"time"

	"plantwatch/internal/model"
)

var errGoCVDisabled = errors.New("gocv build tag is not enabled")

// GoCVCapture is a placeholder when built without OpenCV.
type GoCVCapture struct {
	source string
}

func NewGoCVCapture(source string, width, height, fps int) *GoCVCapture {
	return &GoCVCapture{source: source}
}

func (c *GoCVCapture) Start(ctx context.Context) error {
	return errGoCVDisabled
}

func (c *GoCVCapture) Stop() error {
	return nil
}

func (c *GoCVCapture) Read(ctx context.Context, timeout time.Duration) (*model.Frame, error) {
	return nil, ErrNotStarted
}
