//go:build gocv
// +build gocv

package camera

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"plantwatch/internal/model"
)

// GoCVCapture reads frames from a V4L2 device or stream URL. A background
// goroutine keeps only the newest frame so Read never returns stale data.
type GoCVCapture struct {
	source string
	width  int
	height int
	fps    int

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	frames chan *model.Frame
	stop   chan struct{}
	done   chan struct{}
	seq    uint64
}

func NewGoCVCapture(source string, width, height, fps int) *GoCVCapture {
	return &GoCVCapture{source: source, width: width, height: height, fps: fps}
}

func (c *GoCVCapture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap != nil {
		return nil
	}

	var device interface{} = c.source
	if idx, err := strconv.Atoi(c.source); err == nil {
		device = idx
	}
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return fmt.Errorf("failed to open camera %s: %w", c.source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("camera %s is not available", c.source)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.cap = vc
	c.frames = make(chan *model.Frame, 1)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.grab(vc, c.frames, c.stop, c.done)
	return nil
}

func (c *GoCVCapture) grab(vc *gocv.VideoCapture, frames chan *model.Frame, stop, done chan struct{}) {
	defer close(done)
	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if ok := vc.Read(&mat); !ok || mat.Empty() {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		img, err := mat.ToImage()
		if err != nil {
			continue
		}

		c.seq++
		frame := &model.Frame{Image: img, Seq: c.seq, CapturedAt: time.Now()}
		select {
		case frames <- frame:
		default:
			select {
			case <-frames:
			default:
			}
			frames <- frame
		}
	}
}

func (c *GoCVCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return nil
	}

	close(c.stop)
	<-c.done
	err := c.cap.Close()
	c.cap = nil
	return err
}

func (c *GoCVCapture) Read(ctx context.Context, timeout time.Duration) (*model.Frame, error) {
	c.mu.Lock()
	frames, stop := c.frames, c.stop
	running := c.cap != nil
	c.mu.Unlock()
	if !running {
		return nil, ErrNotStarted
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case frame := <-frames:
		return frame, nil
	case <-stop:
		return nil, ErrNotStarted
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, ErrFrameTimeout
	}
}
