package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"plantwatch/internal/model"
)

// ReplayCapture cycles through the images of a directory at a fixed rate.
type ReplayCapture struct {
	dir      string
	interval time.Duration

	mu      sync.Mutex
	files   []string
	next    int
	seq     uint64
	last    time.Time
	started bool
}

func NewReplayCapture(dir string, fps int) *ReplayCapture {
	interval := time.Duration(0)
	if fps > 0 {
		interval = time.Second / time.Duration(fps)
	}
	return &ReplayCapture{dir: dir, interval: interval}
}

func (c *ReplayCapture) Start(ctx context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read replay directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(c.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no images in replay directory %s", c.dir)
	}
	sort.Strings(files)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = files
	c.next = 0
	c.started = true
	return nil
}

func (c *ReplayCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	return nil
}

func (c *ReplayCapture) Read(ctx context.Context, timeout time.Duration) (*model.Frame, error) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	wait := time.Until(c.last.Add(c.interval))
	c.mu.Unlock()

	if wait > 0 {
		if timeout > 0 && wait > timeout {
			wait = timeout
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil, ErrNotStarted
	}
	if time.Until(c.last.Add(c.interval)) > 0 {
		return nil, ErrFrameTimeout
	}

	path := c.files[c.next]
	c.next = (c.next + 1) % len(c.files)
	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	c.seq++
	c.last = time.Now()
	return &model.Frame{Image: img, Seq: c.seq, CapturedAt: c.last}, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
