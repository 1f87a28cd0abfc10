package logger

import (
	"fmt"
	"os"
	"sync"
)

// rotatingFile is an append-only file that is shifted to name.1..name.N
// once it grows past maxSize.
type rotatingFile struct {
	path    string
	maxSize int64
	backups int
	file    *os.File
	size    int64
	mu      sync.Mutex
}

func openRotatingFile(path string, maxSize int64, backups int) (*rotatingFile, error) {
	r := &rotatingFile{path: path, maxSize: maxSize, backups: backups}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open() error {
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	r.file = file
	r.size = info.Size()
	return nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSize > 0 && r.size+int64(len(p)) > r.maxSize && r.size > 0 {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate %s: %w", r.path, err)
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate must be called with r.mu held.
func (r *rotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	if r.backups > 0 {
		for i := r.backups - 1; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d", r.path, i)
			if _, err := os.Stat(from); err == nil {
				os.Rename(from, fmt.Sprintf("%s.%d", r.path, i+1))
			}
		}
		if err := os.Rename(r.path, r.path+".1"); err != nil {
			return err
		}
	} else if err := os.Remove(r.path); err != nil {
		return err
	}
	return r.open()
}

func (r *rotatingFile) Truncate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.file.Truncate(0); err != nil {
		return err
	}
	r.size = 0
	return nil
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
