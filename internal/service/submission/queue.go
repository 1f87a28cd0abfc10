package submission

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"plantwatch/internal/logger"
	"plantwatch/internal/model"
)

// PendingQueue is the on-disk list of failed deliveries. Every change
// rewrites the whole document through a temporary file and a rename.
type PendingQueue struct {
	path string
	mu   sync.Mutex
	log  *logger.Logger
}

func NewPendingQueue(path string, log *logger.Logger) *PendingQueue {
	return &PendingQueue{path: path, log: log}
}

// Path returns the queue file location.
func (q *PendingQueue) Path() string {
	return q.path
}

// Load returns every queued entry. A missing file is an empty queue; an
// unreadable document is moved aside and treated as empty.
func (q *PendingQueue) Load() ([]model.PendingSubmission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, _, err := q.read()
	return entries, err
}

// Append adds one entry.
func (q *PendingQueue) Append(entry model.PendingSubmission) error {
	return q.Update(func(entries []model.PendingSubmission) []model.PendingSubmission {
		return append(entries, entry)
	})
}

// Update reads the queue, applies fn and writes the result back atomically.
func (q *PendingQueue) Update(fn func([]model.PendingSubmission) []model.PendingSubmission) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, exists, err := q.read()
	if err != nil {
		return err
	}
	next := fn(entries)
	if !exists && len(next) == 0 {
		return nil
	}
	return q.write(next)
}

// Len returns the number of queued entries.
func (q *PendingQueue) Len() (int, error) {
	entries, err := q.Load()
	return len(entries), err
}

func (q *PendingQueue) read() ([]model.PendingSubmission, bool, error) {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read pending queue: %w", err)
	}
	if len(data) == 0 {
		return nil, true, nil
	}

	var entries []model.PendingSubmission
	if err := json.Unmarshal(data, &entries); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", q.path, time.Now().Unix())
		if renameErr := os.Rename(q.path, aside); renameErr != nil {
			return nil, false, fmt.Errorf("failed to move corrupt pending queue aside: %w", renameErr)
		}
		q.log.Error("Pending queue %s is corrupt (%v), moved to %s", q.path, err, aside)
		return nil, false, nil
	}
	return entries, true, nil
}

func (q *PendingQueue) write(entries []model.PendingSubmission) error {
	if entries == nil {
		entries = []model.PendingSubmission{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode pending queue: %w", err)
	}

	dir := filepath.Dir(q.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create pending queue directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(q.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary queue file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temporary queue file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temporary queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary queue file: %w", err)
	}
	if err := os.Rename(tmp.Name(), q.path); err != nil {
		return fmt.Errorf("failed to replace pending queue: %w", err)
	}
	return nil
}
