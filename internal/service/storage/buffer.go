package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"plantwatch/internal/config"
	"plantwatch/internal/dto"
	"plantwatch/internal/logger"
	"plantwatch/internal/model"
	"plantwatch/internal/repository"
)

const timestampLayout = "2006-01-02_15-04-05.000"

// BufferService buffers captures in memory and periodically flushes them to disk.
type BufferService struct {
	imagesDir string
	limit     int
	interval  time.Duration
	images    []dto.BufferedImage
	dropped   int
	mu        sync.Mutex
	logger    *logger.Logger
	imageRepo repository.ImageRepository
}

// NewBufferService creates a new BufferService. imageRepo may be nil, in
// which case files are written without an index.
func NewBufferService(config *config.Config, logger *logger.Logger, imageRepo repository.ImageRepository) *BufferService {
	limit := config.Archive.BufferLimit
	if limit <= 0 {
		limit = 10
	}
	return &BufferService{
		imagesDir: config.Archive.Directory,
		limit:     limit,
		interval:  config.Archive.FlushInterval,
		images:    make([]dto.BufferedImage, 0, limit),
		logger:    logger,
		imageRepo: imageRepo,
	}
}

// Dir returns the archive directory.
func (s *BufferService) Dir() string {
	return s.imagesDir
}

// Run flushes the buffer on every tick and once more when ctx is done.
func (s *BufferService) Run(ctx context.Context) {
	interval := s.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushImages()
			return
		case <-ticker.C:
			s.FlushImages()
		}
	}
}

// AddImage buffers an encoded capture. It reports false when the buffer is
// full and the image was dropped.
func (s *BufferService) AddImage(data []byte, kind string, status model.Status, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.images) >= s.limit {
		s.dropped++
		return false
	}
	s.images = append(s.images, dto.BufferedImage{Timestamp: at, Kind: kind, Status: status, Data: data})
	s.logger.Debug("Archive buffer size: %d/%d", len(s.images), s.limit)
	return true
}

// Filename returns the archive name of a buffered image.
func Filename(img dto.BufferedImage) string {
	return fmt.Sprintf("%s_%s_%s.jpg", img.Timestamp.Format(timestampLayout), img.Kind, img.Status)
}

// ParseFilename recovers the capture time, kind and status from an archive name.
func ParseFilename(name string) (time.Time, string, model.Status, error) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(base, "_")
	if len(parts) != 4 {
		return time.Time{}, "", 0, fmt.Errorf("unexpected archive name %q", name)
	}

	at, err := time.ParseInLocation(timestampLayout, parts[0]+"_"+parts[1], time.Local)
	if err != nil {
		return time.Time{}, "", 0, fmt.Errorf("invalid timestamp in %q: %w", name, err)
	}
	status, err := model.ParseStatus(parts[3])
	if err != nil {
		return time.Time{}, "", 0, fmt.Errorf("invalid status in %q: %w", name, err)
	}
	return at, parts[2], status, nil
}

// FlushImages writes buffered images to disk, indexes them and resets the
// buffer. It returns the number of files written.
func (s *BufferService) FlushImages() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.images) == 0 {
		return 0
	}

	if err := os.MkdirAll(s.imagesDir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return 0
	}

	savedCount := 0
	for _, image := range s.images {
		filename := Filename(image)
		fullpath := filepath.Join(s.imagesDir, filename)

		if err := os.WriteFile(fullpath, image.Data, 0644); err != nil {
			s.logger.Error("Error saving image %s: %v", filename, err)
			continue
		}
		savedCount++

		if s.imageRepo == nil {
			continue
		}
		_, err := s.imageRepo.Insert(&model.Image{
			Filename:  filename,
			Kind:      image.Kind,
			Status:    image.Status,
			Timestamp: image.Timestamp,
			FilePath:  fullpath,
			FileSize:  int64(len(image.Data)),
		})
		if err != nil {
			s.logger.Error("Error saving image to database %s: %v", filename, err)
		}
	}

	if s.dropped > 0 {
		s.logger.Warning("Archive buffer was full, %d images dropped", s.dropped)
	}
	s.logger.Info("Flushed %d images to disk", savedCount)
	s.images = s.images[:0]
	s.dropped = 0
	return savedCount
}

// Forget drops the index row of a file removed from disk.
func (s *BufferService) Forget(filename string) {
	if s.imageRepo == nil {
		return
	}
	if err := s.imageRepo.DeleteByFilename(filename); err != nil {
		s.logger.Error("Error removing image %s from database: %v", filename, err)
	}
}

// Reindex adds index rows for archived files that have none, such as
// files written before the database existed. It returns the number of rows added.
func (s *BufferService) Reindex() (int, error) {
	if s.imageRepo == nil {
		return 0, nil
	}
	entries, err := os.ReadDir(s.imagesDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read archive directory: %w", err)
	}

	added := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".jpg") {
			continue
		}
		existing, err := s.imageRepo.GetByFilename(entry.Name())
		if err != nil {
			return added, err
		}
		if existing != nil {
			continue
		}

		at, kind, status, err := ParseFilename(entry.Name())
		if err != nil {
			s.logger.Warning("Skipping %s: %v", entry.Name(), err)
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warning("Failed to get info for %s: %v", entry.Name(), err)
			continue
		}

		_, err = s.imageRepo.Insert(&model.Image{
			Filename:  entry.Name(),
			Kind:      kind,
			Status:    status,
			Timestamp: at,
			FilePath:  filepath.Join(s.imagesDir, entry.Name()),
			FileSize:  info.Size(),
		})
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
