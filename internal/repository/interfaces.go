package repository

import (
	"plantwatch/internal/dto"
	"plantwatch/internal/model"
)

// ImageRepository defines the interface for archived capture records.
type ImageRepository interface {
	// Create operations
	Insert(img *model.Image) (int64, error)

	// Read operations
	GetByFilename(filename string) (*model.Image, error)
	GetAll(filter *dto.ImageFilters) ([]model.Image, error)
	GetTotalCount(filter *dto.ImageFilters) (int, error)
	GetDirectorySize() (int64, error)

	// Delete operations
	DeleteByFilename(filename string) error
}

// DetectionRepository defines the interface for the local detection history.
type DetectionRepository interface {
	Insert(rec *model.DetectionRecord) (int64, error)
	GetRecent(limit int) ([]model.DetectionRecord, error)
	CountByStatus() (map[model.Status]int, error)
}
