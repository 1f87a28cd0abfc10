package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"plantwatch/internal/dto"
	"plantwatch/internal/model"
)

// ImageRepository implements repository.ImageRepository for SQLite.
type ImageRepository struct {
	db *DB
}

// NewImageRepository creates a new SQLite image repository.
func NewImageRepository(db *DB) *ImageRepository {
	return &ImageRepository{db: db}
}

const imageColumns = `id, filename, kind, status, timestamp, filepath, filesize`

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (*model.Image, error) {
	var img model.Image
	var status string
	if err := row.Scan(&img.ID, &img.Filename, &img.Kind, &status, &img.Timestamp, &img.FilePath, &img.FileSize); err != nil {
		return nil, err
	}
	parsed, err := model.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("failed to parse image status: %w", err)
	}
	img.Status = parsed
	return &img, nil
}

// imageWhere builds the WHERE clause shared by list and count queries.
func imageWhere(filter *dto.ImageFilters) (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if filter == nil {
		return clauses[0], args
	}

	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.After.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.After.UTC())
	}
	if !filter.Before.IsZero() {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.Before.UTC())
	}
	return strings.Join(clauses, " AND "), args
}

// Insert adds a new image record to the database.
func (r *ImageRepository) Insert(img *model.Image) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO images (filename, kind, status, timestamp, filepath, filesize)
		VALUES (?, ?, ?, ?, ?, ?)
	`, img.Filename, img.Kind, img.Status.String(), img.Timestamp.UTC(), img.FilePath, img.FileSize)
	if err != nil {
		return 0, fmt.Errorf("failed to insert image: %w", err)
	}

	return result.LastInsertId()
}

// GetByFilename retrieves an image by its filename.
func (r *ImageRepository) GetByFilename(filename string) (*model.Image, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	img, err := scanImage(r.db.Conn().QueryRow(`SELECT `+imageColumns+` FROM images WHERE filename = ?`, filename))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return img, nil
}

// GetAll retrieves images matching filter, newest first.
func (r *ImageRepository) GetAll(filter *dto.ImageFilters) ([]model.Image, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := imageWhere(filter)
	query := `SELECT ` + imageColumns + ` FROM images WHERE ` + where + ` ORDER BY timestamp DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []model.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, *img)
	}

	return images, rows.Err()
}

// GetTotalCount returns the total count of images matching the filter.
func (r *ImageRepository) GetTotalCount(filter *dto.ImageFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := imageWhere(filter)
	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM images WHERE `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}

	return count, nil
}

// GetDirectorySize returns the summed size of every archived file.
func (r *ImageRepository) GetDirectorySize() (int64, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var size int64
	if err := r.db.Conn().QueryRow(`SELECT COALESCE(SUM(filesize), 0) FROM images`).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to sum image sizes: %w", err)
	}
	return size, nil
}

// DeleteByFilename removes an image by its filename.
func (r *ImageRepository) DeleteByFilename(filename string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM images WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}
