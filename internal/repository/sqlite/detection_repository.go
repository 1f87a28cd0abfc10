package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"plantwatch/internal/model"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// Insert adds a detection to the history. Plants are stored as JSON.
func (r *DetectionRepository) Insert(rec *model.DetectionRecord) (int64, error) {
	var plants string
	if len(rec.Plants) > 0 {
		data, err := json.Marshal(rec.Plants)
		if err != nil {
			return 0, fmt.Errorf("failed to encode plants: %w", err)
		}
		plants = string(data)
	}

	var confidence sql.NullFloat64
	if rec.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *rec.Confidence, Valid: true}
	}

	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO detections (source, status, confidence, object_count, filename, plants, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.Source, rec.Status.String(), confidence, rec.ObjectCount, rec.Filename, plants, rec.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert detection: %w", err)
	}

	return result.LastInsertId()
}

// GetRecent returns up to limit detections, newest first.
func (r *DetectionRepository) GetRecent(limit int) ([]model.DetectionRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, source, status, confidence, object_count, filename, plants, timestamp
		FROM detections ORDER BY timestamp DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var records []model.DetectionRecord
	for rows.Next() {
		var rec model.DetectionRecord
		var status, plants string
		var confidence sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Source, &status, &confidence, &rec.ObjectCount, &rec.Filename, &plants, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		if rec.Status, err = model.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("failed to parse detection status: %w", err)
		}
		if confidence.Valid {
			v := confidence.Float64
			rec.Confidence = &v
		}
		if plants != "" {
			if err := json.Unmarshal([]byte(plants), &rec.Plants); err != nil {
				return nil, fmt.Errorf("failed to decode plants: %w", err)
			}
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CountByStatus returns how many detections were recorded per status.
func (r *DetectionRepository) CountByStatus() (map[model.Status]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT status, COUNT(*) FROM detections GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count detections: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan detection count: %w", err)
		}
		st, err := model.ParseStatus(status)
		if err != nil {
			continue
		}
		counts[st] = count
	}

	return counts, rows.Err()
}
