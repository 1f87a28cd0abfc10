package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"plantwatch/internal/dto"
	"plantwatch/internal/logger"
	"plantwatch/internal/repository"
)

// GetCapturesHandler returns a filtered page of archived captures.
func GetCapturesHandler(imageRepo repository.ImageRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := &dto.ImageFilters{
			Kind:   q.Get("kind"),
			Status: q.Get("status"),
			After:  parseTime(q.Get("after")),
			Before: parseTime(q.Get("before")),
			Limit:  atoiDefault(q.Get("limit"), 24),
			Offset: atoiDefault(q.Get("offset"), 0),
		}

		images, err := imageRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying captures from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalSize, err := imageRepo.GetDirectorySize()
		if err != nil {
			logger.Error("Error getting capture directory size: %v", err)
			totalSize = 0
		}

		total, err := imageRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting captures: %v", err)
			total = len(images)
		}

		writeJSON(w, logger, http.StatusOK, dto.CaptureList{
			Images:    images,
			Total:     total,
			TotalSize: totalSize,
			Limit:     filter.Limit,
			Offset:    filter.Offset,
		})
	}
}

// ViewCaptureHandler serves one archived capture by filename.
func ViewCaptureHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.PathValue("filename"))
		if name == "." || name == string(filepath.Separator) {
			http.Error(w, "Filename required", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, name))
	}
}

// DeleteCaptureHandler removes a capture from disk and from the database.
func DeleteCaptureHandler(dir string, imageRepo repository.ImageRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.PathValue("filename"))
		if name == "." || name == string(filepath.Separator) {
			http.Error(w, "Filename required", http.StatusBadRequest)
			return
		}

		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete file %s: %v", path, err)
		}
		if err := imageRepo.DeleteByFilename(name); err != nil {
			logger.Error("Failed to delete from database: %v", err)
		}

		logger.Info("Deleted capture: %s", name)
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "deleted", "filename": name})
	}
}
