package handler

import (
	"net/http"

	"plantwatch/internal/dto"
	"plantwatch/internal/logger"
	"plantwatch/internal/model"
	"plantwatch/internal/repository"
)

const maxHistory = 500

// GetDetectionsHandler lists the most recent detections with totals per status.
func GetDetectionsHandler(detectionRepo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := atoiDefault(r.URL.Query().Get("limit"), 50)
		if limit == 0 || limit > maxHistory {
			limit = maxHistory
		}

		records, err := detectionRepo.GetRecent(limit)
		if err != nil {
			logger.Error("Error querying detections: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []model.DetectionRecord{}
		}

		counts, err := detectionRepo.CountByStatus()
		if err != nil {
			logger.Error("Error counting detections: %v", err)
		}
		byName := make(map[string]int, len(counts))
		for st, n := range counts {
			byName[st.String()] = n
		}

		writeJSON(w, logger, http.StatusOK, dto.HistoryResponse{Detections: records, Counts: byName})
	}
}
