package handler

import (
	"net/http"

	"plantwatch/internal/logger"
	"plantwatch/internal/service"
	"plantwatch/internal/service/status"
)

// HealthHandler answers 200 while the camera loop is alive, 503 once it has failed.
func HealthHandler(store *status.Store, loop LoopReporter, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := loop.State()
		code := http.StatusOK
		health := "ok"
		if state == service.StateFailed {
			code = http.StatusServiceUnavailable
			health = "failed"
		}
		writeJSON(w, logger, code, map[string]any{
			"status":     health,
			"loopState":  state.String(),
			"frameReady": store.Frame() != nil,
		})
	}
}
