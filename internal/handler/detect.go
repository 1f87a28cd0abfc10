package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"plantwatch/internal/dto"
	"plantwatch/internal/logger"
	"plantwatch/internal/service"
)

// Trigger runs a manual detection on the latest frame.
type Trigger interface {
	TriggerDetection(ctx context.Context, token string) (service.TriggerResult, error)
}

// DetectHandler handles POST /detect. A bearer token in the Authorization
// header is forwarded to the sinks.
func DetectHandler(trigger Trigger, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := trigger.TriggerDetection(r.Context(), bearerToken(r))
		switch {
		case errors.Is(err, service.ErrNoFrame), errors.Is(err, service.ErrCaptureUnavailable):
			writeJSON(w, logger, http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error()})
			return
		case err != nil:
			logger.Error("Manual detection failed: %v", err)
			writeJSON(w, logger, http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
			return
		}

		resp := dto.DetectResponse{
			Success:     true,
			Status:      result.Status,
			Confidence:  result.Confidence,
			ObjectCount: result.ObjectCount,
			Plants:      result.Plants,
			Timestamp:   unixSeconds(result.Timestamp),
		}
		for _, res := range result.Outcome.Results {
			if res.Err != nil {
				if resp.Errors == nil {
					resp.Errors = make(map[string]string)
				}
				resp.Errors[res.Sink] = res.Err.Error()
				continue
			}
			resp.Delivered = append(resp.Delivered, res.Sink)
		}

		writeJSON(w, logger, http.StatusOK, resp)
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
