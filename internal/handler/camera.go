package handler

import (
	"fmt"
	"net/http"

	"plantwatch/internal/config"
	"plantwatch/internal/logger"
	"plantwatch/internal/service/imaging"
	"plantwatch/internal/service/status"
)

const streamBoundary = "frame"

// SnapshotHandler serves the latest raw frame as JPEG.
func SnapshotHandler(cfg *config.Config, store *status.Store, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame := store.Frame()
		if frame == nil {
			writeJSON(w, logger, http.StatusServiceUnavailable, map[string]string{"error": "frame_not_ready"})
			return
		}

		data, err := imaging.EncodeJPEG(frame.Image, cfg.Server.SnapshotQuality)
		if err != nil {
			logger.Error("Error encoding snapshot: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(data)
	}
}

// StreamHandler pushes every newly published preview as a multipart JPEG
// part until the client goes away. Previews are shared, not re-encoded.
func StreamHandler(store *status.Store, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)
		w.Header().Set("Cache-Control", "no-cache, private")
		w.Header().Set("Pragma", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		logger.Debug("Stream client connected: %s", r.RemoteAddr)
		defer logger.Debug("Stream client disconnected: %s", r.RemoteAddr)

		var sent uint64
		for {
			changed := store.Changed()
			preview, seq := store.Preview()
			if len(preview) > 0 && seq != sent {
				if err := writePart(w, preview); err != nil {
					return
				}
				flusher.Flush()
				sent = seq
			}

			select {
			case <-r.Context().Done():
				return
			case <-changed:
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", streamBoundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
