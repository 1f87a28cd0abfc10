package route

import (
	"net/http"

	"plantwatch/internal/config"
	"plantwatch/internal/handler"
	"plantwatch/internal/logger"
	"plantwatch/internal/middleware"
	"plantwatch/internal/repository"
	"plantwatch/internal/service/status"
	"plantwatch/internal/service/websocket"
)

// Loop is what the routes need from the acquisition loop.
type Loop interface {
	handler.LoopReporter
	handler.Trigger
}

// SetupRoutes registers the device API and wraps the mux with the CORS middleware.
func SetupRoutes(cfg *config.Config, logger *logger.Logger, loop Loop, store *status.Store, sinks handler.SinkLister,
	hub *websocket.HubService, imageRepo repository.ImageRepository, detectionRepo repository.DetectionRepository) http.Handler {
	mux := http.NewServeMux()

	// Device endpoints
	mux.HandleFunc("GET /snapshot", handler.SnapshotHandler(cfg, store, logger))
	mux.HandleFunc("GET /status", handler.StatusHandler(cfg, store, loop, sinks, logger))
	mux.HandleFunc("POST /detect", handler.DetectHandler(loop, logger))
	mux.HandleFunc("GET /stream", handler.StreamHandler(store, logger))
	mux.HandleFunc("GET /health", handler.HealthHandler(store, loop, logger))
	mux.HandleFunc("GET /ws", handler.ViewWebsocketHandler(hub, store, loop, logger))

	// History endpoints
	mux.HandleFunc("GET /api/detections", handler.GetDetectionsHandler(detectionRepo, logger))
	mux.HandleFunc("GET /api/captures", handler.GetCapturesHandler(imageRepo, logger))
	mux.HandleFunc("GET /api/captures/{filename}", handler.ViewCaptureHandler(cfg.Archive.Directory))
	mux.HandleFunc("DELETE /api/captures/{filename}", handler.DeleteCaptureHandler(cfg.Archive.Directory, imageRepo, logger))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(logger))
	mux.HandleFunc("POST /logs/{level}/clear", handler.ClearLogsHandler(logger))

	// Apply middleware
	return middleware.CORSMiddleware(cfg.Server.AllowedOrigins, mux)
}
