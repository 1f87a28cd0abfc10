package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"plantwatch/internal/config"
	"plantwatch/internal/logger"
	"plantwatch/internal/repository/sqlite"
	"plantwatch/internal/route"
	"plantwatch/internal/service"
	"plantwatch/internal/service/ai"
	"plantwatch/internal/service/analyzer"
	"plantwatch/internal/service/camera"
	"plantwatch/internal/service/clock"
	"plantwatch/internal/service/imaging"
	"plantwatch/internal/service/maintenance"
	"plantwatch/internal/service/status"
	"plantwatch/internal/service/storage"
	"plantwatch/internal/service/submission"
	"plantwatch/internal/service/websocket"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config        *config.Config
	logger        *logger.Logger
	db            *sqlite.DB
	detector      ai.Detector
	bufferService *storage.BufferService
	hubService    *websocket.HubService
	janitor       *maintenance.Janitor
	manager       *service.Manager
	router        http.Handler
}

// NewApp loads configuration and wires every component. Nothing is started.
func NewApp() (*App, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.NewLogger(cfg)

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	imageRepo := sqlite.NewImageRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	clk := clock.Real{}
	store := status.NewStore()
	hub := websocket.NewHubService(log)

	var sinks []submission.Sink
	if cfg.PrimaryEnabled() {
		sinks = append(sinks, submission.NewPrimarySink(cfg.Primary))
	}
	if cfg.StorageEnabled() {
		sinks = append(sinks, submission.NewStorageSink(cfg.Storage))
	}
	if cfg.TelegramEnabled() {
		sinks = append(sinks, submission.NewTelegramSink(cfg.Telegram))
	}
	if len(sinks) == 0 {
		log.Warning("No submission sink configured, detections are kept locally only")
	}
	queue := submission.NewPendingQueue(cfg.Storage.PendingPath, log)
	pipeline := submission.NewPipeline(sinks, queue, store, clk, log)

	detector := ai.NewDetector(cfg.Detector, log)
	analyze := analyzer.New(analyzer.Options{
		Threshold:    cfg.Detector.ConfThreshold,
		IoUThreshold: cfg.Detector.IoUThreshold,
		SubjectClass: cfg.Detector.SubjectClass,
		PestClass:    cfg.Detector.PestClass,
		MaxPlants:    cfg.Detector.MaxPlants,
		JPEGQuality:  cfg.Loop.SubmissionJPEGQuality,
	}, imaging.EncodeJPEG)

	deps := service.Dependencies{
		Capture:  camera.New(cfg.Camera, log),
		Detector: detector,
		Analyzer: analyze,
		Store:    store,
		Pipeline: pipeline,
		Hub:      hub,
		History:  detectionRepo,
	}

	var buffer *storage.BufferService
	var onRemove func(string)
	if cfg.Archive.Enabled {
		buffer = storage.NewBufferService(cfg, log, imageRepo)
		deps.Archive = buffer
		onRemove = buffer.Forget
	}

	mng := service.NewManager(cfg, deps, clk, log)
	janitor := maintenance.NewJanitor(cfg, pipeline, queue, onRemove, clk, log)
	router := route.SetupRoutes(cfg, log, mng, store, pipeline, hub, imageRepo, detectionRepo)

	return &App{
		config:        cfg,
		logger:        log,
		db:            db,
		detector:      detector,
		bufferService: buffer,
		hubService:    hub,
		janitor:       janitor,
		manager:       mng,
		router:        router,
	}, nil
}

// Run starts the camera loop and the HTTP server and blocks until a signal
// arrives or the camera is lost for good.
func (a *App) Run() error {
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.manager.Start(ctx); err != nil {
		return err
	}

	// Start background services
	var wg sync.WaitGroup
	background := []func(context.Context){a.hubService.Run, a.janitor.Run}
	if a.bufferService != nil {
		background = append(background, a.bufferService.Run)
	}
	for _, run := range background {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	server := &http.Server{Addr: a.config.Addr(), Handler: a.router}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	a.logger.Info("🌱 Plant monitor %s", a.config.DeviceID())
	a.logger.Info("📍 URL: http://%s", a.config.Addr())
	a.logger.Info("📷 Camera: %s", a.config.Camera.Source)
	a.logger.Info("🤖 Detector: %s", a.config.Detector.Backend)
	a.logger.Info("📁 Captures: %s", a.config.Archive.Directory)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received")
	case err := <-a.manager.Err():
		a.logger.Error("Acquisition loop stopped: %v", err)
		runErr = err
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warning("HTTP shutdown: %v", err)
	}
	if err := a.manager.Stop(); err != nil {
		a.logger.Warning("Acquisition loop stop: %v", err)
	}

	stop()
	wg.Wait()
	a.logger.Info("Shutdown complete")
	return runErr
}

func (a *App) close() {
	if err := a.detector.Close(); err != nil {
		a.logger.Warning("Closing detector: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warning("Closing database: %v", err)
	}
	a.logger.Close()
}
