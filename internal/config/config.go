package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Camera      CameraConfig
	Detector    DetectorConfig
	Loop        LoopConfig
	Primary     PrimarySinkConfig
	Storage     StorageSinkConfig
	Telegram    TelegramSinkConfig
	Pending     PendingCleanupConfig
	Images      ImageCleanupConfig
	Archive     ArchiveConfig
	DBPath      string
	LogDir      string
	LogLevel    string
	LogMaxSize  int64 // bytes
	LogBackups  int
	CleanupTick time.Duration
}

type ServerConfig struct {
	Host            string
	Port            int
	JPEGQuality     int // stream preview
	SnapshotQuality int
	AllowedOrigins  []string
}

type CameraConfig struct {
	Source string // device index, URL or image directory
	Width  int
	Height int
	FPS    int
}

type DetectorConfig struct {
	Backend       string // gocv, http or none
	ModelPath     string
	LabelsPath    string
	URL           string
	ConfThreshold float64
	IoUThreshold  float64
	SubjectClass  string
	PestClass     string
	MaxPlants     int
}

type LoopConfig struct {
	FrameTimeout          time.Duration
	MaxConsecutiveErrors  int
	ReconnectPause        time.Duration
	ReconnectAttempts     int
	ReconnectBackoff      time.Duration
	ErrorBackoff          time.Duration
	StopTimeout           time.Duration
	SendInterval          time.Duration
	AutoDetection         bool
	SubmissionJPEGQuality int
}

type PrimarySinkConfig struct {
	Endpoint string
	DeviceID string
	APIKey   string
	AnonKey  string
	Timeout  time.Duration
}

type StorageSinkConfig struct {
	URL         string
	Table       string
	APIKey      string
	Bucket      string
	Prefix      string
	PendingPath string
	Timeout     time.Duration
}

type TelegramSinkConfig struct {
	Token       string
	ChatID      int64
	AlertOn     []string
	Timeout     time.Duration
	APIEndpoint string
}

type PendingCleanupConfig struct {
	MaxAge     time.Duration
	MaxRetries int
	MaxEntries int
}

type ImageCleanupConfig struct {
	MaxAge   time.Duration
	MaxCount int
	MaxSize  int64 // bytes
}

type ArchiveConfig struct {
	Enabled       bool
	Directory     string
	BufferLimit   int
	FlushInterval time.Duration
}

var defaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
	"https://megtech.online",
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	_ = godotenv.Load()

	day := 24 * time.Hour
	imageDir := getEnv("IMAGE_DIR", filepath.Join(".", "captures"))

	return &Config{
		Server: ServerConfig{
			Host:            getEnv("RS_STREAM_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("RS_STREAM_PORT", 8080),
			JPEGQuality:     getEnvAsInt("RS_JPEG_QUALITY", 90),
			SnapshotQuality: getEnvAsInt("RS_JPEG_QUALITY_SNAPSHOT", 95),
			AllowedOrigins:  append(append([]string{}, defaultOrigins...), getEnvAsList("CORS_ALLOWED_ORIGINS")...),
		},
		Camera: CameraConfig{
			Source: getEnv("CAMERA_SOURCE", "0"),
			Width:  getEnvAsInt("RS_FRAME_WIDTH", 1280),
			Height: getEnvAsInt("RS_FRAME_HEIGHT", 720),
			FPS:    getEnvAsInt("RS_FRAME_RATE", 15),
		},
		Detector: DetectorConfig{
			Backend:       strings.ToLower(getEnv("DETECTOR_BACKEND", "gocv")),
			ModelPath:     getEnv("YOLO_MODEL_PATH", filepath.Join(".", "models", "best.onnx")),
			LabelsPath:    getEnv("YOLO_LABELS_PATH", filepath.Join(".", "models", "labels.txt")),
			URL:           getEnv("DETECTOR_URL", ""),
			ConfThreshold: getEnvAsFloat("RS_CONF_THRESHOLD", 0.5),
			IoUThreshold:  getEnvAsFloat("IOU_THRESHOLD", 0.3),
			SubjectClass:  getEnv("SUBJECT_CLASS", "chrysanthemum"),
			PestClass:     getEnv("PEST_CLASS", "mealybug"),
			MaxPlants:     getEnvAsInt("MAX_PLANTS", 3),
		},
		Loop: LoopConfig{
			FrameTimeout:          time.Duration(getEnvAsInt("RS_FRAME_TIMEOUT_MS", 5000)) * time.Millisecond,
			MaxConsecutiveErrors:  getEnvAsInt("RS_MAX_CONSECUTIVE_ERRORS", 10),
			ReconnectPause:        getEnvAsDuration("RS_RECONNECT_PAUSE", 2*time.Second),
			ReconnectAttempts:     getEnvAsInt("RS_RECONNECT_ATTEMPTS", 5),
			ReconnectBackoff:      getEnvAsDuration("RS_RECONNECT_BACKOFF", 2*time.Second),
			ErrorBackoff:          getEnvAsDuration("RS_ERROR_BACKOFF", time.Second),
			StopTimeout:           getEnvAsDuration("RS_STOP_TIMEOUT", 5*time.Second),
			SendInterval:          time.Duration(getEnvAsInt("RS_SEND_INTERVAL", 15)) * time.Second,
			AutoDetection:         getEnvAsBool("RS_ENABLE_AUTO_DETECTION", false),
			SubmissionJPEGQuality: getEnvAsInt("RS_JPEG_QUALITY_SUBMISSION", 85),
		},
		Primary: PrimarySinkConfig{
			Endpoint: getEnv("RASPBERRY_PI_ENDPOINT", ""),
			DeviceID: getEnv("RASPBERRY_PI_DEVICE_ID", ""),
			APIKey:   getEnv("RASPBERRY_PI_API_KEY", ""),
			AnonKey:  getEnv("SUPABASE_ANON_KEY", ""),
			Timeout:  getEnvAsDuration("PRIMARY_TIMEOUT", 30*time.Second),
		},
		Storage: StorageSinkConfig{
			URL:         strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
			Table:       getEnv("SUPABASE_TABLE", ""),
			APIKey:      getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			Bucket:      getEnv("SUPABASE_STORAGE_BUCKET", ""),
			Prefix:      getEnv("SUPABASE_STORAGE_PREFIX", "detections"),
			PendingPath: getEnv("SUPABASE_PENDING_PATH", "pending_supabase.json"),
			Timeout:     getEnvAsDuration("SUPABASE_TIMEOUT", 15*time.Second),
		},
		Telegram: TelegramSinkConfig{
			Token:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:      getEnvAsInt64("TELEGRAM_CHAT_ID", 0),
			AlertOn:     getEnvAsListDefault("TELEGRAM_ALERT_STATUSES", []string{"diseased", "mixed"}),
			Timeout:     getEnvAsDuration("TELEGRAM_TIMEOUT", 15*time.Second),
			APIEndpoint: getEnv("TELEGRAM_API_ENDPOINT", ""),
		},
		Pending: PendingCleanupConfig{
			MaxAge:     time.Duration(getEnvAsInt("CLEANUP_PENDING_MAX_AGE_DAYS", 7)) * day,
			MaxRetries: getEnvAsInt("CLEANUP_PENDING_MAX_RETRIES", 10),
			MaxEntries: getEnvAsInt("CLEANUP_PENDING_MAX_ENTRIES", 100),
		},
		Images: ImageCleanupConfig{
			MaxAge:   time.Duration(getEnvAsInt("CLEANUP_IMAGES_MAX_AGE_DAYS", 30)) * day,
			MaxCount: getEnvAsInt("CLEANUP_IMAGES_MAX_COUNT", 500),
			MaxSize:  getEnvAsInt64("CLEANUP_IMAGES_MAX_SIZE_MB", 1024) * 1024 * 1024,
		},
		Archive: ArchiveConfig{
			Enabled:       getEnvAsBool("ARCHIVE_ENABLED", true),
			Directory:     imageDir,
			BufferLimit:   getEnvAsInt("ARCHIVE_BUFFER_LIMIT", 10),
			FlushInterval: getEnvAsDuration("ARCHIVE_FLUSH_INTERVAL", 30*time.Second),
		},
		DBPath:      getEnv("DB_PATH", filepath.Join(".", "data", "plantwatch.db")),
		LogDir:      getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogMaxSize:  getEnvAsInt64("LOG_MAX_SIZE_MB", 5) * 1024 * 1024,
		LogBackups:  getEnvAsInt("LOG_BACKUPS", 3),
		CleanupTick: getEnvAsDuration("CLEANUP_INTERVAL", time.Hour),
	}
}

// Validate reports settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid RS_STREAM_PORT %d", c.Server.Port))
	}
	for name, q := range map[string]int{
		"RS_JPEG_QUALITY":            c.Server.JPEGQuality,
		"RS_JPEG_QUALITY_SNAPSHOT":   c.Server.SnapshotQuality,
		"RS_JPEG_QUALITY_SUBMISSION": c.Loop.SubmissionJPEGQuality,
	} {
		if q < 1 || q > 100 {
			errs = append(errs, fmt.Errorf("%s must be within 1..100, got %d", name, q))
		}
	}
	if c.Detector.ConfThreshold < 0 || c.Detector.ConfThreshold > 1 {
		errs = append(errs, fmt.Errorf("RS_CONF_THRESHOLD must be within [0,1], got %g", c.Detector.ConfThreshold))
	}
	if c.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("RS_FRAME_RATE must be positive, got %d", c.Camera.FPS))
	}
	if c.Loop.MaxConsecutiveErrors <= 0 {
		errs = append(errs, fmt.Errorf("RS_MAX_CONSECUTIVE_ERRORS must be positive, got %d", c.Loop.MaxConsecutiveErrors))
	}
	if c.Loop.ReconnectAttempts <= 0 {
		errs = append(errs, fmt.Errorf("RS_RECONNECT_ATTEMPTS must be positive, got %d", c.Loop.ReconnectAttempts))
	}
	return errors.Join(errs...)
}

// DeviceID is the identity reported to every sink.
func (c *Config) DeviceID() string {
	return c.Primary.DeviceID
}

// PrimaryEnabled reports whether the edge function sink has credentials.
func (c *Config) PrimaryEnabled() bool {
	p := c.Primary
	return p.Endpoint != "" && p.APIKey != "" && p.DeviceID != "" && p.AnonKey != ""
}

// StorageEnabled reports whether the storage-backed sink has credentials.
func (c *Config) StorageEnabled() bool {
	s := c.Storage
	return s.URL != "" && s.Table != "" && s.APIKey != "" && s.Bucket != ""
}

// TelegramEnabled reports whether alerts can be sent.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != "" && c.Telegram.ChatID != 0
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsBool accepts 1/true/yes/on, case-insensitive.
func getEnvAsBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// getEnvAsDuration accepts Go durations ("1500ms") or plain seconds ("15").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	return getEnvAsListDefault(key, nil)
}

func getEnvAsListDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
