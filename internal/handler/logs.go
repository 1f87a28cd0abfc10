package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"plantwatch/internal/logger"
)

var logFiles = map[string]string{
	"debug":   logger.DebugFile,
	"info":    logger.InfoFile,
	"warning": logger.WarningFile,
	"error":   logger.ErrorFile,
}

// ShowLogsHandler serves the log file of the {level} path value as text/plain.
func ShowLogsHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := logFiles[r.PathValue("level")]
		if !ok {
			http.Error(w, "Unknown log level", http.StatusNotFound)
			return
		}
		serveLogFile(w, r, log.Dir(), name)
	}
}

// serveLogFile sets headers and serves a log file if it exists.
func serveLogFile(w http.ResponseWriter, r *http.Request, logDir, filename string) {
	filePath := filepath.Join(logDir, filename)

	if _, err := os.Stat(filePath); logDir == "" || os.IsNotExist(err) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Log file not found: " + filename))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	http.ServeFile(w, r, filePath)
}

// ClearLogsHandler truncates the log file of the {level} path value.
func ClearLogsHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := logFiles[r.PathValue("level")]
		if !ok {
			http.Error(w, "Unknown log level", http.StatusNotFound)
			return
		}
		if err := log.CleanLogs(name); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
