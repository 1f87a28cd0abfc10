package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"plantwatch/internal/config"
)

// Level file names, also used by the log handlers.
const (
	DebugFile   = "debug.log"
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

const flags = log.Ldate | log.Ltime | log.Lshortfile

// Logger provides leveled logging (debug/info/warning/error) to files and stdout/stderr.
type Logger struct {
	debugLog   *log.Logger
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	debug      bool
	logDir     string
	files      map[string]*rotatingFile
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	logger := &Logger{
		logDir: config.LogDir,
		debug:  config.LogLevel == "debug",
		files:  make(map[string]*rotatingFile),
	}

	logger.setupLoggers(config.LogMaxSize, config.LogBackups)
	return logger
}

// New creates a Logger writing every level to w. Used by tests and CLIs.
func New(w io.Writer, debug bool) *Logger {
	l := &Logger{debug: debug}
	l.debugLog = log.New(w, "🐛 DEBUG   ", flags)
	l.infoLog = log.New(w, "ℹ️  INFO    ", flags)
	l.warningLog = log.New(w, "⚠️  WARNING ", flags)
	l.errorLog = log.New(w, "❌ ERROR   ", flags)
	return l
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, false)
}

// setupLoggers initializes writers and per-level loggers.
func (l *Logger) setupLoggers(maxSize int64, backups int) {
	for _, name := range []string{DebugFile, InfoFile, WarningFile, ErrorFile} {
		l.files[name] = l.openLogFile(name, maxSize, backups)
	}

	debugWriter := io.MultiWriter(os.Stdout, l.files[DebugFile])
	infoWriter := io.MultiWriter(os.Stdout, l.files[InfoFile])
	warningWriter := io.MultiWriter(os.Stdout, l.files[WarningFile])
	errorWriter := io.MultiWriter(os.Stderr, l.files[ErrorFile])

	l.debugLog = log.New(debugWriter, "🐛 DEBUG   ", flags)
	l.infoLog = log.New(infoWriter, "ℹ️  INFO    ", flags)
	l.warningLog = log.New(warningWriter, "⚠️  WARNING ", flags)
	l.errorLog = log.New(errorWriter, "❌ ERROR   ", flags)
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(name string, maxSize int64, backups int) *rotatingFile {
	f, err := openRotatingFile(filepath.Join(l.logDir, name), maxSize, backups)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", name, err)
	}
	return f
}

// Debug writes a formatted debug-level log entry when debug output is enabled.
func (l *Logger) Debug(format string, v ...interface{}) {
	if !l.debug {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugLog.Output(2, fmt.Sprintf(format, v...))
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Output(2, fmt.Sprintf(format, v...))
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Output(2, fmt.Sprintf(format, v...))
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Output(2, fmt.Sprintf(format, v...))
}

// Dir returns the directory holding the level files, empty for writer-based loggers.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	l.mu.Lock()
	f, ok := l.files[fileName]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown log file %q", fileName)
	}
	if err := f.Truncate(); err != nil {
		l.Error("Error truncating %s: %v", fileName, err)
		return err
	}

	l.Info("Log file %s has been cleared.", fileName)
	return nil
}

// Close flushes and closes the level files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
