package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/cristianoliveira/freshshell/internal/colors"
)

// Logger is the structured logging interface shared by every component.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	// With returns a new logger with additional key-value pairs.
	With(args ...any) Logger
	// Shutdown flushes any buffered logs and releases resources.
	Shutdown() error
}

// loggerImpl is the charmbracelet/log based implementation.
type loggerImpl struct {
	clogger  *clog.Logger
	closer   io.Closer
	redactor *redactor
	fields   []any
	path     string
	once     *sync.Once
}

// Init opens a JSON log file for cfg. A disabled config yields a no-op logger.
func Init(cfg Config) (Logger, error) {
	if !cfg.Enabled {
		return Nop(), nil
	}
	logDir, err := LogDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine log directory: %w", err)
	}
	if err := rotate(logDir, cfg.MaxFiles); err != nil {
		fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
	}
	fname := fmt.Sprintf("%s%s_PID%d_%s.log",
		filePrefix,
		time.Now().Format("20060102_150405"),
		cfg.PID,
		strings.ReplaceAll(cfg.Command, " ", "_"))
	path := filepath.Join(logDir, fname)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := newLogger(f, cfg.Level, "pid", cfg.PID, "command", cfg.Command)
	l.closer = f
	l.path = path
	return l, nil
}

// New returns a JSON logger writing to w. It never owns w.
func New(w io.Writer, level string) Logger {
	return newLogger(w, level)
}

func newLogger(w io.Writer, level string, fields ...any) *loggerImpl {
	clogger := clog.NewWithOptions(w, clog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339Nano,
		Level:           parseLevel(level),
		Formatter:       clog.JSONFormatter,
	})
	if len(fields) > 0 {
		clogger = clogger.With(fields...)
	}
	return &loggerImpl{
		clogger:  clogger,
		redactor: newRedactor(),
		once:     &sync.Once{},
	}
}

func parseLevel(level string) clog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return clog.DebugLevel
	case "warn", "warning":
		return clog.WarnLevel
	case "error":
		return clog.ErrorLevel
	default:
		return clog.InfoLevel
	}
}

func (l *loggerImpl) Debug(msg string, args ...any) { l.log(clog.DebugLevel, msg, args) }
func (l *loggerImpl) Info(msg string, args ...any)  { l.log(clog.InfoLevel, msg, args) }
func (l *loggerImpl) Warn(msg string, args ...any)  { l.log(clog.WarnLevel, msg, args) }
func (l *loggerImpl) Error(msg string, args ...any) { l.log(clog.ErrorLevel, msg, args) }

func (l *loggerImpl) log(level clog.Level, msg string, args []any) {
	all := make([]any, 0, len(l.fields)+len(args))
	all = append(all, l.fields...)
	all = append(all, args...)
	l.clogger.Log(level, msg, l.redactor.redact(all)...)
}

// With shares the underlying file; only the root logger closes it.
func (l *loggerImpl) With(args ...any) Logger {
	fields := make([]any, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)
	return &loggerImpl{
		clogger:  l.clogger,
		redactor: l.redactor,
		fields:   fields,
		path:     l.path,
		once:     &sync.Once{},
	}
}

func (l *loggerImpl) Shutdown() error {
	var err error
	l.once.Do(func() {
		if l.closer != nil {
			err = l.closer.Close()
		}
	})
	return err
}

type noopLogger struct{}

func (n noopLogger) Debug(msg string, args ...any) {}
func (n noopLogger) Info(msg string, args ...any)  {}
func (n noopLogger) Warn(msg string, args ...any)  {}
func (n noopLogger) Error(msg string, args ...any) {}
func (n noopLogger) With(args ...any) Logger       { return n }
func (n noopLogger) Shutdown() error               { return nil }

// Nop returns a logger that discards everything.
func Nop() Logger { return noopLogger{} }

var (
	globalLogger   Logger
	globalLoggerMu sync.RWMutex
)

// InitGlobal initializes the global logger from the global configuration and
// mirrors CLI messages into it. Calling it again replaces the previous logger.
func InitGlobal() error {
	l, err := Init(FromGlobalConfig())
	if err != nil {
		return err
	}
	globalLoggerMu.Lock()
	prev := globalLogger
	globalLogger = l
	globalLoggerMu.Unlock()
	if prev != nil {
		_ = prev.Shutdown()
	}

	colors.SetLogger(l)
	if path := CurrentLogFile(); path != "" {
		colors.Debug("Logging to file:", path)
	}
	return nil
}

// GetGlobal returns the global logger, or a no-op logger if not initialized.
func GetGlobal() Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	if globalLogger == nil {
		return Nop()
	}
	return globalLogger
}

// Debug logs a debug message using the global logger.
func Debug(msg string, args ...any) { GetGlobal().Debug(msg, args...) }

// Info logs an info message using the global logger.
func Info(msg string, args ...any) { GetGlobal().Info(msg, args...) }

// Warn logs a warning message using the global logger.
func Warn(msg string, args ...any) { GetGlobal().Warn(msg, args...) }

// Error logs an error message using the global logger.
func Error(msg string, args ...any) { GetGlobal().Error(msg, args...) }

// With returns a new global logger with additional key-value pairs.
func With(args ...any) Logger { return GetGlobal().With(args...) }

// ShutdownGlobal shuts down the global logger.
func ShutdownGlobal() error {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		return nil
	}
	colors.SetLogger(nil)
	err := globalLogger.Shutdown()
	globalLogger = nil
	return err
}

// CurrentLogFile returns the active log file path, or "" when logging to a
// file is disabled.
func CurrentLogFile() string {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	if impl, ok := globalLogger.(*loggerImpl); ok {
		return impl.path
	}
	return ""
}
