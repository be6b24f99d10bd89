package colors

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
)

var (
	structuredMu             sync.Mutex
	structuredLoggingEnabled atomic.Bool
)

func init() {
	structuredLoggingEnabled.Store(true)
}

// StructuredLogLevel represents log level for structured logs.
type StructuredLogLevel string

const (
	LevelDebug StructuredLogLevel = "debug"
	LevelInfo  StructuredLogLevel = "info"
	LevelWarn  StructuredLogLevel = "warn"
	LevelError StructuredLogLevel = "error"
)

// StructuredLogEntry represents a structured log entry.
type StructuredLogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     StructuredLogLevel     `json:"level"`
	Component string                 `json:"component"`
	Action    string                 `json:"action"`
	Status    string                 `json:"status"`
	Error     string                 `json:"error,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// DisableStructuredLogging disables structured logging output.
// The terminal renderer calls this because JSON lines corrupt the display.
func DisableStructuredLogging() {
	structuredLoggingEnabled.Store(false)
}

// EnableStructuredLogging enables structured logging output.
func EnableStructuredLogging() {
	structuredLoggingEnabled.Store(true)
}

// StructuredLog writes a JSON entry to stderr when debug output is enabled.
func StructuredLog(level StructuredLogLevel, component, action, status string, err error, fields map[string]interface{}) {
	if !debugEnabled || !structuredLoggingEnabled.Load() {
		return
	}

	entry := StructuredLogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: component,
		Action:    action,
		Status:    status,
		Fields:    fields,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	data, marshalErr := sonic.Marshal(entry)
	if marshalErr != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal structured log: %v\n", marshalErr)
		return
	}

	structuredMu.Lock()
	defer structuredMu.Unlock()
	write(true, "%s\n", data)
}

// StructuredInfo logs a structured info entry.
func StructuredInfo(component, action, status string, err error, fields map[string]interface{}) {
	StructuredLog(LevelInfo, component, action, status, err, fields)
}

// StructuredError logs a structured error entry.
func StructuredError(component, action, status string, err error, fields map[string]interface{}) {
	StructuredLog(LevelError, component, action, status, err, fields)
}
