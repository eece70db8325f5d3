package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var levelOrder = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel maps a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes one JSON object per line. It is safe for concurrent use and
// its level can be changed at runtime (config reload).
type Logger struct {
	mu      sync.Mutex
	output  io.Writer
	level   LogLevel
	service string
}

// LoggerOption is a function that configures a Logger
type LoggerOption func(*Logger)

// WithOutput sets the output writer for the logger
func WithOutput(w io.Writer) LoggerOption {
	return func(l *Logger) {
		l.output = w
	}
}

// WithLevel sets the minimum log level
func WithLevel(level LogLevel) LoggerOption {
	return func(l *Logger) {
		l.level = level
	}
}

// WithService sets the service name for logs
func WithService(service string) LoggerOption {
	return func(l *Logger) {
		l.service = service
	}
}

// NewLogger creates a new Logger with the specified options
func NewLogger(opts ...LoggerOption) *Logger {
	logger := &Logger{
		output:  os.Stdout,
		level:   LevelInfo,
		service: "stagecal",
	}

	for _, opt := range opts {
		opt(logger)
	}

	return logger
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *Logger {
	return NewLogger(WithOutput(io.Discard))
}

// SetLevel changes the minimum level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

type logEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         LogLevel               `json:"level"`
	Service       string                 `json:"service"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) write(level LogLevel, message string, ids contextIDs, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if levelOrder[level] < levelOrder[l.level] {
		return
	}

	entry := logEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         level,
		Service:       l.service,
		Message:       message,
		CorrelationID: ids.correlationID,
		SessionID:     ids.sessionID,
		Fields:        fields,
	}
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("failed to marshal log entry: %v", err)
		return
	}

	fmt.Fprintln(l.output, string(data))
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...interface{}) {
	ids, fieldMap := parseFields(fields)
	l.write(LevelDebug, message, ids, fieldMap)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...interface{}) {
	ids, fieldMap := parseFields(fields)
	l.write(LevelInfo, message, ids, fieldMap)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...interface{}) {
	ids, fieldMap := parseFields(fields)
	l.write(LevelWarn, message, ids, fieldMap)
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...interface{}) {
	ids, fieldMap := parseFields(fields)
	l.write(LevelError, message, ids, fieldMap)
}

// DebugWithContext logs a debug message with ids from context
func (l *Logger) DebugWithContext(ctx context.Context, message string, fields ...interface{}) {
	_, fieldMap := parseFields(fields)
	l.write(LevelDebug, message, idsFromContext(ctx), fieldMap)
}

// InfoWithContext logs an info message with ids from context
func (l *Logger) InfoWithContext(ctx context.Context, message string, fields ...interface{}) {
	_, fieldMap := parseFields(fields)
	l.write(LevelInfo, message, idsFromContext(ctx), fieldMap)
}

// WarnWithContext logs a warning message with ids from context
func (l *Logger) WarnWithContext(ctx context.Context, message string, fields ...interface{}) {
	_, fieldMap := parseFields(fields)
	l.write(LevelWarn, message, idsFromContext(ctx), fieldMap)
}

// ErrorWithContext logs an error message with ids from context
func (l *Logger) ErrorWithContext(ctx context.Context, message string, fields ...interface{}) {
	_, fieldMap := parseFields(fields)
	l.write(LevelError, message, idsFromContext(ctx), fieldMap)
}

type contextIDs struct {
	correlationID string
	sessionID     string
}

func idsFromContext(ctx context.Context) contextIDs {
	return contextIDs{
		correlationID: GetCorrelationID(ctx),
		sessionID:     GetSessionID(ctx),
	}
}

// parseFields turns key, value, key, value... into a map. The keys
// "correlation_id" and "session_id" are lifted to the top of the entry.
func parseFields(fields []interface{}) (contextIDs, map[string]interface{}) {
	var ids contextIDs
	fieldMap := make(map[string]interface{})

	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		value := fields[i+1]
		switch key {
		case "correlation_id":
			if s, ok := value.(string); ok {
				ids.correlationID = s
			}
		case "session_id":
			if s, ok := value.(string); ok {
				ids.sessionID = s
			}
		default:
			if err, ok := value.(error); ok {
				value = err.Error()
			}
			fieldMap[key] = value
		}
	}

	return ids, fieldMap
}
