package tangguh

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/atomic"
)

// Logger is the minimal structured logging surface the client uses for
// debug output. keysAndValues are alternating keys and values.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SimpleLogger writes leveled key=value lines to stderr.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a console logger suitable for development.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		logger: log.New(os.Stderr, "tangguh ", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *SimpleLogger) emit(level, msg string, keysAndValues []interface{}) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	l.logger.Print(b.String())
}

// Debug implements Logger.
func (l *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.emit("DEBUG", msg, keysAndValues)
}

// Info implements Logger.
func (l *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.emit("INFO", msg, keysAndValues)
}

// Warn implements Logger.
func (l *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.emit("WARN", msg, keysAndValues)
}

// Error implements Logger.
func (l *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.emit("ERROR", msg, keysAndValues)
}

// SlogLogger adapts a *slog.Logger to the Logger interface for applications
// that already standardize on log/slog.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps an slog logger; nil uses slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// Debug implements Logger.
func (l *SlogLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

// Info implements Logger.
func (l *SlogLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

// Warn implements Logger.
func (l *SlogLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, keysAndValues...)
}

// Error implements Logger.
func (l *SlogLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

// DebugConfig gates the client's debug logging per concern so a noisy layer
// can be inspected in isolation.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogCache     bool
	LogCircuit   bool
	LogQueue     bool
	RequestIDGen func() string
}

// DefaultDebugConfig enables all categories once Enabled is flipped on.
func DefaultDebugConfig() *DebugConfig {
	var counter atomic.Int64
	return &DebugConfig{
		Enabled:     false,
		LogRequests: true,
		LogRetries:  true,
		LogCache:    true,
		LogCircuit:  true,
		LogQueue:    true,
		RequestIDGen: func() string {
			return fmt.Sprintf("req-%d", counter.Inc())
		},
	}
}
