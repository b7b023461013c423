// Package logging sets up the process-wide slog loggers and per-service file
// loggers with rotation.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

var (
	mu               sync.RWMutex
	structuredLogger *slog.Logger
	rootLevel        = new(slog.LevelVar)
)

// Rotation selects how file loggers roll over.
type Rotation string

const (
	RotationDaily  Rotation = "daily"
	RotationWeekly Rotation = "weekly"
	RotationSize   Rotation = "size"
)

// FileConfig holds rotation settings for NewFileLogger.
type FileConfig struct {
	Rotation  Rotation
	MaxSizeMB int
	Compress  bool
}

// replaceLevel renders the custom TRACE and FATAL levels by name.
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}
		label, exists := levelNames[level]
		if !exists {
			label = level.String()
		}
		a.Value = slog.StringValue(label)
	}
	return a
}

// Init installs the default structured logger writing JSON to w (stdout when
// nil) at the given level, or text output when json is false.
func Init(w io.Writer, level slog.Level, json bool) {
	if w == nil {
		w = os.Stdout
	}
	rootLevel.Set(level)
	opts := &slog.HandlerOptions{Level: rootLevel, ReplaceAttr: replaceLevel}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	mu.Lock()
	structuredLogger = slog.New(handler)
	mu.Unlock()
	slog.SetDefault(structuredLogger)
}

// SetLevel changes the level of the logger installed by Init.
func SetLevel(level slog.Level) {
	rootLevel.Set(level)
}

// ForService returns the default logger tagged with a service attribute.
// Falls back to slog.Default when Init has not been called.
func ForService(serviceName string) *slog.Logger {
	mu.RLock()
	base := structuredLogger
	mu.RUnlock()
	if base == nil {
		base = slog.Default()
	}
	return base.With("service", serviceName)
}

// Trace logs at the custom trace level on the default logger.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// Fatal logs at the fatal level and exits.
func Fatal(msg string, args ...any) {
	slog.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}

// NewRotatingWriter returns a lumberjack writer for filePath, creating the
// directory when needed.
func NewRotatingWriter(filePath string, cfg FileConfig) (*lumberjack.Logger, error) {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}

	writer := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   cfg.Compress,
	}
	if cfg.MaxSizeMB > 0 {
		writer.MaxSize = cfg.MaxSizeMB
	}

	switch cfg.Rotation {
	case RotationDaily:
		writer.MaxAge = 1
		writer.MaxBackups = 30
	case RotationWeekly:
		writer.MaxAge = 7
		writer.MaxBackups = 4
	case RotationSize, "":
	default:
		slog.Warn("Unknown log rotation type, using size-based defaults", "rotation", cfg.Rotation)
	}
	return writer, nil
}

// NewFileLogger creates a JSON logger writing to filePath through lumberjack.
// It returns the logger and a function closing the underlying writer.
func NewFileLogger(filePath, serviceName string, level slog.Leveler, cfg FileConfig) (*slog.Logger, func() error, error) {
	writer, err := NewRotatingWriter(filePath, cfg)
	if err != nil {
		return nil, nil, err
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	})
	return slog.New(handler).With("service", serviceName), writer.Close, nil
}
