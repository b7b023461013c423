package notification

import (
	"log/slog"
	"sync"

	"github.com/tphakala/xferwatch/internal/logging"
)

var (
	loggerMu    sync.RWMutex
	fileLogger  *slog.Logger
	levelVar    = new(slog.LevelVar)
	logCloser   func() error
	defaultOnce sync.Once
	defaultLog  *slog.Logger
)

// getLogger returns the dedicated file logger when one was configured,
// otherwise the process logger tagged with the notification service.
func getLogger() *slog.Logger {
	loggerMu.RLock()
	l := fileLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	defaultOnce.Do(func() {
		defaultLog = logging.ForService("notification")
	})
	return defaultLog
}

// ConfigureFileLogger routes engine logs to a rotating JSON file.
func ConfigureFileLogger(path string, debug bool, cfg logging.FileConfig) error {
	SetDebugLevel(debug)
	l, closer, err := logging.NewFileLogger(path, "notification", levelVar, cfg)
	if err != nil {
		return err
	}

	loggerMu.Lock()
	old := logCloser
	fileLogger = l
	logCloser = closer
	loggerMu.Unlock()

	if old != nil {
		_ = old()
	}
	return nil
}

// SetDebugLevel toggles debug output of the file logger.
func SetDebugLevel(debug bool) {
	if debug {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// CloseLogger closes the file logger, if any, and falls back to the process
// logger.
func CloseLogger() error {
	loggerMu.Lock()
	closer := logCloser
	fileLogger = nil
	logCloser = nil
	loggerMu.Unlock()

	if closer != nil {
		return closer()
	}
	return nil
}
