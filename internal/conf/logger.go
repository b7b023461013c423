// Package conf provides configuration management for xferwatch.
package conf

import (
	"log/slog"

	"github.com/tphakala/xferwatch/internal/logging"
)

// GetLogger returns the config package logger. It is resolved on every call
// so it picks up the logger installed by logging.Init.
func GetLogger() *slog.Logger {
	return logging.ForService("config")
}
