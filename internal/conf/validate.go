// conf/validate.go

package conf

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tphakala/xferwatch/internal/notification"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateMainSettings(&settings.Main); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateTransferSettings(&settings.Transfer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateNotificationSettings(&settings.Notification); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateServerSettings(&settings.Server); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMainSettings(settings *MainSettings) error {
	var errs []string

	if _, err := ParseLogLevel(settings.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogConfig(&settings.Log); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("main settings errors: %v", errs)
	}
	return nil
}

func validateLogConfig(settings *LogConfig) error {
	if !settings.Enabled {
		return nil
	}
	if settings.Path == "" {
		return errors.New("log path is required when file logging is enabled")
	}
	if !slices.Contains([]string{RotationDaily, RotationWeekly, RotationSize}, settings.Rotation) {
		return fmt.Errorf("log rotation must be daily, weekly or size, got %q", settings.Rotation)
	}
	if settings.Rotation == RotationSize && settings.MaxSize <= 0 {
		return errors.New("log maxsize must be positive with size rotation")
	}
	return nil
}

func validateTransferSettings(settings *TransferSettings) error {
	var errs []string

	if settings.PollInterval <= 0 {
		errs = append(errs, "transfer poll interval must be positive")
	}
	if settings.ProgressStep <= 0 || settings.ProgressStep > 100 {
		errs = append(errs, "transfer progress step must be between 0 and 100 percent")
	}
	if settings.StallTimeout < 0 {
		errs = append(errs, "transfer stall timeout must not be negative")
	}
	if settings.DiskWarning < 0 || settings.DiskWarning > 100 {
		errs = append(errs, "transfer disk warning must be between 0 and 100 percent")
	}
	if _, err := settings.ExpectedBytes(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("transfer settings errors: %v", errs)
	}
	return nil
}

func validateNotificationSettings(settings *NotificationSettings) error {
	var errs []string

	if settings.MinInterval < 0 {
		errs = append(errs, "notification min interval must not be negative")
	}
	if settings.ValidatorTTL <= 0 {
		errs = append(errs, "notification validator ttl must be positive")
	}
	if settings.CleanupTimeout <= 0 {
		errs = append(errs, "notification cleanup timeout must be positive")
	}
	if err := validateLogConfig(&settings.Log); err != nil {
		errs = append(errs, "notification "+err.Error())
	}

	// Engine keys are checked here so a typo fails at startup. Adapter keys
	// are checked by the adapter validators when the provider is created.
	for _, id := range sortedKeys(settings.Providers) {
		if err := notification.ValidateProviderConfig(settings.Providers[id]); err != nil {
			errs = append(errs, fmt.Sprintf("provider %s: %v", id, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification settings errors: %v", errs)
	}
	return nil
}

func validateServerSettings(settings *ServerSettings) error {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("server listen address must be host:port, got %q", settings.Listen)
	}
	return nil
}

// ExpectedBytes parses the expected transfer size. Zero means unknown.
func (t TransferSettings) ExpectedBytes() (uint64, error) {
	s := strings.TrimSpace(t.ExpectedSize)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("transfer expected size %q: %w", t.ExpectedSize, err)
	}
	return n, nil
}

// ParseLogLevel maps a config log level name to a slog level. An empty name
// means info.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}
