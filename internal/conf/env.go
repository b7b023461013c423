// env.go - Environment variable configuration and validation for xferwatch
package conf

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the environment variables that are validated before
// use. Every other key is still reachable through the XFERWATCH_ prefix.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "XFERWATCH_DEBUG", validateEnvBool},
		{"main.loglevel", "XFERWATCH_LOGLEVEL", validateEnvLogLevel},

		// Transfer
		{"transfer.processname", "XFERWATCH_TRANSFER_PROCESSNAME", nil},
		{"transfer.destination", "XFERWATCH_TRANSFER_DESTINATION", validateEnvPath},
		{"transfer.expectedsize", "XFERWATCH_TRANSFER_EXPECTEDSIZE", validateEnvSize},
		{"transfer.pollinterval", "XFERWATCH_TRANSFER_POLLINTERVAL", validateEnvDuration},
		{"transfer.progressstep", "XFERWATCH_TRANSFER_PROGRESSSTEP", validateEnvPercent},
		{"transfer.stalltimeout", "XFERWATCH_TRANSFER_STALLTIMEOUT", validateEnvDuration},
		{"transfer.diskwarning", "XFERWATCH_TRANSFER_DISKWARNING", validateEnvPercent},

		// Status server and telemetry
		{"server.enabled", "XFERWATCH_SERVER_ENABLED", validateEnvBool},
		{"server.listen", "XFERWATCH_SERVER_LISTEN", validateEnvListen},
		{"sentry.enabled", "XFERWATCH_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "XFERWATCH_SENTRY_DSN", validateEnvURL},

		// Provider secrets
		{"notification.providers.discord.webhook_url", "XFERWATCH_DISCORD_WEBHOOK_URL", validateEnvURL},
		{"notification.providers.telegram.bot_token", "XFERWATCH_TELEGRAM_BOT_TOKEN", nil},
		{"notification.providers.telegram.chat_id", "XFERWATCH_TELEGRAM_CHAT_ID", nil},
		{"notification.providers.webhook.url", "XFERWATCH_WEBHOOK_URL", validateEnvURL},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value: %v", binding.EnvVar, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("log level must be one of debug, info, warn, error, got '%s'", value)
}

func validateEnvDuration(value string) error {
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvPercent(value string) error {
	p, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid percentage: %w", err)
	}
	if p <= 0 || p > 100 {
		return fmt.Errorf("percentage must be in (0, 100], got %g", p)
	}
	return nil
}

func validateEnvSize(value string) error {
	if _, err := humanize.ParseBytes(value); err != nil {
		return fmt.Errorf("invalid size: %w", err)
	}
	return nil
}

func validateEnvListen(value string) error {
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("listen address must be host:port: %w", err)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL must be absolute")
	}
	return nil
}

func validateEnvPath(value string) error {
	cleanedPath := filepath.Clean(value)

	if !filepath.IsAbs(cleanedPath) {
		return fmt.Errorf("path must be absolute, got relative path: %s", cleanedPath)
	}

	// Warn but do not fail, the transfer may not have created it yet.
	if _, err := os.Stat(cleanedPath); os.IsNotExist(err) {
		return fmt.Errorf("warning: path does not exist: %s", cleanedPath)
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return bindEnvVars(v)
}
