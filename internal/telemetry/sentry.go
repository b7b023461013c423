// Package telemetry initialises Sentry error reporting for enhanced errors.
package telemetry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/xferwatch/internal/conf"
	"github.com/tphakala/xferwatch/internal/errors"
	"github.com/tphakala/xferwatch/internal/logging"
)

const flushTimeout = 2 * time.Second

func getLogger() *slog.Logger {
	return logging.ForService("telemetry")
}

// Option adjusts the Sentry client options.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the Sentry transport.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// Init configures Sentry from settings and installs the enhanced error
// reporter. Disabled settings install a disabled reporter and return nil.
// The returned function flushes pending events.
func Init(settings conf.SentrySettings, release string, opts ...Option) (func(), error) {
	if !settings.Enabled {
		errors.SetTelemetryReporter(errors.NewSentryReporter(false))
		return func() {}, nil
	}

	options := sentry.ClientOptions{
		Dsn:        settings.DSN,
		SampleRate: 1.0,
		Debug:      false,

		AttachStacktrace: false,
		Environment:      settings.Environment,
		ServerName:       "", // keeps the hostname out of events
		Release:          release,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := sentry.Init(options); err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	getLogger().Info("error telemetry enabled", "environment", settings.Environment)

	return func() { sentry.Flush(flushTimeout) }, nil
}

// applyPrivacyFilters drops user, host and runtime details from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
