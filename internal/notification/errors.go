package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/xferwatch/internal/errors"
)

const componentName = "notification"

// Sentinel errors returned by the registry and by Notifier.Deliver.
var (
	ErrProviderNotFound    = errors.NewStd("provider not registered")
	ErrAlreadyRegistered   = errors.NewStd("provider already registered")
	ErrRateLimited         = errors.NewStd("notification rate limited")
	ErrProviderDisabled    = errors.NewStd("provider disabled after repeated failures")
	ErrInvalidRegistration = errors.NewStd("invalid provider registration")
	ErrRegistryCleanedUp   = errors.NewStd("registry cleaned up during provider creation")
)

// ConfigurationError reports a missing or invalid provider configuration.
// It is only ever returned from setup-time calls.
type ConfigurationError struct {
	Provider string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for provider %q: %v", e.Provider, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// newConfigurationError wraps err and records it through the enhanced error
// builder so it reaches telemetry with a component and category.
func newConfigurationError(provider string, err error) *ConfigurationError {
	return &ConfigurationError{
		Provider: provider,
		Err: errors.New(err).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("provider", provider).
			Build(),
	}
}

// TransportError is returned by adapters when delivery failed at the network
// or protocol level.
type TransportError struct {
	Provider   string
	StatusCode int           // HTTP status, 0 when not applicable
	RetryAfter time.Duration // server requested backoff, 0 when none
	Retryable  bool          // false for permanent failures such as 401 or 404
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transport error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError builds a retryable transport error.
func NewTransportError(provider string, err error) *TransportError {
	return &TransportError{Provider: provider, Retryable: true, Err: err}
}

// IsCancellation reports whether err is a context cancellation or deadline.
// Such errors are never treated as provider failures.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// asTransportError classifies err. Untyped adapter errors are treated as
// retryable transport failures.
func asTransportError(provider string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return NewTransportError(provider, err)
}
