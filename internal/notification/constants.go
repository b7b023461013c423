package notification

import "time"

const (
	// MaxHistorySize bounds the per-provider history ring.
	MaxHistorySize = 100

	// DefaultMinInterval is the global minimum gap between two messages of
	// the same type on one provider.
	DefaultMinInterval = time.Second

	// DefaultValidatorTTL is how long a cached validator stays usable.
	DefaultValidatorTTL = 1800 * time.Second

	slowValidationThreshold     = 1 * time.Second
	verySlowValidationThreshold = 3 * time.Second

	// MaxRetryDelay caps the exponential backoff before jitter.
	MaxRetryDelay = 30 * time.Second

	// DefaultDisableThreshold is the number of consecutive logical failures
	// after which a provider is disabled.
	DefaultDisableThreshold = 3

	// DefaultCleanupTimeout bounds Registry.Cleanup when no timeout is given.
	DefaultCleanupTimeout = 5 * time.Second

	// DefaultCreateTimeout bounds validation and Connect of one provider
	// creation, independent of the callers waiting for it.
	DefaultCreateTimeout = 30 * time.Second
)

// Provider connection states.
const (
	StateConnected = "connected"
	StateDisabled  = "disabled"
)

// Rate limit denial reasons, also used as metric labels.
const (
	reasonTypeInterval = "type_interval"
	reasonPriority     = "priority_limit"
	reasonType         = "type_limit"
	reasonServer       = "server_rate_limited"
)

// Configuration keys understood by the engine. Anything else in a provider
// config is adapter specific.
const (
	KeyEnabled       = "enabled"
	KeyRateLimit     = "rate_limit"
	KeyRatePeriod    = "rate_period"
	KeyRetryAttempts = "retry_attempts"
	KeyRetryDelay    = "retry_delay"
	KeyTags          = "tags"
)
