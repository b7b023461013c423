package notification

import (
	"math/rand/v2"
	"sync"
	"time"
)

// RetryPolicy describes how hard a provider retries one logical send.
type RetryPolicy struct {
	Attempts         int           // retries after the first send, before priority scaling
	BaseDelay        time.Duration // delay before the first retry, doubled per attempt
	MaxDelay         time.Duration // cap applied before jitter
	DisableThreshold int           // consecutive logical failures before disabling
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxDelay <= 0 {
		p.MaxDelay = MaxRetryDelay
	}
	if p.DisableThreshold <= 0 {
		p.DisableThreshold = DefaultDisableThreshold
	}
	if p.Attempts < 0 {
		p.Attempts = 0
	}
	return p
}

// RetryController tracks consecutive logical failures of one provider and
// computes backoff delays. Reaching the threshold disables the provider
// until Reset is called.
type RetryController struct {
	mu               sync.Mutex
	provider         string
	policies         map[Priority]RetryPolicy
	consecutive      int
	state            string
	lastError        error
	disabledAt       time.Time
	rateLimitedUntil time.Time
	onStateChange    func(from, to string)
	jitter           func(time.Duration) time.Duration
}

// NewRetryController creates a connected controller. policies may hold
// per-priority overrides; missing priorities use base.
func NewRetryController(provider string, base RetryPolicy, policies map[Priority]RetryPolicy) *RetryController {
	rc := &RetryController{
		provider: provider,
		policies: make(map[Priority]RetryPolicy, len(Priorities)),
		state:    StateConnected,
		jitter:   uniformJitter,
	}
	for _, p := range Priorities {
		pol, ok := policies[p]
		if !ok {
			pol = base
		}
		rc.policies[p] = pol.withDefaults()
	}
	return rc
}

// uniformJitter returns a duration uniformly distributed in [0, d].
func uniformJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}

// Attempts returns the number of retries allowed after the first send.
func (rc *RetryController) Attempts(p Priority) int {
	base := rc.policy(p).Attempts
	switch p {
	case PriorityLow:
		return max(1, base-1)
	case PriorityHigh:
		return base + 1
	default:
		return base
	}
}

// Delay returns the wait before retry number attempt (0-based). The
// exponential delay is capped, jittered in [0, d] and only then scaled by
// priority.
func (rc *RetryController) Delay(attempt int, p Priority) time.Duration {
	pol := rc.policy(p)

	d := pol.BaseDelay
	for i := 0; i < attempt && d < pol.MaxDelay; i++ {
		d *= 2
	}
	d = min(d, pol.MaxDelay)

	d = rc.jitter(d)

	switch p {
	case PriorityHigh:
		return d / 2
	case PriorityLow:
		return d * 2
	default:
		return d
	}
}

func (rc *RetryController) policy(p Priority) RetryPolicy {
	if pol, ok := rc.policies[p]; ok {
		return pol
	}
	return rc.policies[PriorityNormal]
}

// RecordSuccess clears the consecutive failure count.
func (rc *RetryController) RecordSuccess() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.consecutive = 0
	rc.lastError = nil
}

// RecordFailure counts one logical failure. Only transport errors count;
// cancellation and configuration errors are ignored. It reports whether this
// call disabled the provider.
func (rc *RetryController) RecordFailure(err error) bool {
	if err == nil || IsCancellation(err) || IsConfigurationError(err) {
		return false
	}

	rc.mu.Lock()
	rc.lastError = err
	if rc.state == StateDisabled {
		rc.mu.Unlock()
		return false
	}
	rc.consecutive++
	if rc.consecutive < rc.policies[PriorityNormal].DisableThreshold {
		rc.mu.Unlock()
		return false
	}
	rc.state = StateDisabled
	rc.disabledAt = time.Now()
	count := rc.consecutive
	cb := rc.onStateChange
	rc.mu.Unlock()

	getLogger().Error("provider disabled after consecutive failures",
		"provider", rc.provider,
		"consecutive_errors", count,
		"error", err)
	if cb != nil {
		cb(StateConnected, StateDisabled)
	}
	return true
}

// Reset re-enables a disabled provider and clears all failure state.
func (rc *RetryController) Reset() {
	rc.mu.Lock()
	was := rc.state
	rc.state = StateConnected
	rc.consecutive = 0
	rc.lastError = nil
	rc.disabledAt = time.Time{}
	rc.rateLimitedUntil = time.Time{}
	cb := rc.onStateChange
	rc.mu.Unlock()

	if was == StateDisabled {
		getLogger().Info("provider re-enabled", "provider", rc.provider)
		if cb != nil {
			cb(StateDisabled, StateConnected)
		}
	}
}

// MarkRateLimited records that the remote side asked us to back off until
// the given time. It does not change the connection state.
func (rc *RetryController) MarkRateLimited(until time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if until.After(rc.rateLimitedUntil) {
		rc.rateLimitedUntil = until
	}
}

// RateLimitedUntil returns the server imposed backoff deadline, zero if none.
func (rc *RetryController) RateLimitedUntil() time.Time {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.rateLimitedUntil
}

// CanRetry reports whether a send may be attempted now.
func (rc *RetryController) CanRetry() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state != StateDisabled && !time.Now().Before(rc.rateLimitedUntil)
}

// Disabled reports whether the provider is in the disabled state.
func (rc *RetryController) Disabled() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state == StateDisabled
}

// State returns the connection state name.
func (rc *RetryController) State() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

// DisabledSince returns when the provider was disabled, zero if it is not.
func (rc *RetryController) DisabledSince() time.Time {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.disabledAt
}

// ConsecutiveErrors returns the current consecutive logical failure count.
func (rc *RetryController) ConsecutiveErrors() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.consecutive
}

// LastError returns the error of the most recent counted failure.
func (rc *RetryController) LastError() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.lastError
}
