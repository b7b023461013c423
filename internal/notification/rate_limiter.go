package notification

import (
	"math"
	"sync"
	"time"
)

// RateLimitPolicy is the base allowance of a provider. Effective allowances
// are derived per priority and, independently, per type.
type RateLimitPolicy struct {
	Limit       int           // messages per Period before scaling
	Period      time.Duration // sliding window length
	MinInterval time.Duration // minimum gap between two messages of one type
}

var priorityMultipliers = map[Priority]float64{
	PriorityLow:    0.5,
	PriorityNormal: 1.0,
	PriorityHigh:   2.0,
}

var typeMultipliers = map[Type]float64{
	TypeDebug:    0.25,
	TypeProgress: 0.5,
	TypeSystem:   1.5,
	TypeError:    2.0,
}

func typeMultiplier(t Type) float64 {
	if m, ok := typeMultipliers[t]; ok {
		return m
	}
	return 1.0
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed bool
	Reason  string        // empty when allowed
	RetryIn time.Duration // earliest time a retry could pass, best effort
}

// lastSeenSource exposes the per-type last-seen timestamps, owned by the
// provider's NotificationState.
type lastSeenSource interface {
	LastSeen(Type) (time.Time, bool)
}

// RateLimiter applies two independent checks: a per-type minimum interval
// gate and sliding-window allowances keyed by priority and by type. The two
// multiplier tables are never combined.
type RateLimiter struct {
	mu             sync.Mutex
	policy         RateLimitPolicy
	lastSeen       lastSeenSource
	priorityLimits map[Priority]int
	typeLimits     map[Type]int
	priorityWindow map[Priority][]time.Time
	typeWindow     map[Type][]time.Time
}

// NewRateLimiter computes the effective allowances once. Allowances that
// round down to zero deny every message of that dimension; a warning is
// logged so the misconfiguration is visible.
func NewRateLimiter(provider string, policy RateLimitPolicy, lastSeen lastSeenSource) *RateLimiter {
	rl := &RateLimiter{
		policy:         policy,
		lastSeen:       lastSeen,
		priorityLimits: make(map[Priority]int, len(Priorities)),
		typeLimits:     make(map[Type]int, len(Types)),
		priorityWindow: make(map[Priority][]time.Time),
		typeWindow:     make(map[Type][]time.Time),
	}

	for _, p := range Priorities {
		rl.priorityLimits[p] = scaledLimit(policy.Limit, priorityMultipliers[p])
		if rl.priorityLimits[p] == 0 {
			getLogger().Warn("rate limit allowance rounds to zero, messages will be dropped",
				"provider", provider, "priority", p, "rate_limit", policy.Limit)
		}
	}
	for _, t := range Types {
		rl.typeLimits[t] = scaledLimit(policy.Limit, typeMultiplier(t))
		if rl.typeLimits[t] == 0 {
			getLogger().Warn("rate limit allowance rounds to zero, messages will be dropped",
				"provider", provider, "type", t, "rate_limit", policy.Limit)
		}
	}
	return rl
}

func scaledLimit(base int, mult float64) int {
	return int(math.Floor(float64(base) * mult))
}

// PriorityAllowance returns the effective allowance for p per period.
func (rl *RateLimiter) PriorityAllowance(p Priority) int {
	return rl.priorityLimits[p]
}

// TypeAllowance returns the effective allowance for t per period.
func (rl *RateLimiter) TypeAllowance(t Type) int {
	return rl.typeLimits[t]
}

// Allow decides whether a message may be sent now and, if so, records it in
// both windows.
func (rl *RateLimiter) Allow(p Priority, t Type) Decision {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.policy.MinInterval > 0 && rl.lastSeen != nil {
		if last, ok := rl.lastSeen.LastSeen(t); ok {
			if elapsed := now.Sub(last); elapsed < rl.policy.MinInterval {
				return Decision{Reason: reasonTypeInterval, RetryIn: rl.policy.MinInterval - elapsed}
			}
		}
	}

	pw := prune(rl.priorityWindow[p], now, rl.policy.Period)
	rl.priorityWindow[p] = pw
	tw := prune(rl.typeWindow[t], now, rl.policy.Period)
	rl.typeWindow[t] = tw

	if len(pw) >= rl.priorityLimits[p] {
		return Decision{Reason: reasonPriority, RetryIn: retryIn(pw, now, rl.policy.Period)}
	}
	if len(tw) >= rl.typeLimits[t] {
		return Decision{Reason: reasonType, RetryIn: retryIn(tw, now, rl.policy.Period)}
	}

	rl.priorityWindow[p] = append(pw, now)
	rl.typeWindow[t] = append(tw, now)
	return Decision{Allowed: true}
}

// prune drops timestamps that left the window. Timestamps are appended in
// order so the survivors are a suffix.
func prune(window []time.Time, now time.Time, period time.Duration) []time.Time {
	cutoff := now.Add(-period)
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return window
	}
	return append(window[:0], window[i:]...)
}

func retryIn(window []time.Time, now time.Time, period time.Duration) time.Duration {
	if len(window) == 0 {
		return period
	}
	return window[0].Add(period).Sub(now)
}
