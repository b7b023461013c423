package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Provider delivers messages to one external channel. Implementations own
// their transport session and any protocol specific retry such as honouring
// HTTP 429 Retry-After; the engine retry wraps around that.
type Provider interface {
	// Name returns the provider id.
	Name() string
	// Send delivers one message. Irrecoverable delivery failures are
	// returned as *TransportError.
	Send(ctx context.Context, msg *Message) error
	// Connect prepares the transport session. Called once by the registry.
	Connect(ctx context.Context) error
	// Disconnect releases the session. Called by Registry.Cleanup.
	Disconnect(ctx context.Context) error
}

// NotifierOptions tune a Notifier beyond its ProviderConfig.
type NotifierOptions struct {
	MinInterval     time.Duration
	PriorityConfigs map[Priority]ProviderConfig
	Metrics         MetricsRecorder
}

// Notifier runs the delivery pipeline for one provider: disabled fast-fail,
// rate limiting, send with retry and state bookkeeping. Calls on one
// Notifier are serialised in arrival order; different Notifiers run
// independently.
type Notifier struct {
	name     string
	provider Provider
	config   ProviderConfig
	state    *NotificationState
	limiter  *RateLimiter
	retry    *RetryController
	metrics  MetricsRecorder
	notifyMu orderedLock
}

// NewNotifier wraps p with the engine pipeline.
func NewNotifier(p Provider, cfg ProviderConfig, opts NotifierOptions) *Notifier {
	name := p.Name()
	state := NewNotificationState()
	metrics := metricsOrNoop(opts.Metrics)

	overrides := make(map[Priority]RetryPolicy, len(opts.PriorityConfigs))
	for prio, pc := range opts.PriorityConfigs {
		overrides[prio] = pc.retryPolicy()
	}

	n := &Notifier{
		name:     name,
		provider: p,
		config:   cfg,
		state:    state,
		limiter: NewRateLimiter(name, RateLimitPolicy{
			Limit:       cfg.RateLimit,
			Period:      cfg.RatePeriod,
			MinInterval: opts.MinInterval,
		}, state),
		retry:   NewRetryController(name, cfg.retryPolicy(), overrides),
		metrics: metrics,
	}
	n.retry.onStateChange = func(_, to string) {
		metrics.SetProviderDisabled(name, to == StateDisabled)
	}
	return n
}

func (n *Notifier) Name() string                 { return n.name }
func (n *Notifier) Provider() Provider           { return n.provider }
func (n *Notifier) Config() ProviderConfig       { return n.config }
func (n *Notifier) State() *NotificationState    { return n.state }
func (n *Notifier) RateLimiter() *RateLimiter    { return n.limiter }
func (n *Notifier) Retry() *RetryController      { return n.retry }
func (n *Notifier) Enabled() bool                { return n.config.Enabled }
func (n *Notifier) ConsecutiveErrors() int       { return n.retry.ConsecutiveErrors() }
func (n *Notifier) Disabled() bool               { return n.retry.Disabled() }

// Reset re-enables a provider disabled after repeated failures.
func (n *Notifier) Reset() { n.retry.Reset() }

// Notify builds a message and delivers it. It returns false when the message
// was rate limited, the provider is disabled, or delivery failed after all
// retries. It never returns an error.
func (n *Notifier) Notify(ctx context.Context, text string, level Level, typ Type, extra map[string]any) bool {
	opts := []MessageOption{WithMetadata(extra)}
	if p, ok := priorityFromExtra(extra); ok {
		opts = append(opts, WithPriority(p))
	}
	return n.NotifyMessage(ctx, NewMessage(text, level, typ, opts...))
}

// NotifyMessage delivers a prepared message, reporting success as a bool.
func (n *Notifier) NotifyMessage(ctx context.Context, msg *Message) bool {
	return n.Deliver(ctx, msg) == nil
}

// Deliver runs the pipeline and reports why a message was not delivered:
// ErrProviderDisabled, ErrRateLimited, the context error, or the last
// *TransportError.
func (n *Notifier) Deliver(ctx context.Context, msg *Message) error {
	if err := n.notifyMu.Lock(ctx); err != nil {
		return err
	}
	defer n.notifyMu.Unlock()
	// A free lock is granted even to a cancelled caller; stop before the
	// limiter counts the message.
	if err := ctx.Err(); err != nil {
		return err
	}

	log := getLogger().With("provider", n.name, "message_id", msg.ID(), "type", msg.Type(), "priority", msg.Priority())

	if n.retry.Disabled() {
		log.Debug("provider disabled, dropping message")
		n.metrics.RecordRateLimited(n.name, StateDisabled)
		return ErrProviderDisabled
	}
	if !n.retry.CanRetry() {
		log.Debug("provider rate limited by remote, dropping message",
			"until", n.retry.RateLimitedUntil())
		n.metrics.RecordRateLimited(n.name, reasonServer)
		return fmt.Errorf("%w: %s", ErrRateLimited, reasonServer)
	}
	if d := n.limiter.Allow(msg.Priority(), msg.Type()); !d.Allowed {
		log.Debug("notification rate limited", "reason", d.Reason, "retry_in", d.RetryIn)
		n.metrics.RecordRateLimited(n.name, d.Reason)
		return fmt.Errorf("%w: %s", ErrRateLimited, d.Reason)
	}

	start := time.Now()
	err := n.sendWithRetry(ctx, msg, log)
	if IsCancellation(err) && ctx.Err() != nil {
		log.Debug("delivery cancelled")
		return ctx.Err()
	}

	n.state.AddNotification(msg, err == nil)
	n.metrics.RecordDelivery(n.name, err == nil, time.Since(start))

	if err != nil {
		n.retry.RecordFailure(err)
		log.Warn("notification delivery failed",
			"error", err,
			"consecutive_errors", n.retry.ConsecutiveErrors())
		return err
	}
	n.retry.RecordSuccess()
	log.Debug("notification delivered", "duration", time.Since(start))
	return nil
}

// sendWithRetry performs one logical send: the first attempt plus the
// priority scaled number of retries.
func (n *Notifier) sendWithRetry(ctx context.Context, msg *Message, log *slog.Logger) error {
	retries := n.retry.Attempts(msg.Priority())

	var lastErr *TransportError
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			wait := n.retry.Delay(attempt-1, msg.Priority())
			if lastErr != nil && lastErr.RetryAfter > wait {
				wait = min(lastErr.RetryAfter, MaxRetryDelay)
			}
			n.metrics.RecordRetry(n.name)
			log.Debug("retrying notification", "attempt", attempt, "max_retries", retries, "delay", wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}

		err := n.provider.Send(ctx, msg)
		if err == nil {
			return nil
		}
		if IsCancellation(err) && ctx.Err() != nil {
			return ctx.Err()
		}
		if IsConfigurationError(err) {
			return err
		}

		te := asTransportError(n.name, err)
		lastErr = te
		if te.RetryAfter > 0 {
			n.retry.MarkRateLimited(time.Now().Add(te.RetryAfter))
		}
		if !te.Retryable {
			return te
		}
	}
	return lastErr
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ProviderStatus is a JSON friendly summary of a Notifier.
type ProviderStatus struct {
	Name              string        `json:"name"`
	State             string        `json:"state"`
	Enabled           bool          `json:"enabled"`
	Tags              []string      `json:"tags,omitempty"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	LastError         string        `json:"last_error,omitempty"`
	DisabledSince     *time.Time    `json:"disabled_since,omitempty"`
	RateLimitedUntil  *time.Time    `json:"rate_limited_until,omitempty"`
	Stats             StateSnapshot `json:"stats"`
}

// Status summarises the notifier without blocking on in-flight deliveries.
func (n *Notifier) Status() ProviderStatus {
	st := ProviderStatus{
		Name:              n.name,
		State:             n.retry.State(),
		Enabled:           n.config.Enabled,
		Tags:              append([]string(nil), n.config.Tags...),
		ConsecutiveErrors: n.retry.ConsecutiveErrors(),
		Stats:             n.state.Snapshot(),
	}
	if err := n.retry.LastError(); err != nil {
		st.LastError = err.Error()
	}
	if t := n.retry.DisabledSince(); !t.IsZero() {
		st.DisabledSince = &t
	}
	if t := n.retry.RateLimitedUntil(); time.Now().Before(t) {
		st.RateLimitedUntil = &t
	}
	return st
}

// orderedLock is a mutex that hands ownership to waiters in arrival order
// and lets a waiter give up when its context ends.
type orderedLock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

func (l *orderedLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == ch {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// ownership was handed over concurrently; pass it on
		l.Unlock()
		return ctx.Err()
	}
}

func (l *orderedLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next)
		return
	}
	l.held = false
}
