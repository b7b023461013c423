package notification

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tphakala/xferwatch/internal/errors"
)

// ProviderConstructor builds an adapter from its decoded configuration.
type ProviderConstructor func(name string, cfg ProviderConfig) (Provider, error)

type registration struct {
	construct ProviderConstructor
	validator ValidatorFactory
}

// Registry binds provider ids to constructors, owns the single live
// Notifier of each id and tears everything down in Cleanup. Build one at
// startup and pass it to the code that needs it.
type Registry struct {
	mu            sync.RWMutex
	registrations map[string]registration
	defaults      map[string]map[string]any
	active        map[string]*Notifier
	generation    uint64 // bumped by Cleanup, guarded by mu

	validators   *ValidatorCache
	validatorTTL time.Duration
	creating     singleflight.Group
	tasks        *taskTracker
	metrics      MetricsRecorder
	minInterval  time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMetrics reports engine measurements to m.
func WithMetrics(m MetricsRecorder) RegistryOption {
	return func(r *Registry) { r.metrics = metricsOrNoop(m) }
}

// WithMinInterval overrides the per-type minimum interval for every provider.
func WithMinInterval(d time.Duration) RegistryOption {
	return func(r *Registry) { r.minInterval = d }
}

// WithValidatorTTL overrides the validator cache TTL.
func WithValidatorTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) { r.validatorTTL = ttl }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		registrations: make(map[string]registration),
		defaults:      make(map[string]map[string]any),
		active:        make(map[string]*Notifier),
		tasks:         newTaskTracker(),
		metrics:       noopMetrics{},
		minInterval:   DefaultMinInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.validators = NewValidatorCache(r.validatorTTL, r.metrics)
	return r
}

// Register binds a provider id to its constructor and validator. A zero
// ValidatorFactory selects DefaultValidatorFactory. Ids can only be
// registered once.
func (r *Registry) Register(id string, construct ProviderConstructor, validator ValidatorFactory) error {
	if id == "" || construct == nil {
		return fmt.Errorf("%w: id and constructor are required", ErrInvalidRegistration)
	}
	if validator.New == nil {
		validator = DefaultValidatorFactory
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.registrations[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	r.registrations[id] = registration{construct: construct, validator: validator}
	getLogger().Debug("provider registered", "provider", id, "validator", validator.Name)
	return nil
}

// Registered returns the sorted ids of all registered providers.
func (r *Registry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.registrations))
}

// RegisterConfig stores the default configuration used when CreateProvider
// is called without one. The config is decoded to catch type errors early
// but not validated.
func (r *Registry) RegisterConfig(id string, cfg map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registrations[id]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	if _, err := DecodeProviderConfig(cfg); err != nil {
		return newConfigurationError(id, err)
	}
	r.defaults[id] = deepCopyMetadata(cfg)
	return nil
}

type createOptions struct {
	config         map[string]any
	validate       bool
	connect        bool
	priorityConfig map[Priority]map[string]any
}

// CreateOption customises CreateProvider.
type CreateOption func(*createOptions)

// WithConfig supplies the provider config, taking precedence over the one
// stored by RegisterConfig.
func WithConfig(cfg map[string]any) CreateOption {
	return func(o *createOptions) { o.config = cfg }
}

// WithoutValidation skips config validation.
func WithoutValidation() CreateOption {
	return func(o *createOptions) { o.validate = false }
}

// WithoutConnect skips the Connect call after construction.
func WithoutConnect() CreateOption {
	return func(o *createOptions) { o.connect = false }
}

// WithPriorityConfig supplies per-priority overrides that are deep merged
// onto the base config.
func WithPriorityConfig(overrides map[Priority]map[string]any) CreateOption {
	return func(o *createOptions) { o.priorityConfig = overrides }
}

// CreateProvider returns the live Notifier for id, building and connecting
// it on first use. Later calls return the same instance and ignore their
// options. Concurrent first calls construct exactly once. A caller whose ctx
// ends stops waiting with ctx.Err(); the creation itself carries on, bounded
// by DefaultCreateTimeout, for the callers still waiting. A Cleanup during
// creation discards the new provider and fails with ErrRegistryCleanedUp.
//
// Construction failures are returned as *ConfigurationError. Errors the
// adapter returns as *TransportError or *ConfigurationError, and context
// errors, are returned unchanged.
func (r *Registry) CreateProvider(ctx context.Context, id string, opts ...CreateOption) (*Notifier, error) {
	if n := r.activeProvider(id); n != nil {
		return n, nil
	}

	r.mu.RLock()
	reg, ok := r.registrations[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}

	o := createOptions{validate: true, connect: true}
	for _, opt := range opts {
		opt(&o)
	}

	// The build outlives the caller that started it so callers joining the
	// same creation are not failed by that caller's cancellation.
	ch := r.creating.DoChan(id, func() (any, error) {
		if n := r.activeProvider(id); n != nil {
			return n, nil
		}
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultCreateTimeout)
		defer cancel()
		return r.build(buildCtx, id, reg, o)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			getLogger().Debug("joined in-flight provider creation", "provider", id)
		}
		return res.Val.(*Notifier), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) activeProvider(id string) *Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[id]
}

func (r *Registry) build(ctx context.Context, id string, reg registration, o createOptions) (*Notifier, error) {
	r.mu.RLock()
	generation := r.generation
	raw := o.config
	if raw == nil {
		raw = deepCopyMetadata(r.defaults[id])
	}
	r.mu.RUnlock()
	if raw == nil {
		return nil, newConfigurationError(id, errors.NewStd("no configuration supplied or registered"))
	}

	base := deepMerge(DefaultConfigMap(), raw)
	cfg, err := DecodeProviderConfig(base)
	if err != nil {
		return nil, newConfigurationError(id, err)
	}
	if o.validate {
		if err := r.validators.Validate(ctx, id, reg.validator, cfg, PriorityNormal); err != nil {
			return nil, r.setupError(id, err)
		}
	}

	priorityConfigs := make(map[Priority]ProviderConfig, len(o.priorityConfig))
	for prio, override := range o.priorityConfig {
		if !prio.Valid() {
			return nil, newConfigurationError(id, fmt.Errorf("unknown priority %q in priority config", prio))
		}
		pc, err := DecodeProviderConfig(deepMerge(base, override))
		if err != nil {
			return nil, newConfigurationError(id, fmt.Errorf("priority %s: %w", prio, err))
		}
		if o.validate {
			if err := r.validators.Validate(ctx, id, reg.validator, pc, prio); err != nil {
				return nil, r.setupError(id, fmt.Errorf("priority %s: %w", prio, err))
			}
		}
		priorityConfigs[prio] = pc
	}

	provider, err := reg.construct(id, cfg)
	if err != nil {
		return nil, r.setupError(id, err)
	}
	if provider == nil {
		return nil, newConfigurationError(id, errors.NewStd("constructor returned no provider"))
	}

	if o.connect {
		if err := provider.Connect(ctx); err != nil {
			if IsCancellation(err) {
				return nil, err
			}
			var te *TransportError
			if errors.As(err, &te) {
				return nil, te
			}
			return nil, asTransportError(id, err)
		}
	}

	n := NewNotifier(provider, cfg, NotifierOptions{
		MinInterval:     r.minInterval,
		PriorityConfigs: priorityConfigs,
		Metrics:         r.metrics,
	})

	r.mu.Lock()
	if r.generation != generation {
		r.mu.Unlock()
		// Cleanup ran while this provider was being built.
		if o.connect {
			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultCleanupTimeout)
			defer cancel()
			if err := provider.Disconnect(dctx); err != nil {
				getLogger().Warn("provider disconnect failed", "provider", id, "error", err)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrRegistryCleanedUp, id)
	}
	r.active[id] = n
	count := len(r.active)
	r.mu.Unlock()

	r.metrics.SetActiveProviders(count)
	getLogger().Info("provider created",
		"provider", id,
		"enabled", cfg.Enabled,
		"rate_limit", cfg.RateLimit,
		"rate_period", cfg.RatePeriod,
		"priority_overrides", len(priorityConfigs))
	return n, nil
}

// setupError passes adapter domain errors and cancellation through and wraps
// everything else as a ConfigurationError.
func (r *Registry) setupError(id string, err error) error {
	if IsCancellation(err) {
		return err
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return newConfigurationError(id, err)
}

// GetProvider is CreateProvider for callers that treat a missing or
// misconfigured provider as absent: it returns nil, nil in those cases.
// Other failures, such as a failed Connect, are still returned.
func (r *Registry) GetProvider(ctx context.Context, id string, opts ...CreateOption) (*Notifier, error) {
	n, err := r.CreateProvider(ctx, id, opts...)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, ErrProviderNotFound), IsConfigurationError(err):
		getLogger().Debug("provider unavailable", "provider", id, "error", err)
		return nil, nil
	default:
		return nil, err
	}
}

// Lookup returns the live Notifier for id without creating it.
func (r *Registry) Lookup(id string) (*Notifier, bool) {
	n := r.activeProvider(id)
	return n, n != nil
}

// Active returns the live Notifiers sorted by name.
func (r *Registry) Active() []*Notifier {
	r.mu.RLock()
	out := make([]*Notifier, 0, len(r.active))
	for _, n := range r.active {
		out = append(out, n)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Notifier) int { return cmp.Compare(a.name, b.name) })
	return out
}

// Validators exposes the validator cache for status reporting.
func (r *Registry) Validators() *ValidatorCache { return r.validators }

// Cleanup disconnects every live provider concurrently and waits at most
// timeout for them. Disconnect failures are logged, stragglers are
// abandoned. Afterwards the live providers, the validator cache and tracked
// background tasks are always cleared.
func (r *Registry) Cleanup(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultCleanupTimeout
	}

	r.mu.Lock()
	providers := make([]*Notifier, 0, len(r.active))
	for _, n := range r.active {
		providers = append(providers, n)
	}
	r.active = make(map[string]*Notifier)
	r.generation++
	r.mu.Unlock()

	r.tasks.cancelAll()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var g errgroup.Group
	for _, n := range providers {
		g.Go(func() error {
			if err := n.provider.Disconnect(ctx); err != nil {
				getLogger().Warn("provider disconnect failed", "provider", n.name, "error", err)
				return nil
			}
			getLogger().Debug("provider disconnected", "provider", n.name)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		getLogger().Warn("cleanup timed out, abandoning pending disconnects",
			"timeout", timeout, "providers", len(providers))
	}

	r.validators.Clear()
	r.tasks.clear()
	r.metrics.SetActiveProviders(0)
	getLogger().Info("notification providers cleaned up", "providers", len(providers))
}

// Go runs fn as a tracked background task. Cleanup cancels its context.
func (r *Registry) Go(fn func(ctx context.Context)) {
	r.tasks.spawn(fn)
}

// taskTracker remembers cancel functions of background tasks.
type taskTracker struct {
	mu      sync.Mutex
	next    uint64
	cancels map[uint64]context.CancelFunc
	wg      sync.WaitGroup
}

func newTaskTracker() *taskTracker {
	return &taskTracker{cancels: make(map[uint64]context.CancelFunc)}
}

func (t *taskTracker) spawn(fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	id := t.next
	t.next++
	t.cancels[id] = cancel
	t.mu.Unlock()

	t.wg.Go(func() {
		defer func() {
			t.mu.Lock()
			delete(t.cancels, id)
			t.mu.Unlock()
			cancel()
		}()
		fn(ctx)
	})
}

func (t *taskTracker) cancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cancel := range t.cancels {
		cancel()
	}
}

func (t *taskTracker) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancels = make(map[uint64]context.CancelFunc)
}

// pending returns the number of tracked tasks still running.
func (t *taskTracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cancels)
}

// wait blocks until every spawned task returned. Used by tests.
func (t *taskTracker) wait() {
	t.wg.Wait()
}
