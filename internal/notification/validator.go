package notification

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Validator checks a decoded provider configuration.
type Validator interface {
	Validate(ctx context.Context, cfg ProviderConfig) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, cfg ProviderConfig) error

func (f ValidatorFunc) Validate(ctx context.Context, cfg ProviderConfig) error {
	return f(ctx, cfg)
}

// ValidatorFactory pairs a validator constructor with a stable name. The
// name is part of the cache key.
type ValidatorFactory struct {
	Name string
	New  func() Validator
}

// DefaultValidatorFactory validates only the engine level keys.
var DefaultValidatorFactory = ValidatorFactory{
	Name: "default",
	New: func() Validator {
		return ValidatorFunc(func(_ context.Context, cfg ProviderConfig) error {
			return validateProviderConfig(cfg)
		})
	},
}

// ChainValidators returns a factory that runs the engine checks and then
// each of the given checks in order.
func ChainValidators(name string, checks ...func(ProviderConfig) error) ValidatorFactory {
	return ValidatorFactory{
		Name: name,
		New: func() Validator {
			return ValidatorFunc(func(ctx context.Context, cfg ProviderConfig) error {
				if err := validateProviderConfig(cfg); err != nil {
					return err
				}
				for _, check := range checks {
					if err := ctx.Err(); err != nil {
						return err
					}
					if err := check(cfg); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

// ValidatorStats summarises the use of one cached validator.
type ValidatorStats struct {
	CreatedAt       time.Time
	LastUsed        time.Time
	ValidationCount int
	TotalDuration   time.Duration
	PriorityCounts  map[Priority]int
}

// AverageDuration is the amortised cost of one validation.
func (s ValidatorStats) AverageDuration() time.Duration {
	if s.ValidationCount == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.ValidationCount)
}

type validatorEntry struct {
	validator Validator

	mu    sync.Mutex
	stats ValidatorStats
}

func (e *validatorEntry) record(p Priority, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.LastUsed = time.Now()
	e.stats.ValidationCount++
	e.stats.TotalDuration += d
	e.stats.PriorityCounts[p]++
}

func (e *validatorEntry) snapshot() ValidatorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.PriorityCounts = maps.Clone(e.stats.PriorityCounts)
	return s
}

// ValidatorCache keeps validator instances for a fixed TTL. Entries are
// evicted lazily on access; no background sweeper runs.
type ValidatorCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	store   *cache.Cache
	metrics MetricsRecorder
}

// NewValidatorCache creates a cache with the given TTL (DefaultValidatorTTL
// when ttl <= 0).
func NewValidatorCache(ttl time.Duration, metrics MetricsRecorder) *ValidatorCache {
	if ttl <= 0 {
		ttl = DefaultValidatorTTL
	}
	return &ValidatorCache{
		ttl: ttl,
		// cleanup interval 0 disables the janitor goroutine
		store:   cache.New(ttl, 0),
		metrics: metricsOrNoop(metrics),
	}
}

func validatorKey(providerID, validatorName string) string {
	return providerID + "/" + validatorName
}

// lookup returns a live entry or evicts an expired one.
func (vc *ValidatorCache) lookup(key string) (*validatorEntry, bool) {
	if v, found := vc.store.Get(key); found {
		return v.(*validatorEntry), true
	}
	// go-cache reports expired items as missing but keeps them until deleted
	vc.store.Delete(key)
	return nil, false
}

// Get returns the cached validator for the provider, if still within TTL.
func (vc *ValidatorCache) Get(providerID string, factory ValidatorFactory) (Validator, bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	entry, ok := vc.lookup(validatorKey(providerID, factory.Name))
	if !ok {
		return nil, false
	}
	return entry.validator, true
}

func (vc *ValidatorCache) getOrCreate(providerID string, factory ValidatorFactory) (*validatorEntry, bool) {
	key := validatorKey(providerID, factory.Name)

	vc.mu.Lock()
	defer vc.mu.Unlock()

	if entry, ok := vc.lookup(key); ok {
		return entry, true
	}
	now := time.Now()
	entry := &validatorEntry{
		validator: factory.New(),
		stats: ValidatorStats{
			CreatedAt:      now,
			LastUsed:       now,
			PriorityCounts: make(map[Priority]int),
		},
	}
	vc.store.Set(key, entry, vc.ttl)
	return entry, false
}

// Validate runs the provider's validator against cfg, reusing a cached
// instance when possible. Every call is timed; slow validations are logged.
func (vc *ValidatorCache) Validate(ctx context.Context, providerID string, factory ValidatorFactory, cfg ProviderConfig, p Priority) error {
	if factory.New == nil {
		factory = DefaultValidatorFactory
	}

	start := time.Now()
	entry, hit := vc.getOrCreate(providerID, factory)
	err := entry.validator.Validate(ctx, cfg)
	elapsed := time.Since(start)

	entry.record(p, elapsed)
	vc.metrics.RecordValidation(providerID, hit, elapsed)

	switch {
	case elapsed > verySlowValidationThreshold:
		getLogger().Error("very slow validation",
			"provider", providerID, "validator", factory.Name,
			"duration", elapsed, "cache_hit", hit)
	case elapsed > slowValidationThreshold:
		getLogger().Warn("slow validation",
			"provider", providerID, "validator", factory.Name,
			"duration", elapsed, "cache_hit", hit)
	default:
		getLogger().Debug("validated provider config",
			"provider", providerID, "validator", factory.Name,
			"duration", elapsed, "cache_hit", hit)
	}
	return err
}

// Stats returns a copy of the entry statistics, if the entry is live.
func (vc *ValidatorCache) Stats(providerID, validatorName string) (ValidatorStats, bool) {
	vc.mu.Lock()
	entry, ok := vc.lookup(validatorKey(providerID, validatorName))
	vc.mu.Unlock()
	if !ok {
		return ValidatorStats{}, false
	}
	return entry.snapshot(), true
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (vc *ValidatorCache) Len() int {
	return vc.store.ItemCount()
}

// Clear drops every cached validator.
func (vc *ValidatorCache) Clear() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.store.Flush()
}
