// Package app wires settings into a running notification engine: metrics,
// the provider registry with the builtin adapters and the dispatcher.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/tphakala/xferwatch/internal/conf"
	"github.com/tphakala/xferwatch/internal/errors"
	"github.com/tphakala/xferwatch/internal/logging"
	"github.com/tphakala/xferwatch/internal/notification"
	"github.com/tphakala/xferwatch/internal/notification/pushproviders"
	"github.com/tphakala/xferwatch/internal/observability"
)

// App holds the engine components shared by the commands.
type App struct {
	Settings   *conf.Settings
	Metrics    *observability.Metrics
	Registry   *notification.Registry
	Dispatcher *notification.Dispatcher

	log     *slog.Logger
	closers []func() error
}

type options struct {
	providerOpts []pushproviders.Option
}

// Option configures New.
type Option func(*options)

// WithProviderOptions passes options to the builtin adapters.
func WithProviderOptions(opts ...pushproviders.Option) Option {
	return func(o *options) { o.providerOpts = append(o.providerOpts, opts...) }
}

// New builds the engine from settings and connects every enabled provider.
// Providers that fail to start are logged and skipped so one broken channel
// does not stop the others.
func New(ctx context.Context, settings *conf.Settings, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Settings: settings,
		log:      logging.ForService("app"),
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	a.Metrics = m

	if lc := settings.Notification.Log; lc.Enabled {
		err := notification.ConfigureFileLogger(lc.Path, settings.Debug, logging.FileConfig{
			Rotation:  logging.Rotation(lc.Rotation),
			MaxSizeMB: lc.MaxSize,
			Compress:  lc.Compress,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure notification log: %w", err)
		}
		a.closers = append(a.closers, notification.CloseLogger)
	}

	a.Registry = notification.NewRegistry(
		notification.WithMetrics(m.Notification),
		notification.WithMinInterval(settings.Notification.MinInterval),
		notification.WithValidatorTTL(settings.Notification.ValidatorTTL),
	)
	if err := pushproviders.RegisterBuiltins(a.Registry, o.providerOpts...); err != nil {
		return nil, fmt.Errorf("failed to register providers: %w", err)
	}

	a.startProviders(ctx)
	a.Dispatcher = notification.NewDispatcher(a.Registry, settings.Notification.Tags...)
	return a, nil
}

// startProviders creates the enabled providers in id order and returns how
// many are active.
func (a *App) startProviders(ctx context.Context) int {
	configs := a.Settings.ProviderConfigs()
	started := 0
	for _, id := range slices.Sorted(maps.Keys(configs)) {
		raw := configs[id]
		cfg, err := notification.DecodeProviderConfig(raw)
		if err != nil {
			a.log.Error("invalid provider config", "provider", id, "error", err)
			continue
		}
		if !cfg.Enabled {
			a.log.Debug("provider disabled", "provider", id)
			continue
		}

		if err := a.Registry.RegisterConfig(id, raw); err != nil {
			a.log.Error("cannot configure provider", "provider", id, "error", err)
			continue
		}
		if _, err := a.Registry.CreateProvider(ctx, id); err != nil {
			_ = errors.New(err).
				Component("app").
				Category(errors.CategoryConfiguration).
				Context("provider", id).
				Build()
			a.log.Warn("provider unavailable", "provider", id, "error", err)
			continue
		}
		started++
		a.log.Info("provider ready", "provider", id)
	}

	if started == 0 {
		a.log.Warn("no notification providers are active")
	}
	return started
}

// Close disconnects the providers within the configured cleanup timeout and
// releases the log files.
func (a *App) Close() error {
	a.Registry.Cleanup(a.Settings.Notification.CleanupTimeout)

	var errs []error
	for _, closer := range slices.Backward(a.closers) {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
