package notification

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Dispatcher fans a message out to every live, enabled provider of a
// registry. Providers are notified in parallel; each one keeps its own
// ordering.
type Dispatcher struct {
	registry *Registry
	tags     []string
}

// NewDispatcher creates a dispatcher over reg. When tags are given only
// providers carrying at least one of them receive messages.
func NewDispatcher(reg *Registry, tags ...string) *Dispatcher {
	return &Dispatcher{registry: reg, tags: tags}
}

func (d *Dispatcher) targets() []*Notifier {
	var out []*Notifier
	for _, n := range d.registry.Active() {
		if !n.Enabled() || !d.matchesTags(n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (d *Dispatcher) matchesTags(n *Notifier) bool {
	if len(d.tags) == 0 {
		return true
	}
	for _, tag := range d.tags {
		if n.config.HasTag(tag) {
			return true
		}
	}
	return false
}

// Notify sends the message to all targets and returns the outcome per
// provider name.
func (d *Dispatcher) Notify(ctx context.Context, text string, level Level, typ Type, extra map[string]any) map[string]bool {
	targets := d.targets()
	results := make(map[string]bool, len(targets))
	if len(targets) == 0 {
		getLogger().Debug("no providers to notify", "type", typ)
		return results
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, n := range targets {
		g.Go(func() error {
			ok := n.Notify(ctx, text, level, typ, extra)
			mu.Lock()
			results[n.Name()] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// NotifyAsync runs Notify as a background task tracked by the registry, so
// Registry.Cleanup cancels it.
func (d *Dispatcher) NotifyAsync(text string, level Level, typ Type, extra map[string]any) {
	extra = deepCopyMetadata(extra)
	d.registry.Go(func(ctx context.Context) {
		d.Notify(ctx, text, level, typ, extra)
	})
}

// Progress reports transfer progress.
func (d *Dispatcher) Progress(ctx context.Context, text string, percent float64) map[string]bool {
	return d.Notify(ctx, text, LevelInfo, TypeProgress, map[string]any{"percent": percent})
}

// Completion reports that the transfer finished.
func (d *Dispatcher) Completion(ctx context.Context, text string, extra map[string]any) map[string]bool {
	return d.Notify(ctx, text, LevelInfo, TypeCompletion, extra)
}

// Error reports a transfer failure with high priority.
func (d *Dispatcher) Error(ctx context.Context, err error, extra map[string]any) map[string]bool {
	md := deepCopyMetadata(extra)
	if md == nil {
		md = make(map[string]any, 1)
	}
	text := "Transfer error"
	if err != nil {
		md["error"] = err.Error()
		text = fmt.Sprintf("Transfer error: %v", err)
	}
	return d.Notify(ctx, text, LevelError, TypeError, md)
}

// Succeeded reports whether at least one provider accepted the message.
func Succeeded(results map[string]bool) bool {
	for _, ok := range results {
		if ok {
			return true
		}
	}
	return false
}
