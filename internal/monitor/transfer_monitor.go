// Package monitor watches a running transfer job and reports its progress,
// completion and failures through the notification dispatcher.
package monitor

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tphakala/xferwatch/internal/conf"
	"github.com/tphakala/xferwatch/internal/errors"
	"github.com/tphakala/xferwatch/internal/logging"
	"github.com/tphakala/xferwatch/internal/notification"
	"github.com/tphakala/xferwatch/internal/observability/metrics"
)

// GetLogger returns the module logger for the transfer monitor
func GetLogger() *slog.Logger {
	return logging.ForService("monitor")
}

const (
	// Disk alerts re-arm only after usage drops this far below the threshold.
	diskHysteresisPercent = 5.0
	componentName         = "monitor"
)

// Notifier is the part of notification.Dispatcher the monitor reports to.
type Notifier interface {
	Progress(ctx context.Context, text string, percent float64) map[string]bool
	Completion(ctx context.Context, text string, extra map[string]any) map[string]bool
	Error(ctx context.Context, err error, extra map[string]any) map[string]bool
}

var _ Notifier = (*notification.Dispatcher)(nil)

// Config describes the transfer job being watched.
type Config struct {
	ProcessName   string
	Destination   string
	ExpectedBytes uint64 // 0 when unknown
	PollInterval  time.Duration
	ProgressStep  float64 // percent
	StallTimeout  time.Duration
	DiskWarning   float64 // percent, 0 disables
}

// ConfigFromSettings builds a Config from the transfer settings.
func ConfigFromSettings(s conf.TransferSettings) (Config, error) {
	expected, err := s.ExpectedBytes()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ProcessName:   s.ProcessName,
		Destination:   s.Destination,
		ExpectedBytes: expected,
		PollInterval:  s.PollInterval,
		ProgressStep:  s.ProgressStep,
		StallTimeout:  s.StallTimeout,
		DiskWarning:   s.DiskWarning,
	}, nil
}

// Option configures a TransferMonitor.
type Option func(*TransferMonitor)

// WithProbe replaces the system probe.
func WithProbe(p Probe) Option {
	return func(m *TransferMonitor) { m.probe = p }
}

// WithMetrics records poll results in Prometheus metrics.
func WithMetrics(tm *metrics.TransferMetrics) Option {
	return func(m *TransferMonitor) { m.metrics = tm }
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Destination    string    `json:"destination"`
	ProcessName    string    `json:"process_name,omitempty"`
	ProcessRunning bool      `json:"process_running"`
	CurrentBytes   uint64    `json:"current_bytes"`
	ExpectedBytes  uint64    `json:"expected_bytes,omitempty"`
	Percent        float64   `json:"percent"`
	DiskUsed       float64   `json:"disk_used_percent"`
	Stalled        bool      `json:"stalled"`
	Completed      bool      `json:"completed"`
	StartedAt      time.Time `json:"started_at"`
	LastGrowth     time.Time `json:"last_growth"`
}

// TransferMonitor polls a transfer and raises PROGRESS, COMPLETION and ERROR
// notifications.
type TransferMonitor struct {
	cfg      Config
	notifier Notifier
	probe    Probe
	metrics  *metrics.TransferMetrics
	printer  *message.Printer
	log      *slog.Logger

	mu             sync.RWMutex
	started        bool
	startedAt      time.Time
	startBytes     uint64
	current        uint64
	lastGrowth     time.Time
	lastStep       int // last progress step notified, in units of ProgressStep
	processSeen    bool
	processRunning bool
	stalled        bool
	diskAlerted    bool
	diskUsed       float64
	completed      bool
}

// New creates a monitor reporting to n.
func New(cfg Config, n Notifier, opts ...Option) *TransferMonitor {
	m := &TransferMonitor{
		cfg:      cfg,
		notifier: n,
		probe:    SystemProbe{},
		printer:  message.NewPrinter(language.English),
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run polls until the transfer completes or ctx ends. It returns nil on
// completion and the context error otherwise.
func (m *TransferMonitor) Run(ctx context.Context) error {
	if m.cfg.PollInterval <= 0 {
		return errors.Newf("poll interval must be positive, got %s", m.cfg.PollInterval).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	m.log.Info("transfer monitor started",
		"destination", m.cfg.Destination,
		"process", m.cfg.ProcessName,
		"expected_bytes", m.cfg.ExpectedBytes,
		"interval", m.cfg.PollInterval)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if m.poll(ctx) {
			m.log.Info("transfer monitor finished")
			return nil
		}
		select {
		case <-ctx.Done():
			m.log.Info("transfer monitor stopping", "reason", context.Cause(ctx))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status returns the current view of the transfer.
func (m *TransferMonitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Destination:    m.cfg.Destination,
		ProcessName:    m.cfg.ProcessName,
		ProcessRunning: m.processRunning,
		CurrentBytes:   m.current,
		ExpectedBytes:  m.cfg.ExpectedBytes,
		Percent:        m.percentLocked(),
		DiskUsed:       m.diskUsed,
		Stalled:        m.stalled,
		Completed:      m.completed,
		StartedAt:      m.startedAt,
		LastGrowth:     m.lastGrowth,
	}
}

// pendingEvent is a notification decided under the lock and sent after it
// is released.
type pendingEvent struct {
	kind    notification.Type
	text    string
	percent float64
	err     error
	extra   map[string]any
}

// poll runs one check and reports whether the transfer is complete.
func (m *TransferMonitor) poll(ctx context.Context) bool {
	start := time.Now()

	running, procErr := m.processState(ctx)
	size, sizeErr := m.probe.DirSize(ctx, m.cfg.Destination)
	var diskUsed float64
	var diskErr error
	if m.cfg.DiskWarning > 0 {
		diskUsed, diskErr = m.probe.DiskUsedPercent(ctx, m.cfg.Destination)
	}

	status := metrics.StatusSuccess
	for _, err := range []error{procErr, sizeErr, diskErr} {
		if err != nil && ctx.Err() == nil {
			status = metrics.StatusFailure
			m.log.Warn("transfer poll failed", "destination", m.cfg.Destination, "error", err)
		}
	}

	events, done := m.evaluate(time.Now(), running, procErr == nil, size, sizeErr == nil, diskUsed, diskErr == nil)

	if m.metrics != nil {
		m.metrics.RecordPoll(status, time.Since(start).Seconds())
		m.metrics.SetProcessRunning(running)
		if sizeErr == nil {
			m.metrics.UpdateProgress(size, m.cfg.ExpectedBytes)
		}
		if diskErr == nil && m.cfg.DiskWarning > 0 {
			m.metrics.UpdateDiskUsage(diskUsed)
		}
	}

	for _, ev := range events {
		m.emit(ctx, ev)
	}
	return done
}

func (m *TransferMonitor) processState(ctx context.Context) (bool, error) {
	if m.cfg.ProcessName == "" {
		return false, nil
	}
	return m.probe.ProcessRunning(ctx, m.cfg.ProcessName)
}

// evaluate updates the state from one poll and returns the notifications to
// send. Failed probes leave the matching part of the state untouched.
func (m *TransferMonitor) evaluate(now time.Time, running, procOK bool, size uint64, sizeOK bool, diskUsed float64, diskOK bool) ([]pendingEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.completed {
		return nil, true
	}

	var events []pendingEvent

	if !m.started {
		m.started = true
		m.startedAt = now
		m.lastGrowth = now
		if sizeOK {
			m.startBytes = size
			m.current = size
		}
		if m.cfg.ProgressStep > 0 {
			m.lastStep = int(m.percentLocked() / m.cfg.ProgressStep)
		}
	}

	if procOK && m.cfg.ProcessName != "" {
		m.processRunning = running
		if running {
			m.processSeen = true
		}
	}

	if sizeOK {
		if size > m.current {
			m.lastGrowth = now
			if m.stalled {
				m.log.Info("transfer resumed", "destination", m.cfg.Destination)
			}
			m.stalled = false
		}
		m.current = size
	}

	if m.isCompleteLocked(procOK) {
		m.completed = true
		elapsed := now.Sub(m.startedAt).Round(time.Second)
		copied := m.current - min(m.startBytes, m.current)
		events = append(events, pendingEvent{
			kind: notification.TypeCompletion,
			text: m.printer.Sprintf("Transfer finished: %s in %s (%d bytes written to %s)",
				humanize.Bytes(m.current), elapsed, copied, m.cfg.Destination),
			extra: map[string]any{
				"destination": m.cfg.Destination,
				"bytes":       m.current,
				"elapsed":     elapsed.String(),
			},
		})
		return events, true
	}

	if ev, ok := m.progressLocked(); ok {
		events = append(events, ev)
	}

	if m.cfg.StallTimeout > 0 && !m.stalled && now.Sub(m.lastGrowth) >= m.cfg.StallTimeout {
		m.stalled = true
		events = append(events, pendingEvent{
			kind: notification.TypeError,
			err: errors.Newf("no data written to %s for %s", m.cfg.Destination, now.Sub(m.lastGrowth).Round(time.Second)).
				Component(componentName).
				Category(errors.CategoryTimeout).
				Context("destination", m.cfg.Destination).
				Build(),
			extra: map[string]any{"destination": m.cfg.Destination, "bytes": m.current},
		})
	}

	if diskOK && m.cfg.DiskWarning > 0 {
		m.diskUsed = diskUsed
		switch {
		case !m.diskAlerted && diskUsed >= m.cfg.DiskWarning:
			m.diskAlerted = true
			events = append(events, pendingEvent{
				kind: notification.TypeError,
				err: errors.Newf("destination filesystem is %.1f%% full", diskUsed).
					Component(componentName).
					Category(errors.CategorySystem).
					Context("destination", m.cfg.Destination).
					Build(),
				extra: map[string]any{"destination": m.cfg.Destination, "disk_used_percent": math.Round(diskUsed*10) / 10},
			})
		case m.diskAlerted && diskUsed < m.cfg.DiskWarning-diskHysteresisPercent:
			m.diskAlerted = false
		}
	}

	return events, false
}

// isCompleteLocked decides completion. With a process name the transfer is
// complete once the process was seen and is gone. Without one it is complete
// when the expected size is reached.
func (m *TransferMonitor) isCompleteLocked(procOK bool) bool {
	if m.cfg.ProcessName != "" {
		return procOK && m.processSeen && !m.processRunning
	}
	return m.cfg.ExpectedBytes > 0 && m.current >= m.cfg.ExpectedBytes
}

// progressLocked returns a progress event when the transfer crossed into a
// new step since the last one notified. Reaching 100% is left to completion.
func (m *TransferMonitor) progressLocked() (pendingEvent, bool) {
	if m.cfg.ExpectedBytes == 0 || m.cfg.ProgressStep <= 0 {
		return pendingEvent{}, false
	}
	percent := m.percentLocked()
	step := int(percent / m.cfg.ProgressStep)
	if step <= m.lastStep || percent >= 100 {
		return pendingEvent{}, false
	}
	m.lastStep = step
	return pendingEvent{
		kind:    notification.TypeProgress,
		percent: math.Round(percent*10) / 10,
		text: m.printer.Sprintf("Transfer %.0f%% complete: %s of %s",
			percent, humanize.Bytes(m.current), humanize.Bytes(m.cfg.ExpectedBytes)),
	}, true
}

func (m *TransferMonitor) percentLocked() float64 {
	if m.cfg.ExpectedBytes == 0 {
		return 0
	}
	return min(float64(m.current)/float64(m.cfg.ExpectedBytes)*100, 100)
}

func (m *TransferMonitor) emit(ctx context.Context, ev pendingEvent) {
	var results map[string]bool
	switch ev.kind {
	case notification.TypeProgress:
		results = m.notifier.Progress(ctx, ev.text, ev.percent)
	case notification.TypeCompletion:
		results = m.notifier.Completion(ctx, ev.text, ev.extra)
	case notification.TypeError:
		results = m.notifier.Error(ctx, ev.err, ev.extra)
	}
	if m.metrics != nil {
		m.metrics.RecordEvent(string(ev.kind))
	}
	m.log.Info("transfer event", "type", ev.kind, "delivered", notification.Succeeded(results), "providers", len(results))
}
