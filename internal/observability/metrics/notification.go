// Package metrics provides custom Prometheus metrics for notification delivery
// and transfer monitoring.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains the Prometheus metrics of the notification
// engine. It implements notification.MetricsRecorder.
type NotificationMetrics struct {
	// Delivery metrics
	DeliveriesTotal  *prometheus.CounterVec   // Deliveries by provider and result
	DeliveryDuration *prometheus.HistogramVec // Latency of a full delivery including engine retries
	RetriesTotal     *prometheus.CounterVec   // Engine level retry attempts by provider

	// Gate metrics
	RateLimitedTotal *prometheus.CounterVec // Messages refused before any send, by provider and reason

	// Provider health
	ProviderDisabled *prometheus.GaugeVec // 1 while the provider is disabled
	ActiveProviders  prometheus.Gauge

	// Validator cache
	ValidationDuration *prometheus.HistogramVec
	ValidatorCache     *prometheus.CounterVec // Lookups by provider and outcome (hit, miss)
}

// NewNotificationMetrics creates the notification metrics and registers them
// with registry.
func NewNotificationMetrics(registry prometheus.Registerer) (*NotificationMetrics, error) {
	m := &NotificationMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

func (m *NotificationMetrics) initMetrics() {
	m.DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Total number of notification deliveries by provider and result",
		},
		[]string{"provider", "result"}, // result: success, failure
	)

	m.DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_duration_seconds",
			Help:    "Time taken to deliver a notification including engine retries",
			Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
		},
		[]string{"provider"},
	)

	m.RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_retries_total",
			Help: "Total number of engine retry attempts by provider",
		},
		[]string{"provider"},
	)

	m.RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_rate_limited_total",
			Help: "Total number of notifications refused before sending by provider and reason",
		},
		[]string{"provider", "reason"},
	)

	m.ProviderDisabled = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_provider_disabled",
			Help: "Whether the provider is disabled after consecutive errors (1=disabled, 0=connected)",
		},
		[]string{"provider"},
	)

	m.ActiveProviders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_active_providers",
			Help: "Number of providers held by the registry",
		},
	)

	m.ValidationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_validation_duration_seconds",
			Help:    "Time taken to validate a provider configuration",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 3.0, 10.0},
		},
		[]string{"provider"},
	)

	m.ValidatorCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_validator_cache_lookups_total",
			Help: "Validator cache lookups by provider and outcome",
		},
		[]string{"provider", "outcome"}, // outcome: hit, miss
	)
}

// RecordDelivery records the outcome of one delivery.
func (m *NotificationMetrics) RecordDelivery(provider string, success bool, duration time.Duration) {
	result := StatusSuccess
	if !success {
		result = StatusFailure
	}
	m.DeliveriesTotal.WithLabelValues(provider, result).Inc()
	m.DeliveryDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRateLimited records a message refused by a gate.
func (m *NotificationMetrics) RecordRateLimited(provider, reason string) {
	m.RateLimitedTotal.WithLabelValues(provider, reason).Inc()
}

// RecordRetry records one engine retry.
func (m *NotificationMetrics) RecordRetry(provider string) {
	m.RetriesTotal.WithLabelValues(provider).Inc()
}

// SetProviderDisabled tracks the disabled transition of a provider.
func (m *NotificationMetrics) SetProviderDisabled(provider string, disabled bool) {
	if disabled {
		m.ProviderDisabled.WithLabelValues(provider).Set(1)
	} else {
		m.ProviderDisabled.WithLabelValues(provider).Set(0)
	}
}

// RecordValidation records a validator cache lookup and how long validation took.
func (m *NotificationMetrics) RecordValidation(provider string, cacheHit bool, duration time.Duration) {
	outcome := OutcomeMiss
	if cacheHit {
		outcome = OutcomeHit
	}
	m.ValidatorCache.WithLabelValues(provider, outcome).Inc()
	m.ValidationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// SetActiveProviders sets the number of providers held by the registry.
func (m *NotificationMetrics) SetActiveProviders(count int) {
	m.ActiveProviders.Set(float64(count))
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveriesTotal.Collect(ch)
	m.DeliveryDuration.Collect(ch)
	m.RetriesTotal.Collect(ch)
	m.RateLimitedTotal.Collect(ch)
	m.ProviderDisabled.Collect(ch)
	m.ActiveProviders.Collect(ch)
	m.ValidationDuration.Collect(ch)
	m.ValidatorCache.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveriesTotal.Describe(ch)
	m.DeliveryDuration.Describe(ch)
	m.RetriesTotal.Describe(ch)
	m.RateLimitedTotal.Describe(ch)
	m.ProviderDisabled.Describe(ch)
	m.ActiveProviders.Describe(ch)
	m.ValidationDuration.Describe(ch)
	m.ValidatorCache.Describe(ch)
}
