package notification

import "time"

// MetricsRecorder receives engine measurements. The observability package
// provides the Prometheus implementation.
type MetricsRecorder interface {
	RecordDelivery(provider string, success bool, duration time.Duration)
	RecordRateLimited(provider, reason string)
	RecordRetry(provider string)
	SetProviderDisabled(provider string, disabled bool)
	RecordValidation(provider string, cacheHit bool, duration time.Duration)
	SetActiveProviders(count int)
}

type noopMetrics struct{}

func (noopMetrics) RecordDelivery(string, bool, time.Duration)   {}
func (noopMetrics) RecordRateLimited(string, string)             {}
func (noopMetrics) RecordRetry(string)                           {}
func (noopMetrics) SetProviderDisabled(string, bool)             {}
func (noopMetrics) RecordValidation(string, bool, time.Duration) {}
func (noopMetrics) SetActiveProviders(int)                       {}

func metricsOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
