// Package metrics provides transfer monitor metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TransferMetrics contains Prometheus metrics for the transfer monitor.
type TransferMetrics struct {
	destinationBytes prometheus.Gauge
	expectedBytes    prometheus.Gauge
	progressPercent  prometheus.Gauge
	processRunning   prometheus.Gauge
	diskUsedPercent  prometheus.Gauge
	pollDuration     prometheus.Histogram
	pollsTotal       *prometheus.CounterVec
	eventsTotal      *prometheus.CounterVec
}

// NewTransferMetrics creates and registers new transfer monitor metrics
func NewTransferMetrics(registry prometheus.Registerer) (*TransferMetrics, error) {
	m := &TransferMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *TransferMetrics) initMetrics() {
	m.destinationBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transfer_destination_bytes",
		Help: "Current size of the transfer destination in bytes",
	})

	m.expectedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transfer_expected_bytes",
		Help: "Expected size of the finished transfer in bytes, 0 when unknown",
	})

	m.progressPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transfer_progress_percent",
		Help: "Transfer progress as a percentage of the expected size",
	})

	m.processRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transfer_process_running",
		Help: "Whether the transfer process is running (1=running, 0=not found)",
	})

	m.diskUsedPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "transfer_destination_disk_used_percent",
		Help: "Utilization of the filesystem holding the destination",
	})

	m.pollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "transfer_poll_duration_seconds",
		Help:    "Time taken by one monitor poll",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12), // 1ms to ~4s
	})

	m.pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_polls_total",
			Help: "Total number of monitor polls",
		},
		[]string{"status"}, // status: success, failure
	)

	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_events_total",
			Help: "Notifications raised by the monitor by type",
		},
		[]string{"type"},
	)
}

func (m *TransferMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.destinationBytes,
		m.expectedBytes,
		m.progressPercent,
		m.processRunning,
		m.diskUsedPercent,
		m.pollDuration,
		m.pollsTotal,
		m.eventsTotal,
	}
}

// Describe implements the Collector interface
func (m *TransferMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.getCollectors() {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *TransferMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.getCollectors() {
		c.Collect(ch)
	}
}

// UpdateProgress records the destination size against the expected size.
func (m *TransferMetrics) UpdateProgress(currentBytes, expectedBytes uint64) {
	m.destinationBytes.Set(float64(currentBytes))
	m.expectedBytes.Set(float64(expectedBytes))

	var percent float64
	if expectedBytes > 0 {
		percent = min(float64(currentBytes)/float64(expectedBytes)*PercentageFactor, PercentageFactor)
	}
	m.progressPercent.Set(percent)
}

// SetProcessRunning records whether the transfer process was found.
func (m *TransferMetrics) SetProcessRunning(running bool) {
	if running {
		m.processRunning.Set(1)
	} else {
		m.processRunning.Set(0)
	}
}

// UpdateDiskUsage records the destination filesystem utilization.
func (m *TransferMetrics) UpdateDiskUsage(usedPercent float64) {
	m.diskUsedPercent.Set(usedPercent)
}

// RecordPoll records one poll and how long it took.
func (m *TransferMetrics) RecordPoll(status string, seconds float64) {
	m.pollsTotal.WithLabelValues(status).Inc()
	m.pollDuration.Observe(seconds)
}

// RecordEvent records a notification raised by the monitor.
func (m *TransferMetrics) RecordEvent(eventType string) {
	m.eventsTotal.WithLabelValues(eventType).Inc()
}

// ProgressPercent returns the last recorded progress.
func (m *TransferMetrics) ProgressPercent() float64 {
	metric := &dto.Metric{}
	if err := m.progressPercent.Write(metric); err != nil {
		return 0
	}
	return metric.GetGauge().GetValue()
}
