package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/xferwatch/internal/notification"
)

var _ notification.MetricsRecorder = (*NotificationMetrics)(nil)

func newNotificationMetrics(t *testing.T) (*NotificationMetrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	m, err := NewNotificationMetrics(registry)
	require.NoError(t, err)
	return m, registry
}

func TestNewNotificationMetrics_RejectsDoubleRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewNotificationMetrics(registry)
	require.NoError(t, err)

	_, err = NewNotificationMetrics(registry)
	assert.Error(t, err)
}

func TestRecordDelivery(t *testing.T) {
	t.Parallel()

	m, _ := newNotificationMetrics(t)
	m.RecordDelivery("discord", true, 200*time.Millisecond)
	m.RecordDelivery("discord", true, 300*time.Millisecond)
	m.RecordDelivery("discord", false, 2*time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("discord", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("discord", StatusFailure)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.DeliveryDuration, "notification_delivery_duration_seconds"))
}

func TestRecordRateLimitedAndRetry(t *testing.T) {
	t.Parallel()

	m, _ := newNotificationMetrics(t)
	m.RecordRateLimited("telegram", "type_gate")
	m.RecordRateLimited("telegram", "type_gate")
	m.RecordRateLimited("telegram", "priority")
	m.RecordRetry("telegram")

	assert.InDelta(t, 2, testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("telegram", "type_gate")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("telegram", "priority")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("telegram")), 0)
}

func TestSetProviderDisabled(t *testing.T) {
	t.Parallel()

	m, _ := newNotificationMetrics(t)
	m.SetProviderDisabled("webhook", true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ProviderDisabled.WithLabelValues("webhook")), 0)

	m.SetProviderDisabled("webhook", false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ProviderDisabled.WithLabelValues("webhook")), 0)
}

func TestRecordValidation(t *testing.T) {
	t.Parallel()

	m, _ := newNotificationMetrics(t)
	m.RecordValidation("discord", false, 10*time.Millisecond)
	m.RecordValidation("discord", true, time.Millisecond)
	m.RecordValidation("discord", true, time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.ValidatorCache.WithLabelValues("discord", OutcomeMiss)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ValidatorCache.WithLabelValues("discord", OutcomeHit)), 0)
}

func TestSetActiveProviders_Exposition(t *testing.T) {
	t.Parallel()

	m, registry := newNotificationMetrics(t)
	m.SetActiveProviders(3)

	expected := `
# HELP notification_active_providers Number of providers held by the registry
# TYPE notification_active_providers gauge
notification_active_providers 3
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "notification_active_providers"))
}
