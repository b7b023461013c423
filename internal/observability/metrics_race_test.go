package observability

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewMetrics uses a private registry, so concurrent calls must not collide.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 50

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines)
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if err != nil {
				errs <- err
				return
			}
			if m.Notification == nil || m.Transfer == nil || m.HTTP == nil || m.registry == nil {
				t.Error("NewMetrics returned partially initialized metrics")
			}
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("NewMetrics failed: %v", err)
	}
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Notification.RecordDelivery("discord", true, time.Second)
	m.Transfer.UpdateProgress(50, 100)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `notification_deliveries_total{provider="discord",result="success"} 1`)
	assert.Contains(t, body, "transfer_progress_percent 50")
	assert.Contains(t, body, "go_goroutines")
}
