package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/xferwatch/internal/monitor"
	"github.com/tphakala/xferwatch/internal/notification"
	"github.com/tphakala/xferwatch/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProvider struct {
	name string

	mu    sync.Mutex
	texts []string
}

func (p *fakeProvider) Name() string                     { return p.name }
func (p *fakeProvider) Connect(context.Context) error    { return nil }
func (p *fakeProvider) Disconnect(context.Context) error { return nil }

func (p *fakeProvider) Send(_ context.Context, msg *notification.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, msg.Text())
	return nil
}

func (p *fakeProvider) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

type fixture struct {
	server   *Server
	registry *notification.Registry
	provider *fakeProvider
	notifier *notification.Notifier
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	fp := &fakeProvider{name: "fake"}
	reg := notification.NewRegistry()
	require.NoError(t, reg.Register("fake", func(string, notification.ProviderConfig) (notification.Provider, error) {
		return fp, nil
	}, notification.ValidatorFactory{}))

	n, err := reg.CreateProvider(t.Context(), "fake", notification.WithConfig(map[string]any{"enabled": true}))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Cleanup(time.Second) })

	return &fixture{
		server:   New("127.0.0.1:0", reg, notification.NewDispatcher(reg), opts...),
		registry: reg,
		provider: fp,
		notifier: n,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequestWithContext(t.Context(), method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.InDelta(t, 1, body["providers"], 0)
	assert.InDelta(t, 0, body["disabled_providers"], 0)
}

func TestListProviders(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]notification.ProviderStatus](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "fake", list[0].Name)
	assert.Equal(t, notification.StateConnected, list[0].State)
	assert.True(t, list[0].Enabled)
}

func TestGetProvider_NotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/providers/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "provider not found", resp.Message)
	assert.Len(t, resp.CorrelationID, 8)
}

func TestResetProvider(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for range notification.DefaultDisableThreshold {
		f.notifier.Retry().RecordFailure(notification.NewTransportError("fake", errors.New("boom")))
	}
	require.True(t, f.notifier.Disabled())

	rec := f.do(t, http.MethodGet, "/api/v1/providers/fake", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, notification.StateDisabled, decode[notification.ProviderStatus](t, rec).State)

	rec = f.do(t, http.MethodPost, "/api/v1/providers/fake/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[notification.ProviderStatus](t, rec)
	assert.Equal(t, notification.StateConnected, st.State)
	assert.Zero(t, st.ConsecutiveErrors)
	assert.False(t, f.notifier.Disabled())

	rec = f.do(t, http.MethodPost, "/api/v1/providers/nope/reset", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotify(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/notify", `{"text":"hello","level":"info","type":"system"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[NotifyResponse](t, rec)
	assert.True(t, resp.Delivered)
	assert.Equal(t, map[string]bool{"fake": true}, resp.Results)
	assert.Equal(t, []string{"hello"}, f.provider.sent())
}

func TestNotify_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"empty text", `{"text":"  "}`, "text is required"},
		{"unknown level", `{"text":"x","level":"loud"}`, "unknown level loud"},
		{"unknown type", `{"text":"x","type":"gossip"}`, "unknown type gossip"},
		{"malformed", `{"text":`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			rec := f.do(t, http.MethodPost, "/api/v1/notify", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, decode[ErrorResponse](t, rec).Message)
			assert.Empty(t, f.provider.sent())
		})
	}
}

type staticTransfer monitor.Status

func (s staticTransfer) Status() monitor.Status { return monitor.Status(s) }

func TestTransferStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/transfer", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f = newFixture(t, WithTransfer(staticTransfer{Destination: "/mnt/backup", Percent: 42}))
	rec = f.do(t, http.MethodGet, "/api/v1/transfer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[monitor.Status](t, rec)
	assert.Equal(t, "/mnt/backup", st.Destination)
	assert.InDelta(t, 42.0, st.Percent, 0)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)
	f := newFixture(t, WithMetrics(m))

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/providers/nope", "").Code)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/health",status_code="200"} 1`)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/v1/providers/:id",status_code="404"} 1`)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- f.server.serve(ctx, ln) }()

	transport := &http.Transport{DisableKeepAlives: true}
	client := &http.Client{Transport: transport, Timeout: 5 * time.Second}
	url := "http://" + ln.Addr().String() + "/health"

	require.Eventually(t, func() bool {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, http.NoBody)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	transport.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.server.listen = "256.0.0.1:bad"
	assert.Error(t, f.server.Run(t.Context()))
}
