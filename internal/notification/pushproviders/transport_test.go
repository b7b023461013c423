package pushproviders

import (
	"context"
	"net/http"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/xferwatch/internal/httpclient"
	"github.com/tphakala/xferwatch/internal/notification"
)

func response(status int, header map[string]string, body string) *httpclient.Response {
	h := http.Header{}
	for k, v := range header {
		h.Set(k, v)
	}
	return &httpclient.Response{StatusCode: status, Header: h, Body: []byte(body)}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *httpclient.Response
		want time.Duration
	}{
		{"retry-after seconds", response(429, map[string]string{"Retry-After": "7"}, ""), 7 * time.Second},
		{"reset-after fractional", response(429, map[string]string{"X-RateLimit-Reset-After": "1.5"}, ""), 1500 * time.Millisecond},
		{"discord body", response(429, nil, `{"message":"You are being rate limited.","retry_after":0.25,"global":false}`), 250 * time.Millisecond},
		{"telegram body", response(429, nil, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5","parameters":{"retry_after":5}}`), 5 * time.Second},
		{"header wins over body", response(429, map[string]string{"Retry-After": "2"}, `{"retry_after":9}`), 2 * time.Second},
		{"no hint", response(429, nil, "slow down"), 0},
		{"negative ignored", response(429, map[string]string{"Retry-After": "-4"}, ""), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, retryAfter(tt.resp))
		})
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status     int
		retryable  bool
		retryAfter time.Duration
	}{
		{http.StatusTooManyRequests, true, time.Second},
		{http.StatusRequestTimeout, true, 0},
		{http.StatusInternalServerError, true, 0},
		{http.StatusBadGateway, true, 0},
		{http.StatusBadRequest, false, 0},
		{http.StatusUnauthorized, false, 0},
		{http.StatusNotFound, false, 0},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			te := statusError("discord", response(tt.status, nil, "nope"))
			assert.Equal(t, tt.status, te.StatusCode)
			assert.Equal(t, tt.retryable, te.Retryable)
			assert.Equal(t, tt.retryAfter, te.RetryAfter)
			assert.ErrorContains(t, te, "nope")
		})
	}
}

// scripted replays responses in order and counts calls.
func scripted(calls *int, responses ...*httpclient.Response) requestFunc {
	return func(context.Context) (*httpclient.Response, error) {
		r := responses[min(*calls, len(responses)-1)]
		*calls++
		return r, nil
	}
}

func TestDoWithRetry_WaitsForRetryAfter(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		calls := 0
		send := scripted(&calls,
			response(429, map[string]string{"Retry-After": "2"}, ""),
			response(200, nil, "ok"))

		start := time.Now()
		resp, err := doWithRetry(t.Context(), "discord", defaultHTTPOptions(), send)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(resp.Body))
		assert.Equal(t, 2, calls)
		assert.Equal(t, 2*time.Second, time.Since(start))
	})
}

func TestDoWithRetry_LongRetryAfterGoesToEngine(t *testing.T) {
	t.Parallel()

	calls := 0
	send := scripted(&calls, response(429, map[string]string{"Retry-After": "60"}, ""))

	_, err := doWithRetry(t.Context(), "discord", defaultHTTPOptions(), send)
	var te *notification.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, time.Minute, te.RetryAfter)
	assert.Equal(t, 1, calls)
}

func TestDoWithRetry_ExhaustsServerErrors(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		calls := 0
		opts := defaultHTTPOptions()
		opts.TransportRetries = 2
		send := scripted(&calls, response(503, nil, "maintenance"))

		start := time.Now()
		_, err := doWithRetry(t.Context(), "webhook", opts, send)
		var te *notification.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, 503, te.StatusCode)
		assert.True(t, te.Retryable)
		assert.Equal(t, 3, calls)
		assert.Equal(t, transportBackoff+2*transportBackoff, time.Since(start))
	})
}

func TestDoWithRetry_PermanentFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	send := scripted(&calls, response(401, nil, "bad token"))

	_, err := doWithRetry(t.Context(), "telegram", defaultHTTPOptions(), send)
	var te *notification.TransportError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.Retryable)
	assert.Equal(t, 1, calls)
}

func TestDoWithRetry_CancelledDuringWait(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		calls := 0
		send := scripted(&calls, response(429, map[string]string{"Retry-After": "5"}, ""))
		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()

		_, err := doWithRetry(ctx, "discord", defaultHTTPOptions(), send)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, calls)
	})
}
