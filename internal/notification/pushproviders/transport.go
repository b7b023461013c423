package pushproviders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/xferwatch/internal/httpclient"
	"github.com/tphakala/xferwatch/internal/notification"
)

const (
	maxErrorBody     = 512
	transportBackoff = 500 * time.Millisecond
)

// requestFunc performs one HTTP attempt. It is called again for every retry
// so request bodies are rebuilt.
type requestFunc func(ctx context.Context) (*httpclient.Response, error)

// doWithRetry runs send, retrying 429 and 5xx responses and network errors
// up to opts.TransportRetries times. A server supplied wait longer than
// opts.MaxRetryWait is not slept here; the TransportError carrying it goes
// back to the engine, which blocks the provider until then.
func doWithRetry(ctx context.Context, provider string, opts httpOptions, send requestFunc) (*httpclient.Response, error) {
	var lastErr *notification.TransportError
	for attempt := 0; ; attempt++ {
		resp, err := send(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = notification.NewTransportError(provider, err)
		case resp.OK():
			return resp, nil
		default:
			lastErr = statusError(provider, resp)
			if !lastErr.Retryable {
				return nil, lastErr
			}
		}

		if attempt >= opts.TransportRetries {
			return nil, lastErr
		}

		wait := transportBackoff << attempt
		if lastErr.RetryAfter > 0 {
			if lastErr.RetryAfter > opts.MaxRetryWait {
				return nil, lastErr
			}
			wait = lastErr.RetryAfter
		}
		getLogger().Debug("retrying request",
			"provider", provider,
			"attempt", attempt+1,
			"status", lastErr.StatusCode,
			"wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// statusError classifies a non-2xx response.
func statusError(provider string, resp *httpclient.Response) *notification.TransportError {
	te := &notification.TransportError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(resp.Body)), maxErrorBody)),
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		te.Retryable = true
		te.RetryAfter = retryAfter(resp)
		if te.RetryAfter == 0 {
			te.RetryAfter = time.Second
		}
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode >= 500:
		te.Retryable = true
		te.RetryAfter = retryAfter(resp)
	}
	return te
}

// rateLimitBody covers the JSON shapes Discord and Telegram use for 429s.
type rateLimitBody struct {
	RetryAfter *float64 `json:"retry_after"`
	Parameters struct {
		RetryAfter *float64 `json:"retry_after"`
	} `json:"parameters"`
}

// retryAfter extracts the server requested wait from, in order, the
// Retry-After header (seconds or HTTP date), X-RateLimit-Reset-After and a
// JSON body field. Zero means no hint.
func retryAfter(resp *httpclient.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return seconds(secs)
		}
		if at, err := http.ParseTime(v); err == nil {
			return max(time.Until(at), 0)
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return seconds(secs)
		}
	}

	var body rateLimitBody
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		switch {
		case body.RetryAfter != nil:
			return seconds(*body.RetryAfter)
		case body.Parameters.RetryAfter != nil:
			return seconds(*body.Parameters.RetryAfter)
		}
	}
	return 0
}

func seconds(s float64) time.Duration {
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return time.Duration(math.Ceil(s * float64(time.Second)))
}

// permanent marks err as a non-retryable transport failure.
func permanent(provider string, err error) error {
	var te *notification.TransportError
	if errors.As(err, &te) {
		te.Retryable = false
		return te
	}
	return &notification.TransportError{Provider: provider, Err: err}
}
