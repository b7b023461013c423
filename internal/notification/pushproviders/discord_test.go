package pushproviders

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/xferwatch/internal/notification"
)

const discordHook = "https://discord.com/api/webhooks/123/secret"

func newTestDiscord(t *testing.T, mt *httpmock.MockTransport, extra map[string]any) *Discord {
	t.Helper()
	options := map[string]any{"webhook_url": discordHook, "requests_per_second": 0}
	for k, v := range extra {
		options[k] = v
	}
	d, err := NewDiscord("discord", testConfig(t, options), WithTransport(mt))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Disconnect(t.Context()) })
	return d
}

func TestDiscord_SendBuildsWebhookPayload(t *testing.T) {
	t.Parallel()

	var rec recorder
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, discordHook, func(req *http.Request) (*http.Response, error) {
		rec.record(t, req)
		return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
	})
	d := newTestDiscord(t, mt, map[string]any{"username": "transfer-bot"})

	msg := notification.NewMessage("Copy failed on /data", notification.LevelError, notification.TypeError,
		notification.WithMetadata(map[string]any{"bytes": 1024, "title": "Transfer error"}))
	require.NoError(t, d.Send(t.Context(), msg))

	require.Equal(t, 1, rec.count())
	body := rec.body(0)
	assert.Equal(t, "transfer-bot", body["username"])
	assert.Equal(t, "**Transfer error**\nCopy failed on /data", body["content"])

	embeds, ok := body["embeds"].([]any)
	require.True(t, ok)
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]any)
	assert.Equal(t, "ERROR / HIGH", embed["title"])
	assert.InDelta(t, float64(0xe74c3c), embed["color"], 0)
	fields := embed["fields"].([]any)
	require.Len(t, fields, 1, "title is not repeated as a field")
	assert.Equal(t, "bytes", fields[0].(map[string]any)["name"])
	assert.Equal(t, "1024", fields[0].(map[string]any)["value"])
}

func TestDiscord_TruncatesLongContent(t *testing.T) {
	t.Parallel()

	var rec recorder
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, discordHook, func(req *http.Request) (*http.Response, error) {
		rec.record(t, req)
		return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
	})
	d := newTestDiscord(t, mt, nil)

	require.NoError(t, d.Send(t.Context(), completion(strings.Repeat("a", 5000), nil)))
	content := rec.body(0)["content"].(string)
	assert.Len(t, []rune(content), discordMaxContent)
	assert.True(t, strings.HasSuffix(content, "..."))
}

func TestDiscord_RateLimitedResponse(t *testing.T) {
	t.Parallel()

	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, discordHook, func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusTooManyRequests, `{"message":"You are being rate limited.","retry_after":42.5,"global":false}`)
		resp.Header.Set("Content-Type", "application/json")
		return resp, nil
	})
	d := newTestDiscord(t, mt, nil)

	err := d.Send(t.Context(), completion("done", nil))
	var te *notification.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
	assert.Equal(t, 42500*time.Millisecond, te.RetryAfter)
	assert.Equal(t, 1, mt.GetTotalCallCount(), "waits above max_retry_wait are left to the engine")
}

func TestDiscordValidator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		options map[string]any
		wantErr string
	}{
		{"valid", map[string]any{"webhook_url": discordHook}, ""},
		{"missing url", map[string]any{}, "webhook_url is required"},
		{"wrong scheme", map[string]any{"webhook_url": "ftp://discord.com/x"}, "scheme must be http or https"},
		{"bad transport retries", map[string]any{"webhook_url": discordHook, "transport_retries": 9}, "transport_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := DiscordValidator.New().Validate(t.Context(), testConfig(t, tt.options))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
