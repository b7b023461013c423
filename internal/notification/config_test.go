package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepMerge(t *testing.T) {
	t.Parallel()

	dst := map[string]any{
		"rate_limit": 10,
		"tags":       []string{"ops"},
		"embed": map[string]any{
			"color":  1,
			"footer": map[string]any{"text": "xfer", "icon": "a.png"},
		},
	}
	src := map[string]any{
		"rate_limit": 20,
		"tags":       []string{"oncall"},
		"embed": map[string]any{
			"footer": map[string]any{"text": "override"},
		},
	}

	merged := deepMerge(dst, src)

	assert.Equal(t, 20, merged["rate_limit"])
	assert.Equal(t, []string{"oncall"}, merged["tags"], "lists replace")
	embed := merged["embed"].(map[string]any)
	assert.Equal(t, 1, embed["color"])
	assert.Equal(t, map[string]any{"text": "override", "icon": "a.png"}, embed["footer"])

	// inputs untouched
	assert.Equal(t, "xfer", dst["embed"].(map[string]any)["footer"].(map[string]any)["text"])
	assert.Equal(t, []string{"ops"}, dst["tags"])
}

func TestDecodeProviderConfig(t *testing.T) {
	t.Parallel()

	cfg, err := DecodeProviderConfig(map[string]any{
		"rate_limit":  "12",
		"rate_period": 30,
		"retry_delay": 0.5,
		"tags":        []any{"ops", "night"},
		"webhook_url": "https://discord.com/api/webhooks/1/x",
		"username":    "xferwatch",
	})
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 12, cfg.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.RatePeriod)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, []string{"ops", "night"}, cfg.Tags)
	assert.True(t, cfg.HasTag("night"))
	assert.Equal(t, "https://discord.com/api/webhooks/1/x", cfg.Option("webhook_url"))
	assert.Equal(t, "xferwatch", cfg.Option("username"))
	assert.Empty(t, cfg.Option("missing"))
}

func TestDecodeProviderConfig_DurationStrings(t *testing.T) {
	t.Parallel()

	cfg, err := DecodeProviderConfig(map[string]any{"rate_period": "2m", "retry_delay": "250ms"})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.RatePeriod)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)

	_, err = DecodeProviderConfig(map[string]any{"rate_period": "soon"})
	assert.Error(t, err)
}

func TestValidateProviderConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  map[string]any
		ok   bool
	}{
		{"defaults", map[string]any{}, true},
		{"zero rate limit", map[string]any{"rate_limit": 0}, false},
		{"zero period", map[string]any{"rate_period": 0}, false},
		{"negative attempts", map[string]any{"retry_attempts": -1}, false},
		{"too many attempts", map[string]any{"retry_attempts": 11}, false},
		{"delay above cap", map[string]any{"retry_delay": 31}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateProviderConfig(testConfig(t, tt.raw))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
