package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/xferwatch/internal/conf"
)

func TestRedactSecrets(t *testing.T) {
	t.Parallel()

	s := conf.Settings{
		Sentry: conf.SentrySettings{DSN: "https://key@sentry.example.test/1"},
		Notification: conf.NotificationSettings{
			Providers: map[string]map[string]any{
				"telegram": {"bot_token": "123:abc", "chat_id": "42", "enabled": true},
				"webhook": {
					"url":  "https://hooks.example.test/x",
					"auth": map[string]any{"type": "bearer", "token": "s3cret"},
				},
			},
		},
	}

	out := redactSecrets(s)
	assert.Equal(t, redacted, out.Sentry.DSN)
	assert.Equal(t, redacted, out.Notification.Providers["telegram"]["bot_token"])
	assert.Equal(t, "42", out.Notification.Providers["telegram"]["chat_id"])
	assert.Equal(t, true, out.Notification.Providers["telegram"]["enabled"])
	assert.Equal(t, redacted, out.Notification.Providers["webhook"]["url"])
	auth := out.Notification.Providers["webhook"]["auth"].(map[string]any)
	assert.Equal(t, redacted, auth["token"])
	assert.Equal(t, "bearer", auth["type"])

	// the input is untouched
	assert.Equal(t, "123:abc", s.Notification.Providers["telegram"]["bot_token"])
	assert.Equal(t, "s3cret", s.Notification.Providers["webhook"]["auth"].(map[string]any)["token"])
}

func TestShowCommand(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{
		Main: conf.MainSettings{Name: "xferwatch"},
		Notification: conf.NotificationSettings{
			Providers: map[string]map[string]any{"discord": {"webhook_url": "https://discord.example.test/api/webhooks/1/x"}},
		},
	}

	var out bytes.Buffer
	cmd := Command(settings)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"show"})
	require.NoError(t, cmd.ExecuteContext(t.Context()))
	assert.Contains(t, out.String(), redacted)
	assert.NotContains(t, out.String(), "discord.example.test")

	out.Reset()
	cmd = Command(settings)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"show", "--show-secrets"})
	require.NoError(t, cmd.ExecuteContext(t.Context()))
	assert.Contains(t, out.String(), "discord.example.test")
}

func TestInitCommand(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "etc", "config.yaml")

	var out bytes.Buffer
	cmd := Command(&conf.Settings{})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init", path})
	require.NoError(t, cmd.ExecuteContext(t.Context()))
	assert.Contains(t, out.String(), "wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := conf.DefaultConfig()
	require.NoError(t, err)
	assert.Equal(t, want, data)

	cmd = Command(&conf.Settings{})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"init", path})
	require.Error(t, cmd.ExecuteContext(t.Context()), "existing file needs --force")

	cmd = Command(&conf.Settings{})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init", "--force", path})
	require.NoError(t, cmd.ExecuteContext(t.Context()))
}
