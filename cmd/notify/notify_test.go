package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/xferwatch/internal/conf"
)

func TestParseExtra(t *testing.T) {
	t.Parallel()

	md, err := parseExtra([]string{"exit_code=23", "verified=true", " host = nas01 ", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"exit_code": 23.0,
		"verified":  true,
		"host":      "nas01",
		"note":      "a=b",
	}, md)

	_, err = parseExtra([]string{"novalue"})
	require.Error(t, err)
	_, err = parseExtra([]string{"=x"})
	require.Error(t, err)
}

func TestCommand_RejectsBadFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"type", []string{"--type=gossip", "hi"}, "invalid type: gossip"},
		{"level", []string{"--level=loud", "hi"}, "invalid level: loud"},
		{"priority", []string{"--priority=urgent", "hi"}, "invalid priority: urgent"},
		{"extra", []string{"--extra=broken", "hi"}, "invalid metadata format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd := Command(&conf.Settings{})
			cmd.SetArgs(tt.args)
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			err := cmd.ExecuteContext(t.Context())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
