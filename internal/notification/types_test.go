package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMessage_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level    Level
		expected Priority
	}{
		{LevelCritical, PriorityHigh},
		{LevelError, PriorityHigh},
		{LevelWarning, PriorityNormal},
		{LevelInfo, PriorityNormal},
		{LevelDebug, PriorityLow},
	}
	for _, tt := range tests {
		msg := NewMessage("x", tt.level, TypeSystem)
		assert.Equal(t, tt.expected, msg.Priority(), "level %s", tt.level)
	}

	msg := NewMessage("x", Level("LOUD"), Type("WHATEVER"))
	assert.Equal(t, LevelInfo, msg.Level())
	assert.Equal(t, TypeCustom, msg.Type())
	assert.NotEmpty(t, msg.ID())
	assert.False(t, msg.CreatedAt().IsZero())
}

func TestMessage_MetadataIsImmutable(t *testing.T) {
	t.Parallel()

	src := map[string]any{
		"files": []string{"a", "b"},
		"stats": map[string]any{"bytes": 10},
	}
	msg := NewMessage("x", LevelInfo, TypeBatch, WithMetadata(src))

	src["files"].([]string)[0] = "changed"
	src["stats"].(map[string]any)["bytes"] = 99

	md := msg.Metadata()
	assert.Equal(t, []string{"a", "b"}, md["files"])
	assert.Equal(t, 10, md["stats"].(map[string]any)["bytes"])

	md["files"] = nil
	assert.Equal(t, []string{"a", "b"}, msg.Metadata()["files"])
}

func TestPriorityFromExtra(t *testing.T) {
	t.Parallel()

	p, ok := priorityFromExtra(map[string]any{"priority": "HIGH"})
	assert.True(t, ok)
	assert.Equal(t, PriorityHigh, p)

	_, ok = priorityFromExtra(map[string]any{"priority": "urgent"})
	assert.False(t, ok)

	_, ok = priorityFromExtra(nil)
	assert.False(t, ok)
}
