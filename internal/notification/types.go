// Package notification is the dispatch and reliability engine that delivers
// transfer progress messages to chat providers. It owns rate limiting,
// retry with backoff, fail-fast disabling of dead providers and the provider
// registry with its validator cache.
package notification

import (
	"maps"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a message.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical:
		return true
	}
	return false
}

// Priority represents the urgency of a message. It scales rate limit
// allowances and retry aggressiveness.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

// Priorities lists all priorities from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}

// Type represents the semantic category of a message, used for per-category
// rate gating.
type Type string

const (
	TypeProgress    Type = "PROGRESS"
	TypeCompletion  Type = "COMPLETION"
	TypeError       Type = "ERROR"
	TypeWarning     Type = "WARNING"
	TypeSystem      Type = "SYSTEM"
	TypeDebug       Type = "DEBUG"
	TypeBatch       Type = "BATCH"
	TypeInteractive Type = "INTERACTIVE"
	TypeCustom      Type = "CUSTOM"
)

// Types lists every message type.
var Types = []Type{
	TypeProgress, TypeCompletion, TypeError, TypeWarning, TypeSystem,
	TypeDebug, TypeBatch, TypeInteractive, TypeCustom,
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// DefaultPriority maps a level to the priority used when the caller gives none.
func DefaultPriority(level Level) Priority {
	switch level {
	case LevelCritical, LevelError:
		return PriorityHigh
	case LevelDebug:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Message is an immutable notification payload. Build it with NewMessage.
type Message struct {
	id        string
	text      string
	level     Level
	priority  Priority
	typ       Type
	metadata  map[string]any
	createdAt time.Time
}

// MessageOption customises a message at construction time.
type MessageOption func(*Message)

// WithPriority overrides the level-derived priority.
func WithPriority(p Priority) MessageOption {
	return func(m *Message) {
		if p.Valid() {
			m.priority = p
		}
	}
}

// WithMetadata attaches a copy of md to the message.
func WithMetadata(md map[string]any) MessageOption {
	return func(m *Message) {
		if len(md) == 0 {
			return
		}
		if m.metadata == nil {
			m.metadata = make(map[string]any, len(md))
		}
		maps.Copy(m.metadata, deepCopyMetadata(md))
	}
}

// NewMessage creates a message with a unique ID and the current timestamp.
// Unknown levels fall back to INFO and unknown types to CUSTOM.
func NewMessage(text string, level Level, typ Type, opts ...MessageOption) *Message {
	if !level.Valid() {
		level = LevelInfo
	}
	if !typ.Valid() {
		typ = TypeCustom
	}
	m := &Message{
		id:        uuid.New().String(),
		text:      text,
		level:     level,
		priority:  DefaultPriority(level),
		typ:       typ,
		createdAt: time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Message) ID() string           { return m.id }
func (m *Message) Text() string         { return m.text }
func (m *Message) Level() Level         { return m.level }
func (m *Message) Priority() Priority   { return m.priority }
func (m *Message) Type() Type           { return m.typ }
func (m *Message) CreatedAt() time.Time { return m.createdAt }

// Metadata returns a deep copy of the message metadata.
func (m *Message) Metadata() map[string]any {
	return deepCopyMetadata(m.metadata)
}

// MetadataString returns a string metadata value, or "" when absent.
func (m *Message) MetadataString(key string) string {
	s, _ := m.metadata[key].(string)
	return s
}

// priorityFromExtra reads an optional "priority" key from caller extras.
func priorityFromExtra(extra map[string]any) (Priority, bool) {
	switch v := extra["priority"].(type) {
	case Priority:
		return v, v.Valid()
	case string:
		p := Priority(v)
		return p, p.Valid()
	}
	return "", false
}

func deepCopyMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return deepCopyValue(src).(map[string]any)
}

// deepCopyValue recursively copies maps and slices so callers can never
// mutate data shared with a message or a provider config. Other kinds are
// returned as-is.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}

	original := reflect.ValueOf(v)
	switch original.Kind() {
	case reflect.Map:
		if original.IsNil() {
			return v
		}
		newMap := reflect.MakeMapWithSize(original.Type(), original.Len())
		iter := original.MapRange()
		for iter.Next() {
			copied := deepCopyValue(iter.Value().Interface())
			if copied == nil {
				newMap.SetMapIndex(iter.Key(), reflect.Zero(original.Type().Elem()))
			} else {
				newMap.SetMapIndex(iter.Key(), reflect.ValueOf(copied))
			}
		}
		return newMap.Interface()

	case reflect.Slice:
		if original.IsNil() {
			return v
		}
		newSlice := reflect.MakeSlice(original.Type(), original.Len(), original.Len())
		for i := range original.Len() {
			copied := deepCopyValue(original.Index(i).Interface())
			if copied == nil {
				newSlice.Index(i).Set(reflect.Zero(original.Type().Elem()))
			} else {
				newSlice.Index(i).Set(reflect.ValueOf(copied))
			}
		}
		return newSlice.Interface()

	default:
		return v
	}
}
