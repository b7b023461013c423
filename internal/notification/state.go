package notification

import (
	"maps"
	"sync"
	"time"
)

// HistoryEntry is one delivery outcome kept in the provider history.
type HistoryEntry struct {
	MessageID string    `json:"message_id"`
	Text      string    `json:"text"`
	Success   bool      `json:"success"`
	Priority  Priority  `json:"priority"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// StateSnapshot is a point-in-time copy of a NotificationState.
type StateSnapshot struct {
	NotificationCount int                `json:"notification_count"`
	SuccessCount      int                `json:"success_count"`
	ErrorCount        int                `json:"error_count"`
	LastSeen          map[Type]time.Time `json:"last_seen"`
	History           []HistoryEntry     `json:"history"`
}

// historyRing is a fixed-capacity FIFO. The oldest entry is overwritten
// once the ring is full.
type historyRing[T any] struct {
	buf   []T
	start int
	size  int
}

func newHistoryRing[T any](capacity int) *historyRing[T] {
	return &historyRing[T]{buf: make([]T, capacity)}
}

func (r *historyRing[T]) push(v T) {
	if len(r.buf) == 0 {
		return
	}
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// items returns a copy in insertion order, oldest first.
func (r *historyRing[T]) items() []T {
	out := make([]T, r.size)
	for i := range r.size {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *historyRing[T]) len() int { return r.size }

// NotificationState holds the counters and bounded history of one provider.
// It is mutated only through AddNotification and read only through copies.
type NotificationState struct {
	mu                sync.Mutex
	notificationCount int
	successCount      int
	history           *historyRing[HistoryEntry]
	lastSeen          map[Type]time.Time
}

// NewNotificationState creates an empty state with a MaxHistorySize ring.
func NewNotificationState() *NotificationState {
	return newNotificationState(MaxHistorySize)
}

func newNotificationState(historySize int) *NotificationState {
	return &NotificationState{
		history:  newHistoryRing[HistoryEntry](historySize),
		lastSeen: make(map[Type]time.Time),
	}
}

// AddNotification records one delivery outcome.
func (s *NotificationState) AddNotification(msg *Message, success bool) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.notificationCount++
	if success {
		s.successCount++
	}
	s.lastSeen[msg.Type()] = now
	s.history.push(HistoryEntry{
		MessageID: msg.ID(),
		Text:      msg.Text(),
		Success:   success,
		Priority:  msg.Priority(),
		Type:      msg.Type(),
		Timestamp: now,
	})
}

// LastSeen returns when a message of typ was last recorded.
func (s *NotificationState) LastSeen(typ Type) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastSeen[typ]
	return t, ok
}

// History returns the retained entries, oldest first.
func (s *NotificationState) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.items()
}

// Counts returns notification, success and error counts.
func (s *NotificationState) Counts() (total, success, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notificationCount, s.successCount, s.notificationCount - s.successCount
}

// Snapshot copies the whole state.
func (s *NotificationState) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StateSnapshot{
		NotificationCount: s.notificationCount,
		SuccessCount:      s.successCount,
		ErrorCount:        s.notificationCount - s.successCount,
		LastSeen:          maps.Clone(s.lastSeen),
		History:           s.history.items(),
	}
}
