package webhook

import (
	"sync"
	"time"
)

// DefaultEventLogSize is the number of recent events kept for inspection
const DefaultEventLogSize = 500

// EventLogEntry is a verified event as it was received
type EventLogEntry struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Created    time.Time `json:"created"`
	ObjectID   string    `json:"objectId,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
	Duplicate  bool      `json:"duplicate"`
}

// EventLog is a fixed-size ring of recent events. The oldest entry is
// overwritten once the ring is full.
type EventLog struct {
	mu      sync.Mutex
	entries []EventLogEntry
	next    int
	full    bool
}

// NewEventLog creates a ring holding up to size entries
func NewEventLog(size int) *EventLog {
	if size <= 0 {
		size = DefaultEventLogSize
	}
	return &EventLog{entries: make([]EventLogEntry, size)}
}

// Append records an entry
func (l *EventLog) Append(e EventLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// Len returns the number of stored entries
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.entries)
	}
	return l.next
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (l *EventLog) Recent(limit int) []EventLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]EventLogEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}
