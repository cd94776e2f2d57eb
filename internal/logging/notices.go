package logging

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is a single log record kept for display to the user.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Notices is a fixed-size ring of recent log entries. The UI reads it to show
// why an enumeration came back partial.
type Notices struct {
	mu       sync.Mutex
	entries  []Entry
	next     int
	full     bool
	minLevel slog.Level
	dropped  uint64
}

// NewNotices creates a ring holding up to capacity entries at or above minLevel.
func NewNotices(capacity int, minLevel string) *Notices {
	if capacity < 1 {
		capacity = 1
	}
	return &Notices{
		entries:  make([]Entry, capacity),
		minLevel: parseLevel(minLevel),
	}
}

// Accepts reports whether a record at level would be kept.
func (n *Notices) Accepts(level slog.Level) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return level >= n.minLevel
}

// SetMinLevel adjusts the minimum level kept from now on.
func (n *Notices) SetMinLevel(level string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minLevel = parseLevel(level)
}

// Add stores an entry, overwriting the oldest one when the ring is full.
func (n *Notices) Add(e Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.full {
		n.dropped++
	}
	n.entries[n.next] = e
	n.next = (n.next + 1) % len(n.entries)
	if n.next == 0 {
		n.full = true
	}
}

// Recent returns the stored entries, oldest first.
func (n *Notices) Recent() []Entry {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.full {
		out := make([]Entry, n.next)
		copy(out, n.entries[:n.next])
		return out
	}

	out := make([]Entry, 0, len(n.entries))
	out = append(out, n.entries[n.next:]...)
	out = append(out, n.entries[:n.next]...)
	return out
}

// Dropped returns how many entries were overwritten before being read.
func (n *Notices) Dropped() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped
}
