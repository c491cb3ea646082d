package ingest

import (
	"sync"
	"time"
)

// LogEntry is one accepted or rejected submission, kept for the
// operator log view.
type LogEntry struct {
	Source      string    `json:"source"`
	FacilityID  string    `json:"facility_id"`
	Ward        string    `json:"ward"`
	Indicator   string    `json:"indicator,omitempty"`
	Accepted    bool      `json:"accepted"`
	Substituted bool      `json:"substituted,omitempty"`
	Error       string    `json:"error,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Ring keeps the most recent submissions in fixed memory. Oldest
// entries fall off silently.
type Ring struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

// NewRing creates a ring holding up to capacity entries.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{entries: make([]LogEntry, capacity)}
}

// Add records one submission.
func (r *Ring) Add(entry LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns retained entries, newest first.
func (r *Ring) Recent() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.entries)
	}
	out := make([]LogEntry, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out
}
