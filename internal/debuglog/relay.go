// Package debuglog provides a bounded, insertion-ordered store of raw wire
// exchanges keyed by correlation id, so agent traffic is inspectable without
// a separate network capture tool. It carries no validation logic.
package debuglog

import (
	"sync"
	"time"
)

// DefaultMaxLogs is the default bound on distinct correlation ids retained.
const DefaultMaxLogs = 500

// EntryType classifies one recorded exchange.
type EntryType string

const (
	TypeRequest  EntryType = "request"
	TypeResponse EntryType = "response"
	TypeError    EntryType = "error"
)

// Entry is a single recorded request, response, or error payload.
type Entry struct {
	ID        string    `json:"id"`
	Type      EntryType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Relay is an append-only store of entries grouped by correlation id. The id
// queue is FIFO by first insertion of each id: once the distinct-id count
// exceeds the bound, the oldest id is purged together with all its entries,
// regardless of how many entries newer ids hold.
type Relay struct {
	mu     sync.Mutex
	maxIDs int
	order  []string
	byID   map[string][]Entry
	stream []Entry
	now    func() time.Time // for testing
}

// NewRelay creates a relay bounded to maxIDs distinct correlation ids.
// Non-positive maxIDs falls back to DefaultMaxLogs.
func NewRelay(maxIDs int) *Relay {
	if maxIDs <= 0 {
		maxIDs = DefaultMaxLogs
	}
	return &Relay{
		maxIDs: maxIDs,
		byID:   make(map[string][]Entry),
		now:    time.Now,
	}
}

// Record appends one exchange under the given correlation id and returns the
// stored entry. Recording an unseen id may evict the oldest id.
func (r *Relay) Record(id string, typ EntryType, payload any) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := Entry{ID: id, Type: typ, Timestamp: r.now(), Payload: payload}

	if _, seen := r.byID[id]; !seen {
		r.order = append(r.order, id)
		if len(r.order) > r.maxIDs {
			r.evictOldestLocked()
		}
	}
	r.byID[id] = append(r.byID[id], entry)
	r.stream = append(r.stream, entry)
	return entry
}

// Get returns the entries recorded under one correlation id, oldest first.
func (r *Relay) Get(id string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.byID[id]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Entries returns all retained entries in append order, for the live console.
func (r *Relay) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.stream))
	copy(out, r.stream)
	return out
}

// IDs returns the retained correlation ids, oldest-inserted first.
func (r *Relay) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// evictOldestLocked purges the oldest id and its entries. Must be called
// with r.mu held.
func (r *Relay) evictOldestLocked() {
	oldest := r.order[0]
	r.order = r.order[1:]
	delete(r.byID, oldest)

	kept := r.stream[:0]
	for _, e := range r.stream {
		if e.ID != oldest {
			kept = append(kept, e)
		}
	}
	r.stream = kept
}
