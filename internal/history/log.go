// Package history keeps the bounded, ordered log of recently relayed messages.
package history

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/taskrelay/relay/internal/buffer"
	"github.com/taskrelay/relay/internal/model"
)

// DefaultCapacity is the number of entries retained when no capacity is configured.
const DefaultCapacity = 100

// Log is the relay's recent-activity window. Entries are appended in arrival
// order and the oldest are evicted first once the capacity is reached.
// Entry timestamps never go backwards and sequence ids strictly increase.
type Log struct {
	ring  *buffer.Ring[model.HistoryEntry]
	clock clockwork.Clock

	mu   sync.Mutex
	seq  int64
	last time.Time
}

// NewLog creates an empty log holding at most capacity entries.
// A non-positive capacity falls back to DefaultCapacity.
func NewLog(capacity int, clock clockwork.Clock) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Log{
		ring:  buffer.NewRing[model.HistoryEntry](capacity),
		clock: clock,
	}
}

// Append records payload with the given origin tag and returns the stored
// entry. It never fails; a full log evicts its oldest entry, which is
// reported by evicted.
func (l *Log) Append(payload, origin string) (entry model.HistoryEntry, evicted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().UTC()
	if now.Before(l.last) {
		now = l.last
	}
	l.last = now
	l.seq++

	entry = model.HistoryEntry{
		ID:      l.seq,
		Content: payload,
		Time:    now,
		Origin:  origin,
	}
	return entry, l.ring.Push(entry)
}

// Snapshot returns the retained entries in arrival order. The result is a
// copy and is never nil.
func (l *Log) Snapshot() []model.HistoryEntry {
	entries := l.ring.ReadAll()
	if entries == nil {
		return []model.HistoryEntry{}
	}
	return entries
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	return l.ring.Len()
}

// Cap returns the maximum number of retained entries.
func (l *Log) Cap() int {
	return l.ring.Cap()
}
