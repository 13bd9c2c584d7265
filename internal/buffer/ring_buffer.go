// Package buffer provides a bounded ring buffer used to retain recent relay traffic.
package buffer

import (
	"sync"
)

// Ring is a thread-safe circular buffer that keeps the most recent items
// up to a fixed capacity. When the buffer is full, the oldest item is
// discarded to make room for the new one.
//
// The relay uses it to keep the recent-message window replayed to clients
// when they connect.
type Ring[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewRing creates a new Ring with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends item to the buffer and reports whether the oldest item was
// evicted to make room for it.
func (r *Ring[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < r.capacity {
		r.items[(r.head+r.size)%r.capacity] = item
		r.size++
		return false
	}

	// Full: overwrite the oldest slot and advance head past it.
	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	return true
}

// ReadAll returns a copy of all items in insertion order, oldest first.
// It returns nil when the buffer is empty.
func (r *Ring[T]) ReadAll() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.size == 0 {
		return nil
	}

	result := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		result[i] = r.items[(r.head+i)%r.capacity]
	}
	return result
}

// Len returns the current number of items in the buffer.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.size
}

// Cap returns the capacity of the buffer.
func (r *Ring[T]) Cap() int {
	return r.capacity
}
