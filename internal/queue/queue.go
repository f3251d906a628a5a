// Package queue provides a small thread-safe FIFO.
package queue

import (
	"sync"
)

// Queue is a generic thread-safe FIFO. A bounded queue keeps only the newest
// items, discarding the oldest on overflow.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	limit int
}

// New creates an empty queue. A limit of zero or less means unbounded.
func New[T any](limit int) *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
		limit: limit,
	}
}

// Push appends items and returns how many old items were discarded.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)

	if q.limit <= 0 || len(q.items) <= q.limit {
		return 0
	}
	dropped := len(q.items) - q.limit
	q.items = append(q.items[:0], q.items[dropped:]...)
	return dropped
}

// Drain returns all items and clears the queue.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}
