// Package queue provides the bounded drop-oldest mailbox that joins the
// capture, processing and control tasks.
//
// Producers never block: when the queue is full the oldest unread item is
// overwritten and counted as a drop. Consumers block for at most the timeout
// passed to Pop so they can recheck cancellation.
package queue

import (
	"context"
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Pushed  uint64 `json:"pushed"`
	Popped  uint64 `json:"popped"`
	Dropped uint64 `json:"dropped"`
	Len     int    `json:"len"`
}

// DropOldest is a bounded FIFO that discards the oldest item on overflow.
// It is safe for one or more producers and a single consumer.
type DropOldest[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	size   int
	notify chan struct{}
	done   chan struct{}
	closed bool

	pushed  uint64
	popped  uint64
	dropped uint64
}

// New creates a queue holding at most capacity items. Capacities below 1 are
// raised to 1.
func New[T any](capacity int) *DropOldest[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &DropOldest[T]{
		items:  make([]T, capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Cap returns the queue capacity.
func (q *DropOldest[T]) Cap() int { return len(q.items) }

// Push appends v. If the queue is full the oldest item is discarded and
// Push reports true. Pushing to a closed queue is a no-op.
func (q *DropOldest[T]) Push(v T) (dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.size == len(q.items) {
		var zero T
		q.items[q.head] = zero
		q.head = (q.head + 1) % len(q.items)
		q.size--
		q.dropped++
		dropped = true
	}
	q.items[(q.head+q.size)%len(q.items)] = v
	q.size++
	q.pushed++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

// TryPop removes and returns the oldest item without waiting.
func (q *DropOldest[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.size == 0 {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--
	q.popped++
	return v, true
}

// Pop waits up to timeout for an item. It returns false on timeout or when
// the queue has been closed and drained.
func (q *DropOldest[T]) Pop(timeout time.Duration) (T, bool) {
	return q.PopContext(context.Background(), timeout)
}

// PopContext is Pop that also returns early when ctx is cancelled.
func (q *DropOldest[T]) PopContext(ctx context.Context, timeout time.Duration) (T, bool) {
	if v, ok := q.TryPop(); ok {
		return v, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notify:
			if v, ok := q.TryPop(); ok {
				return v, true
			}
		case <-q.done:
			return q.TryPop()
		case <-timer.C:
			return q.TryPop()
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// Close wakes any waiting consumer. Items already queued can still be popped.
func (q *DropOldest[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Drained reports whether the queue is closed and empty.
func (q *DropOldest[T]) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && q.size == 0
}

// Len returns the number of unread items.
func (q *DropOldest[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Stats returns the current counters.
func (q *DropOldest[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Pushed: q.pushed, Popped: q.popped, Dropped: q.dropped, Len: q.size}
}
