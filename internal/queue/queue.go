// Package queue provides the FIFO used to buffer states for a single receiver.
package queue

// Queue is a FIFO of T with an optional capacity.
//
// A Queue is not goroutine-safe; the owner guards it with its own lock.
type Queue[T any] struct {
	items    []T
	capacity int
	dropped  uint64
}

// New creates a Queue. A capacity of zero or less means unbounded.
func New[T any](capacity int) *Queue[T] {
	prealloc := capacity
	if prealloc <= 0 || prealloc > 16 {
		prealloc = 16
	}

	return &Queue[T]{
		items:    make([]T, 0, prealloc),
		capacity: capacity,
	}
}

// Enqueue adds an item to the tail of the queue.
//
// When a bounded queue is full, the item at the head is discarded to make room and
// Enqueue returns true.
func (q *Queue[T]) Enqueue(item T) (dropped bool) {
	if q.capacity > 0 && len(q.items) >= q.capacity {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.dropped++
		dropped = true
	}

	q.items = append(q.items, item)

	return dropped
}

// Dequeue removes and returns the item at the head of the queue.
// The boolean is false if the queue is empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	return item, true
}

// Peek returns the item at the head of the queue without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	return q.items[0], true
}

// Reset empties the queue, reusing the underlying array.
func (q *Queue[T]) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}

// IsEmpty returns true if the queue is empty, false otherwise.
func (q *Queue[T]) IsEmpty() bool {
	return len(q.items) == 0
}

// Length returns the number of items in the queue.
func (q *Queue[T]) Length() int {
	return len(q.items)
}

// Capacity returns the configured capacity, zero when unbounded.
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// Dropped returns how many items were discarded because the queue was full.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped
}
