package memory

import (
	"fmt"
)

// Queue is a fixed-capacity FIFO ring buffer.
type Queue[T any] struct {
	alloc Allocator
	block Block
	data  []T
	head  int
	n     int
}

// NewQueue creates a queue with the given capacity backed by a.
//
// Parameters:
//   - a: the allocator providing storage
//   - capacity: the maximum number of queued elements
//   - tag: debug tag for the backing block
//
// Returns:
//   - *Queue[T]: the queue
//   - error: ErrOutOfMemory from the allocator
func NewQueue[T any](a Allocator, capacity int, tag string) (*Queue[T], error) {
	data, b, err := NewSlice[T](a, capacity, tag)
	if err != nil {
		return nil, err
	}
	return &Queue[T]{alloc: a, block: b, data: data}, nil
}

// Push appends val at the tail.
//
// Returns:
//   - error: ErrFull when the queue is at capacity
func (q *Queue[T]) Push(val T) error {
	if q.n == len(q.data) {
		return fmt.Errorf("queue push at capacity %d: %w", len(q.data), ErrFull)
	}
	q.data[(q.head+q.n)%len(q.data)] = val
	q.n++
	return nil
}

// Pop removes and returns the head element.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	val := q.data[q.head]
	q.data[q.head] = zero
	q.head = (q.head + 1) % len(q.data)
	q.n--
	return val, true
}

// Peek returns the head element without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	if q.n == 0 {
		var zero T
		return zero, false
	}
	return q.data[q.head], true
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int { return q.n }

// Cap returns the capacity.
func (q *Queue[T]) Cap() int { return len(q.data) }

// Clear drops every queued element.
func (q *Queue[T]) Clear() {
	clear(q.data)
	q.head, q.n = 0, 0
}

// Release hands the storage back to the allocator.
func (q *Queue[T]) Release() {
	if q.block.Valid() {
		q.alloc.Free(q.block)
	}
	q.data, q.head, q.n, q.block = nil, 0, 0, Block{}
}
