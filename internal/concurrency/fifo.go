// File: internal/concurrency/fifo.go
// License: Apache-2.0
//
// Typed, unbounded FIFO over eapache/queue's ring buffer. Not synchronized;
// callers guard it with their own lock.

package concurrency

import "github.com/eapache/queue"

// FIFO is a first-in first-out queue of T.
type FIFO[T any] struct {
	q *queue.Queue
}

// NewFIFO returns an empty queue.
func NewFIFO[T any]() *FIFO[T] {
	return &FIFO[T]{q: queue.New()}
}

// Push appends v at the tail.
func (f *FIFO[T]) Push(v T) {
	f.q.Add(v)
}

// Pop removes and returns the head, reporting false when empty.
func (f *FIFO[T]) Pop() (T, bool) {
	var zero T
	if f.q.Length() == 0 {
		return zero, false
	}
	return f.q.Remove().(T), true
}

// Peek returns the head without removing it.
func (f *FIFO[T]) Peek() (T, bool) {
	var zero T
	if f.q.Length() == 0 {
		return zero, false
	}
	return f.q.Peek().(T), true
}

// Len returns the number of queued elements.
func (f *FIFO[T]) Len() int {
	return f.q.Length()
}

// Drain removes every element, in order.
func (f *FIFO[T]) Drain() []T {
	out := make([]T, 0, f.q.Length())
	for f.q.Length() > 0 {
		out = append(out, f.q.Remove().(T))
	}
	return out
}
