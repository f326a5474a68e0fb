package queue

import "sync"

// Queue is a mutex-guarded FIFO shared between producer goroutines and a
// single consumer.
//
// Push never blocks and the queue is unbounded: while the consumer is not
// draining (a stalled application loop, or a long broker outage producing
// disconnect/retry events) every pushed element stays in memory until it is
// popped. No backpressure is applied at this layer.
//
// Ordering:
//   - Elements pushed by one goroutine are popped in the order they were pushed.
//   - Elements pushed concurrently by different goroutines have no relative order.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int

	// ready holds at most one pending wake-up for a waiting consumer.
	ready chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
	}
}

// Push appends an element to the back of the queue.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes and returns the front element.
// The boolean is false when the queue is empty; Pop never blocks.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}

	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	// Reclaim the backing array once it is fully consumed, or compact when
	// the consumed prefix dominates it.
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head > 64 && q.head*2 > len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	return item, true
}

// Len returns a snapshot of the number of queued elements.
// The value may be stale by the time the caller uses it.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Ready returns a channel that receives after a Push.
//
// A consumer may block on it instead of polling. A receive only means the
// queue was non-empty at some point since the last receive; always follow
// it with Pop or Drain.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Drain pops every queued element, calling fn for each in FIFO order.
// Elements pushed while Drain runs are included. Returns the number of
// elements consumed.
func (q *Queue[T]) Drain(fn func(T)) int {
	n := 0
	for {
		item, ok := q.Pop()
		if !ok {
			return n
		}
		fn(item)
		n++
	}
}
