package router

import "sync"

// growThreshold is the fill percentage at which a Queue doubles.
const growThreshold = 70

// Queue is an unbounded-by-default FIFO ring that doubles its backing array
// once it is 70% full. A positive limit caps the number of queued items;
// Push reports false instead of growing past it.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	tail   int
	count  int
	limit  int
	closed bool

	pushed  int64
	popped  int64
	dropped int64
	resizes int
}

// QueueStats is a point-in-time view of a Queue.
type QueueStats struct {
	Depth    int
	Capacity int
	Limit    int
	Pushed   int64
	Popped   int64
	Dropped  int64
	Resizes  int
}

// NewQueue creates a queue with the given initial capacity. limit <= 0
// means no limit.
func NewQueue[T any](initial, limit int) *Queue[T] {
	if initial < 1 {
		initial = 1
	}
	if limit > 0 && initial > limit {
		initial = limit
	}
	q := &Queue[T]{
		items: make([]T, initial),
		limit: limit,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item. It returns false when the queue is closed or full.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.limit > 0 && q.count >= q.limit {
		q.dropped++
		return false
	}

	threshold := len(q.items) * growThreshold / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold || q.count == len(q.items) {
		q.grow()
	}

	q.items[q.tail] = item
	q.tail = (q.tail + 1) % len(q.items)
	q.count++
	q.pushed++

	q.cond.Signal()
	return true
}

// Pop blocks until an item is available. It returns false once the queue
// is closed and empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// TryPop returns the head item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// Close stops further pushes and wakes blocked readers. Items already queued
// can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Depth:    q.count,
		Capacity: len(q.items),
		Limit:    q.limit,
		Pushed:   q.pushed,
		Popped:   q.popped,
		Dropped:  q.dropped,
		Resizes:  q.resizes,
	}
}

// take removes the head item. Must be called with lock held.
func (q *Queue[T]) take() T {
	item := q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--
	q.popped++
	return item
}

// grow doubles the backing array, clamped to the limit. Must be called with
// lock held.
func (q *Queue[T]) grow() {
	size := len(q.items) * 2
	if q.limit > 0 && size > q.limit {
		size = q.limit
	}
	if size <= len(q.items) {
		return
	}

	next := make([]T, size)
	if q.count > 0 {
		if q.head < q.tail {
			copy(next, q.items[q.head:q.tail])
		} else {
			n := copy(next, q.items[q.head:])
			copy(next[n:], q.items[:q.tail])
		}
	}

	q.items = next
	q.head = 0
	q.tail = q.count
	q.resizes++
}
