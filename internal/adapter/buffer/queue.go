package buffer

import (
	"sync"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

// BoundedQueue is a fixed-capacity FIFO of events safe for concurrent use.
type BoundedQueue struct {
	mu    sync.Mutex
	items []domain.Event
	head  int
	size  int
}

// NewBoundedQueue creates a queue holding at most capacity events.
func NewBoundedQueue(capacity int) *BoundedQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &BoundedQueue{items: make([]domain.Event, capacity)}
}

// Offer appends e and reports false if the queue is full.
func (q *BoundedQueue) Offer(e domain.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == len(q.items) {
		return false
	}
	q.items[(q.head+q.size)%len(q.items)] = e
	q.size++
	return true
}

// PollBatch removes up to max events in FIFO order. max <= 0 drains everything.
func (q *BoundedQueue) PollBatch(max int) []domain.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil
	}
	if max <= 0 || max > q.size {
		max = q.size
	}
	out := make([]domain.Event, max)
	for i := range out {
		idx := (q.head + i) % len(q.items)
		out[i] = q.items[idx]
		q.items[idx] = domain.Event{}
	}
	q.head = (q.head + max) % len(q.items)
	q.size -= max
	return out
}

// Len returns the number of queued events.
func (q *BoundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the fixed capacity.
func (q *BoundedQueue) Cap() int { return len(q.items) }

// Remaining returns the free capacity.
func (q *BoundedQueue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.size
}
