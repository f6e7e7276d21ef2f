package notify

import (
	"sync"
)

// queue is a thread-safe unbounded FIFO of notifications.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in Subscription.Next.
type queue struct {
	mu     sync.Mutex
	items  []Notification
	closed bool
	signal chan struct{} // buffered, size 1
}

func newQueue() *queue {
	return &queue{
		items:  make([]Notification, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds n to the back of the queue.
// Returns false if the queue is closed.
func (q *queue) Enqueue(n Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, n)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front notification without blocking.
// closed is true once the queue is closed and fully drained.
func (q *queue) TryDequeue() (n Notification, ok bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Notification{}, false, q.closed
	}

	n = q.items[0]
	// Release the event pointer held by the backing array.
	q.items[0] = Notification{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return n, true, false
}

// Wait returns a channel that signals when notifications may be available.
func (q *queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued notifications.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further enqueues and wakes any waiter.
func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
