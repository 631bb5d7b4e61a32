package relay

import (
	"context"
	"fmt"
	"sync"
)

// Queue is the unbounded single-producer/single-consumer hand-off between
// the bridge and the loop. Push never blocks.
type Queue struct {
	mu     sync.Mutex
	items  []Notification
	closed bool
	err    error
	ready  chan struct{} // cap 1; signalled on push and close
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends n. It reports false once the queue is closed.
func (q *Queue) Push(n Notification) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, n)
	q.mu.Unlock()
	q.signal()
	return true
}

// Close stops the queue. Items already queued are still delivered; after
// that Recv returns ErrQueueClosed wrapping cause.
func (q *Queue) Close(cause error) {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.err = cause
	}
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Recv blocks until a notification is available, the queue is closed and
// drained, or ctx ends.
func (q *Queue) Recv(ctx context.Context) (Notification, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			n := q.items[0]
			q.items[0] = Notification{}
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return n, nil
		}
		if q.closed {
			err := q.err
			q.mu.Unlock()
			if err == nil {
				return Notification{}, ErrQueueClosed
			}
			return Notification{}, fmt.Errorf("%w: %w", ErrQueueClosed, err)
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		case <-q.ready:
		}
	}
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
