// Package queue provides the unbounded FIFO of pending dump filenames. The
// logcat listener and the queue poller both append; pull workers remove from
// the front with a bounded wait so they can re-check for shutdown between
// pops.
package queue

import (
	"sync"
	"time"
)

// Queue is an unbounded FIFO of filenames with a blocking, timeout-bounded
// Pop. Push never blocks.
type Queue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends name to the back of the queue and wakes one waiting consumer.
func (q *Queue) Push(name string) {
	q.mu.Lock()
	q.items = append(q.items, name)
	q.mu.Unlock()
	q.wake()
}

// Pop removes and returns the filename at the front of the queue, waiting up
// to timeout for one to arrive. It returns ok=false when the wait expires
// with the queue still empty.
func (q *Queue) Pop(timeout time.Duration) (string, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if name, ok := q.tryPop(); ok {
			return name, true
		}
		select {
		case <-q.notify:
			// An item may already have been claimed by another worker;
			// loop and re-check.
		case <-deadline.C:
			return q.tryPop()
		}
	}
}

// Len returns the number of queued filenames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) tryPop() (string, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return "", false
	}
	name := q.items[0]
	q.items = q.items[1:]
	remaining := len(q.items)
	q.mu.Unlock()
	if remaining > 0 {
		// Pushes collapse into one token; hand the wakeup on so other
		// waiters see the remaining items promptly.
		q.wake()
	}
	return name, true
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
