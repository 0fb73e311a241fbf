package command

import "sync"

// Queue is a thread-safe FIFO of commands.
//
// Any goroutine may enqueue. One consumer, the network goroutine, drains the
// whole queue each cycle and waits on Wake between cycles. Wake is a
// one-slot channel: any number of enqueues between two drains collapse into
// a single pending wake-up, so Enqueue never blocks.
type Queue struct {
	mu    sync.Mutex
	items []Command
	wake  chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Enqueue appends cmd and wakes the consumer.
func (q *Queue) Enqueue(cmd Command) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
		// A wake-up is already pending.
	}
}

// Drain removes and returns every queued command in FIFO order.
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wake is signaled after every Enqueue.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}
