package state

import (
	"sync"

	"github.com/apsession/client/internal/protocol"
)

// DefaultMessageCapacity is how many undelivered messages a store keeps.
const DefaultMessageCapacity = 100

// MessageQueue is a thread-safe bounded FIFO of messages. When full, a push
// overwrites the oldest message.
//
// Example with capacity 3:
//
//	Push(A) -> [A, _, _]  head=0, size=1
//	Push(B) -> [A, B, _]  head=0, size=2
//	Push(C) -> [A, B, C]  head=0, size=3
//	Push(D) -> [D, B, C]  head=1, size=3 (A dropped)
//	Pop()   -> B          head=2, size=2
type MessageQueue struct {
	mu sync.RWMutex

	buf []protocol.Message

	// head is the index of the oldest message.
	head int
	size int
	cap  int
}

// NewMessageQueue creates a queue holding at most capacity messages.
// If capacity is <= 0, it defaults to DefaultMessageCapacity.
func NewMessageQueue(capacity int) *MessageQueue {
	if capacity <= 0 {
		capacity = DefaultMessageCapacity
	}
	return &MessageQueue{
		buf: make([]protocol.Message, capacity),
		cap: capacity,
	}
}

// Push appends msg, dropping the oldest message when the queue is full.
// It reports whether a message was dropped.
func (q *MessageQueue) Push(msg protocol.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	tail := (q.head + q.size) % q.cap
	q.buf[tail] = msg
	if q.size < q.cap {
		q.size++
		return false
	}
	q.head = (q.head + 1) % q.cap
	return true
}

// Pop removes and returns the oldest message.
func (q *MessageQueue) Pop() (protocol.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return protocol.Message{}, false
	}
	msg := q.buf[q.head]
	q.buf[q.head] = protocol.Message{}
	q.head = (q.head + 1) % q.cap
	q.size--
	return msg, true
}

// Drain removes and returns every message, oldest first.
func (q *MessageQueue) Drain() []protocol.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.copyLocked()
	q.resetLocked()
	return out
}

// Messages returns a copy of the queued messages, oldest first.
func (q *MessageQueue) Messages() []protocol.Message {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.copyLocked()
}

func (q *MessageQueue) copyLocked() []protocol.Message {
	out := make([]protocol.Message, q.size)
	for i := 0; i < q.size; i++ {
		out[i] = q.buf[(q.head+i)%q.cap]
	}
	return out
}

func (q *MessageQueue) resetLocked() {
	for i := range q.buf {
		q.buf[i] = protocol.Message{}
	}
	q.head = 0
	q.size = 0
}

// Len returns the number of queued messages.
func (q *MessageQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.size
}

// Capacity returns the maximum number of queued messages.
func (q *MessageQueue) Capacity() int {
	return q.cap
}

// Clear drops every queued message.
func (q *MessageQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetLocked()
}
