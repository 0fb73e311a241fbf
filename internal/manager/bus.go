package manager

import "sync"

// Handler receives bus events.
type Handler func(Event)

// Bus fans events out to subscribers.
//
// Immediate subscribers run on the publishing goroutine, which for session
// events is the network goroutine; they must not block. Deferred
// subscribers are queued and run on whichever goroutine calls Flush, which
// the manager does from Update on the host goroutine.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	immediate map[int]Handler
	deferred  map[int]Handler
	order     []int
	pending   []Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		immediate: make(map[int]Handler),
		deferred:  make(map[int]Handler),
	}
}

// Subscribe registers h for immediate delivery. The returned function
// removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	return b.add(h, false)
}

// SubscribeDeferred registers h for delivery inside Flush. The returned
// function removes it.
func (b *Bus) SubscribeDeferred(h Handler) (unsubscribe func()) {
	return b.add(h, true)
}

func (b *Bus) add(h Handler, deferred bool) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if deferred {
		b.deferred[id] = h
	} else {
		b.immediate[id] = h
	}
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.immediate, id)
	delete(b.deferred, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// handlers returns the handlers of one kind in subscription order.
// Caller holds mu.
func (b *Bus) handlers(set map[int]Handler) []Handler {
	out := make([]Handler, 0, len(set))
	for _, id := range b.order {
		if h, ok := set[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Publish delivers ev to immediate subscribers now and queues it for
// deferred subscribers. Events are not queued when nobody subscribed
// deferred.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	handlers := b.handlers(b.immediate)
	if len(b.deferred) > 0 {
		b.pending = append(b.pending, ev)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Flush delivers every queued event to the deferred subscribers, in
// publish order. It returns the number of events delivered.
func (b *Bus) Flush() int {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	handlers := b.handlers(b.deferred)
	b.mu.Unlock()

	for _, ev := range pending {
		for _, h := range handlers {
			h(ev)
		}
	}
	return len(pending)
}

// Pending returns the number of events waiting for Flush.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
