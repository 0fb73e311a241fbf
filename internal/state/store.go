// Package state tracks what a session has checked, received and printed,
// and saves that progress as a snapshot.
package state

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/apsession/client/internal/log"
	"github.com/apsession/client/internal/protocol"
)

// Stats are the store counters.
type Stats struct {
	LocationsChecked int64
	ItemsReceived    int64
}

// Store is the session's progress: the set of checked locations, the log of
// received items and the queue of undelivered messages.
//
// LocationsChecked always equals the size of the checked set and
// ItemsReceived always equals the length of the item log.
type Store struct {
	log zerolog.Logger

	mu       sync.Mutex
	checked  map[int64]struct{}
	items    []protocol.NetworkItem
	nChecked int64
	nItems   int64

	messages *MessageQueue
}

// NewStore creates an empty store with the default message capacity.
func NewStore() *Store {
	return NewStoreWithCapacity(DefaultMessageCapacity)
}

// NewStoreWithCapacity creates an empty store that keeps at most capacity
// undelivered messages.
func NewStoreWithCapacity(capacity int) *Store {
	return &Store{
		log:      log.Component("state"),
		checked:  make(map[int64]struct{}),
		messages: NewMessageQueue(capacity),
	}
}

// MarkLocationChecked records id. It reports whether id was new; marking an
// id twice leaves the counter unchanged.
func (s *Store) MarkLocationChecked(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checked[id]; ok {
		return false
	}
	s.checked[id] = struct{}{}
	s.nChecked++
	return true
}

// IsLocationChecked reports whether id has been checked.
func (s *Store) IsLocationChecked(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.checked[id]
	return ok
}

// FilterUnchecked returns the ids not yet checked, in input order and
// without duplicates.
func (s *Store) FilterUnchecked(ids []int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.checked[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// CheckedLocations returns the checked ids in ascending order.
func (s *Store) CheckedLocations() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkedLocked()
}

func (s *Store) checkedLocked() []int64 {
	out := make([]int64, 0, len(s.checked))
	for id := range s.checked {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// ClearCheckedLocations forgets every checked location.
func (s *Store) ClearCheckedLocations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked = make(map[int64]struct{})
	s.nChecked = 0
}

// AddReceivedItem appends item to the log. Duplicates are kept.
func (s *Store) AddReceivedItem(item protocol.NetworkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	s.nItems++
}

// ReceivedItems returns a copy of the item log in arrival order.
func (s *Store) ReceivedItems() []protocol.NetworkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// ClearReceivedItems empties the item log.
func (s *Store) ClearReceivedItems() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.nItems = 0
}

// Stats returns the counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{LocationsChecked: s.nChecked, ItemsReceived: s.nItems}
}

// AddMessage queues msg for the host, dropping the oldest message when the
// queue is full.
func (s *Store) AddMessage(msg protocol.Message) {
	if s.messages.Push(msg) {
		s.log.Debug().Int("capacity", s.messages.Capacity()).Msg("message queue full, dropped oldest")
	}
}

// HasPendingMessages reports whether a message is waiting.
func (s *Store) HasPendingMessages() bool {
	return s.messages.Len() > 0
}

// NextMessage pops the oldest message. The zero Message and false are
// returned when the queue is empty.
func (s *Store) NextMessage() (protocol.Message, bool) {
	return s.messages.Pop()
}

// DrainMessages pops every waiting message, oldest first.
func (s *Store) DrainMessages() []protocol.Message {
	return s.messages.Drain()
}

// PendingMessages returns the waiting messages without removing them.
func (s *Store) PendingMessages() []protocol.Message {
	return s.messages.Messages()
}

// ClearMessages drops every waiting message.
func (s *Store) ClearMessages() {
	s.messages.Clear()
}

// Update is the per-frame hook. The store has no time-based work yet.
func (s *Store) Update() {}
