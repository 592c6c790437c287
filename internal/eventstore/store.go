// Package eventstore keeps the ordered, keyed set of market events fed by the
// live stream.
package eventstore

import (
	"sync"

	"github.com/alanyoungcy/fortune/internal/domain"
)

// ChangeKind tells listeners which mutation produced a change notification.
type ChangeKind int

const (
	ChangeReplaced ChangeKind = iota + 1
	ChangeUpdated
	ChangeAppended
)

// Change is delivered to listeners after every mutation.
type Change struct {
	Kind  ChangeKind
	Event domain.MarketEvent // zero for ChangeReplaced
	Len   int
}

// Listener observes store mutations. It is called synchronously, in the order
// mutations were applied, without the store lock held. Listeners may read
// the store but must not mutate it.
type Listener func(Change)

// Store is an ordered collection of market events keyed by ID. Upserts keep
// the position of existing entries and append unseen ones at the end.
type Store struct {
	mu     sync.RWMutex
	events []domain.MarketEvent
	index  map[string]int

	notifyMu  sync.Mutex
	listeners []Listener
}

// New returns an empty Store.
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// Replace swaps the entire contents for events, in the given order. When the
// sequence repeats an ID the last occurrence wins and keeps the first position.
func (s *Store) Replace(events []domain.MarketEvent) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.events = make([]domain.MarketEvent, 0, len(events))
	s.index = make(map[string]int, len(events))
	for _, ev := range events {
		if i, ok := s.index[ev.ID]; ok {
			s.events[i] = ev
			continue
		}
		s.index[ev.ID] = len(s.events)
		s.events = append(s.events, ev)
	}
	n := len(s.events)
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeReplaced, Len: n})
}

// Upsert replaces the event with the same ID in place, or appends it.
func (s *Store) Upsert(ev domain.MarketEvent) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	kind := ChangeUpdated
	s.mu.Lock()
	if i, ok := s.index[ev.ID]; ok {
		s.events[i] = ev
	} else {
		kind = ChangeAppended
		s.index[ev.ID] = len(s.events)
		s.events = append(s.events, ev)
	}
	n := len(s.events)
	s.mu.Unlock()

	s.emit(Change{Kind: kind, Event: ev, Len: n})
}

// Snapshot returns a copy of the events in store order.
func (s *Store) Snapshot() []domain.MarketEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MarketEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Get returns the event with the given ID.
func (s *Store) Get(id string) (domain.MarketEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.MarketEvent{}, false
	}
	return s.events[i], true
}

// Len returns the number of events held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.notifyMu.Lock()
	s.listeners = append(s.listeners, l)
	idx := len(s.listeners) - 1
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.notifyMu.Lock()
			defer s.notifyMu.Unlock()
			s.listeners[idx] = nil
		})
	}
}

// emit calls every live listener. Caller must hold notifyMu.
func (s *Store) emit(c Change) {
	for _, l := range s.listeners {
		if l != nil {
			l(c)
		}
	}
}
