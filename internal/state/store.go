package state

import (
	"sync"
)

// Observer receives every committed snapshot. Notify is called while the
// store lock is held, so it must not call back into the store.
type Observer interface {
	Notify(TunnelState)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(TunnelState)

func (f ObserverFunc) Notify(s TunnelState) { f(s) }

// Store serializes all mutations of the tunnel state behind one lock and
// publishes the result before the lock is released, so observers see
// updates in commit order.
type Store struct {
	mu        sync.Mutex
	state     TunnelState
	observers []Observer
	subs      map[uint64]chan TunnelState
	nextSub   uint64
}

func New(observers ...Observer) *Store {
	return &Store{
		state:     Default(),
		observers: observers,
		subs:      make(map[uint64]chan TunnelState),
	}
}

// AddObserver registers o for all subsequent updates.
func (s *Store) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Update applies fn to a copy of the current state. If fn returns an error
// nothing is committed or published; otherwise the copy replaces the state
// and is published synchronously.
func (s *Store) Update(fn func(*TunnelState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if next.Logs == nil {
		next.Logs = []string{}
	}
	s.state = next
	s.publish()
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() TunnelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe returns a channel that receives the current snapshot followed
// by every later one. Slow subscribers miss snapshots rather than block
// the store.
func (s *Store) Subscribe() (uint64, <-chan TunnelState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub
	ch := make(chan TunnelState, 64)
	ch <- s.state.Clone()
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe closes and removes the subscription.
func (s *Store) Unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) publish() {
	for _, o := range s.observers {
		o.Notify(s.state.Clone())
	}
	for _, ch := range s.subs {
		select {
		case ch <- s.state.Clone():
		default:
		}
	}
}
