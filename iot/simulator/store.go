package simulator

import (
	"sort"
	"sync"
)

// Store holds one state record per device id. The map is safe for concurrent use. A record
// returned by Get is mutated in place by the cycle of its device, so at most one cycle per
// device may be in flight.
type Store[S any] struct {
	mu     sync.RWMutex
	states map[string]*S
}

// NewStore returns an empty store
func NewStore[S any]() *Store[S] {
	return &Store[S]{states: make(map[string]*S)}
}

// Get returns the record of id
func (s *Store[S]) Get(id string) (*S, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[id]
	return state, ok
}

// GetOrCreate returns the record of id, creating it from init if there is none. created is
// true if the record was created.
func (s *Store[S]) GetOrCreate(id string, init func() S) (state *S, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[id]; ok {
		return state, false
	}
	v := init()
	s.states[id] = &v
	return &v, true
}

// Put replaces the record of id
func (s *Store[S]) Put(id string, state S) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = &state
}

// Delete removes the record of id
func (s *Store[S]) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
}

// Len returns the number of records
func (s *Store[S]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// IDs returns the sorted ids of all records
func (s *Store[S]) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
