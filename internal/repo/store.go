// Package repo provides the in-memory keyed store the domain repositories are
// built on.
package repo

import (
	"reflect"
	"sync"
)

// Store is a concurrency safe map. Writers are expected to be the single
// in-order event pipeline of an account; readers may come from anywhere.
type Store[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
	equal func(a, b V) bool
}

// NewStore creates an empty store. equal decides whether Set changed a value;
// nil falls back to reflect.DeepEqual.
func NewStore[K comparable, V any](equal func(a, b V) bool) *Store[K, V] {
	if equal == nil {
		equal = func(a, b V) bool { return reflect.DeepEqual(a, b) }
	}
	return &Store[K, V]{
		items: make(map[K]V),
		equal: equal,
	}
}

// Get returns the value stored under id.
func (s *Store[K, V]) Get(id K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[id]
	return v, ok
}

// Set stores v and reports whether anything changed.
func (s *Store[K, V]) Set(id K, v V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.items[id]; ok && s.equal(old, v) {
		return false
	}
	s.items[id] = v
	return true
}

// Update runs mutate on the value stored under id, or on the zero value if
// there is none. The result is stored only if mutate reports a change.
// mutate runs under the write lock and must not block.
func (s *Store[K, V]) Update(id K, mutate func(v *V) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.items[id]
	if !mutate(&v) {
		return false
	}
	s.items[id] = v
	return true
}

// UpdateExisting is like Update but does nothing if id is unknown.
func (s *Store[K, V]) UpdateExisting(id K, mutate func(v *V) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items[id]
	if !ok || !mutate(&v) {
		return false
	}
	s.items[id] = v
	return true
}

// Delete removes id and reports whether it was present.
func (s *Store[K, V]) Delete(id K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}

// DeleteFunc removes every entry for which match returns true and returns
// the removed keys.
func (s *Store[K, V]) DeleteFunc(match func(id K, v V) bool) []K {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []K
	for id, v := range s.items {
		if match(id, v) {
			delete(s.items, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// All returns a copy of the stored entries.
func (s *Store[K, V]) All() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[K]V, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

// Len returns the number of entries.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear removes all entries.
func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[K]V)
}
