// Package signal provides a small observable value with change subscriptions.
package signal

import "sync"

// Value holds a comparable value and notifies subscribers when it changes.
type Value[T comparable] struct {
	mu   sync.Mutex
	v    T
	next int
	subs map[int]func(T)
}

// New returns a Value initialized to initial.
func New[T comparable](initial T) *Value[T] {
	return &Value[T]{v: initial, subs: make(map[int]func(T))}
}

// Get returns the current value.
func (s *Value[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

// Set stores v and notifies subscribers if it differs from the current value.
// It reports whether the value changed.
func (s *Value[T]) Set(v T) bool {
	s.mu.Lock()
	if s.v == v {
		s.mu.Unlock()
		return false
	}
	s.v = v
	subs := s.snapshot()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
	return true
}

// Subscribe calls fn with the current value and then on every change.
// The returned function removes the subscription.
func (s *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	current := s.v
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// snapshot returns subscribers in registration order. Callers hold s.mu.
func (s *Value[T]) snapshot() []func(T) {
	out := make([]func(T), 0, len(s.subs))
	for id := 0; id < s.next; id++ {
		if fn, ok := s.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
