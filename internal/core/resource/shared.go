package resource

import "sync"

// Shared guards a ResourceManager with a RWMutex so the tick goroutine and
// readers in other goroutines can share it. Locks must not be held across
// blocking operations.
type Shared[T any] struct {
	mu  sync.RWMutex
	mgr *ResourceManager[T]
}

func NewShared[T any]() *Shared[T] {
	return &Shared[T]{mgr: NewResourceManager[T]()}
}

func (s *Shared[T]) Read(fn func(*ResourceManager[T])) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.mgr)
}

func (s *Shared[T]) Write(fn func(*ResourceManager[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.mgr)
}

// Get is a read-locked lookup returning a copy of the value.
func (s *Shared[T]) Get(h Handle[T]) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mgr.Get(h)
}

func (s *Shared[T]) Contains(h Handle[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mgr.Contains(h)
}

func (s *Shared[T]) Insert(v T) Handle[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mgr.Insert(v)
}

func (s *Shared[T]) Remove(h Handle[T]) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mgr.Remove(h)
}

func (s *Shared[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mgr.Len()
}
