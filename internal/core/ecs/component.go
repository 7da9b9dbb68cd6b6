package ecs

// Removable is what the Registry needs to strip a destroyed entity from a
// store whose component type it does not know.
type Removable interface {
	Remove(id EntityID)
}

// PtrComponentStore keeps at most one *T per entity. Components are held by
// pointer, so systems mutate them in place through Get or Each.
type PtrComponentStore[T any] struct {
	data map[EntityID]*T
}

func NewPtrComponentStore[T any]() *PtrComponentStore[T] {
	return &PtrComponentStore[T]{data: make(map[EntityID]*T, 64)}
}

// Set attaches c to id, replacing any component already there.
func (s *PtrComponentStore[T]) Set(id EntityID, c *T) { s.data[id] = c }

func (s *PtrComponentStore[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *PtrComponentStore[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

// Remove detaches the component of id. Removing a missing one is a no-op.
func (s *PtrComponentStore[T]) Remove(id EntityID) { delete(s.data, id) }

func (s *PtrComponentStore[T]) Len() int { return len(s.data) }

// Each visits every attached component. Order is unspecified; fn must not
// add or remove components.
func (s *PtrComponentStore[T]) Each(fn func(EntityID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}
