package ecs

// Registry tracks the component stores an entity's data may live in.
type Registry struct {
	stores []Removable
}

func NewRegistry() *Registry {
	return &Registry{stores: make([]Removable, 0, 8)}
}

func (r *Registry) Register(store Removable) {
	r.stores = append(r.stores, store)
}

func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.Remove(id)
	}
}

// NewStore creates a component store already registered with r.
func NewStore[T any](r *Registry) *PtrComponentStore[T] {
	s := NewPtrComponentStore[T]()
	r.Register(s)
	return s
}
