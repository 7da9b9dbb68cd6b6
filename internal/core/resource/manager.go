package resource

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the handle's slot is empty: the resource was removed
	// or the slot was never allocated.
	ErrNotFound = errors.New("resource not found")
	// ErrHandleFreed means the slot was reissued to a newer resource.
	ErrHandleFreed = errors.New("resource handle freed")
)

// ResourceManager hands out generational handles to values of type T.
//
// Public handles index into an indirection allocator whose entries point at
// the value slot and remember the generation they were issued with. Value
// storage can therefore be compacted later without invalidating handles.
type ResourceManager[T any] struct {
	index      *SparseArrayAllocator[HandleIndex]
	values     *SparseArrayAllocator[T]
	generation uint32
}

func NewResourceManager[T any]() *ResourceManager[T] {
	return NewResourceManagerWithCapacity[T](0)
}

func NewResourceManagerWithCapacity[T any](capacity int) *ResourceManager[T] {
	return &ResourceManager[T]{
		index:  NewSparseArrayAllocatorWithCapacity[HandleIndex](capacity),
		values: NewSparseArrayAllocatorWithCapacity[T](capacity),
	}
}

// Insert stores v under a fresh generation and returns its handle. It panics
// when every index up to IndexMask is taken.
func (m *ResourceManager[T]) Insert(v T) Handle[T] {
	if i := max(m.values.next(), m.index.next()); i > IndexMask {
		panic(fmt.Sprintf("resource: index %d exceeds handle capacity %d", i, IndexMask+1))
	}
	m.generation++
	if m.generation > GenerationMax {
		m.generation = 1
	}
	gen := uint16(m.generation)
	valueIdx := m.values.Allocate(v)
	slotIdx := m.index.Allocate(NewHandleIndex(uint32(valueIdx), gen))
	return HandleOf[T](NewHandleIndex(uint32(slotIdx), gen))
}

// resolve validates h and returns the value slot it points at.
func (m *ResourceManager[T]) resolve(h Handle[T]) (int, error) {
	entry, ok := m.index.Get(int(h.Slot()))
	if !ok {
		return 0, fmt.Errorf("handle %s: %w", h, ErrNotFound)
	}
	if entry.Generation() != h.Generation() {
		return 0, fmt.Errorf("handle %s (slot now at generation %d): %w", h, entry.Generation(), ErrHandleFreed)
	}
	return int(entry.Index()), nil
}

func (m *ResourceManager[T]) Get(h Handle[T]) (T, error) {
	p, err := m.GetPtr(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return *p, nil
}

// GetPtr returns a pointer to the stored value. The pointer is only valid
// while the caller holds the manager exclusively and until the next Insert.
func (m *ResourceManager[T]) GetPtr(h Handle[T]) (*T, error) {
	valueIdx, err := m.resolve(h)
	if err != nil {
		return nil, err
	}
	p, ok := m.values.GetPtr(valueIdx)
	if !ok {
		panic(fmt.Sprintf("resource: handle %s indexes empty value slot %d", h, valueIdx))
	}
	return p, nil
}

// Contains reports whether h still refers to a live resource.
func (m *ResourceManager[T]) Contains(h Handle[T]) bool {
	_, err := m.resolve(h)
	return err == nil
}

// Remove frees the value and its indirection slot and returns the value.
func (m *ResourceManager[T]) Remove(h Handle[T]) (T, error) {
	var zero T
	valueIdx, err := m.resolve(h)
	if err != nil {
		return zero, err
	}
	v, err := m.values.Free(valueIdx)
	if err != nil {
		panic(fmt.Sprintf("resource: handle %s indexes empty value slot %d", h, valueIdx))
	}
	if _, err := m.index.Free(int(h.Slot())); err != nil {
		return zero, fmt.Errorf("handle %s: %w", h, err)
	}
	return v, nil
}

// Generation returns the last generation issued.
func (m *ResourceManager[T]) Generation() uint32 { return m.generation }

func (m *ResourceManager[T]) Len() int { return m.index.Len() }

// Each visits every live resource with the handle that currently names it.
func (m *ResourceManager[T]) Each(fn func(Handle[T], *T)) {
	m.index.Each(func(slotIdx int, entry *HandleIndex) {
		p, ok := m.values.GetPtr(int(entry.Index()))
		if !ok {
			return
		}
		fn(HandleOf[T](NewHandleIndex(uint32(slotIdx), uint16(entry.Generation()))), p)
	})
}
