package resource

import (
	"errors"

	"gopkg.in/eapache/queue.v1"
)

var ErrAlreadyFreed = errors.New("index already freed")

type slot[T any] struct {
	value T
	live  bool
}

// SparseArrayAllocator stores values in a dense slot slice. Freed slots go on
// a FIFO free list and are reused least-recently-freed first. Not safe for
// concurrent use; wrap the owning manager in Shared instead.
type SparseArrayAllocator[T any] struct {
	slots []slot[T]
	free  *queue.Queue
}

func NewSparseArrayAllocator[T any]() *SparseArrayAllocator[T] {
	return NewSparseArrayAllocatorWithCapacity[T](0)
}

func NewSparseArrayAllocatorWithCapacity[T any](capacity int) *SparseArrayAllocator[T] {
	return &SparseArrayAllocator[T]{
		slots: make([]slot[T], 0, capacity),
		free:  queue.New(),
	}
}

// Allocate stores v and returns its slot index.
func (a *SparseArrayAllocator[T]) Allocate(v T) int {
	var i int
	if a.free.Length() > 0 {
		i = a.free.Remove().(int)
	} else {
		a.slots = append(a.slots, slot[T]{})
		i = len(a.slots) - 1
	}
	a.slots[i] = slot[T]{value: v, live: true}
	return i
}

// next returns the index the following Allocate will use.
func (a *SparseArrayAllocator[T]) next() int {
	if a.free.Length() > 0 {
		return a.free.Peek().(int)
	}
	return len(a.slots)
}

// Free empties slot i and returns the value it held. Freeing an empty or
// out-of-range slot returns ErrAlreadyFreed and leaves the allocator untouched.
func (a *SparseArrayAllocator[T]) Free(i int) (T, error) {
	var zero T
	if i < 0 || i >= len(a.slots) || !a.slots[i].live {
		return zero, ErrAlreadyFreed
	}
	v := a.slots[i].value
	a.slots[i] = slot[T]{}
	a.free.Add(i)
	return v, nil
}

func (a *SparseArrayAllocator[T]) Get(i int) (T, bool) {
	if i < 0 || i >= len(a.slots) || !a.slots[i].live {
		var zero T
		return zero, false
	}
	return a.slots[i].value, true
}

// GetPtr returns a pointer into the slot. It stays valid until the next
// Allocate, which may grow the backing slice.
func (a *SparseArrayAllocator[T]) GetPtr(i int) (*T, bool) {
	if i < 0 || i >= len(a.slots) || !a.slots[i].live {
		return nil, false
	}
	return &a.slots[i].value, true
}

// Len returns the number of occupied slots.
func (a *SparseArrayAllocator[T]) Len() int {
	return len(a.slots) - a.free.Length()
}

// Cap returns the number of slots ever created, live or free.
func (a *SparseArrayAllocator[T]) Cap() int {
	return len(a.slots)
}

// Each visits occupied slots in index order.
func (a *SparseArrayAllocator[T]) Each(fn func(int, *T)) {
	for i := range a.slots {
		if a.slots[i].live {
			fn(i, &a.slots[i].value)
		}
	}
}
