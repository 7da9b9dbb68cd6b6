package resource

import (
	"fmt"
	"reflect"
)

// HandleIndex packs a 20-bit slot index in the lower bits and a 12-bit
// generation in the upper bits. A generation of 0 is never issued, so the zero
// HandleIndex never validates against a live slot.
type HandleIndex uint32

const (
	IndexBits      = 20
	IndexMask      = 1<<IndexBits - 1
	generationMask = ^uint32(IndexMask)
	// GenerationMax is the largest generation before the counter wraps to 1.
	GenerationMax = generationMask >> IndexBits
)

func NewHandleIndex(index uint32, generation uint16) HandleIndex {
	return HandleIndex(uint32(generation)<<IndexBits | index&IndexMask)
}

func (h HandleIndex) Index() uint32      { return uint32(h) & IndexMask }
func (h HandleIndex) Generation() uint32 { return (uint32(h) & generationMask) >> IndexBits }
func (h HandleIndex) IsZero() bool       { return h == 0 }

func (h HandleIndex) String() string {
	return fmt.Sprintf("%d@%d", h.Index(), h.Generation())
}

// Handle is a typed weak reference into a ResourceManager[T]. It carries no
// ownership of the value: holders must tolerate the referent being gone.
type Handle[T any] struct {
	index HandleIndex
}

// HandleOf types a raw HandleIndex.
func HandleOf[T any](index HandleIndex) Handle[T] {
	return Handle[T]{index: index}
}

func (h Handle[T]) Index() HandleIndex { return h.index }
func (h Handle[T]) Slot() uint32       { return h.index.Index() }
func (h Handle[T]) Generation() uint32 { return h.index.Generation() }
func (h Handle[T]) IsZero() bool       { return h.index.IsZero() }
func (h Handle[T]) String() string     { return h.index.String() }
func (h Handle[T]) Any() AnyHandle     { return FromHandle(h) }

// AnyHandle is a Handle with the type parameter erased. The concrete type is
// kept at runtime so Downcast can refuse a mismatched target.
type AnyHandle struct {
	index HandleIndex
	typ   reflect.Type
}

func FromHandle[T any](h Handle[T]) AnyHandle {
	return AnyHandle{index: h.index, typ: typeOf[T]()}
}

// Downcast recovers the typed handle when a was created from a Handle[T].
func Downcast[T any](a AnyHandle) (Handle[T], bool) {
	if a.typ != typeOf[T]() {
		return Handle[T]{}, false
	}
	return Handle[T]{index: a.index}, true
}

func (a AnyHandle) Index() HandleIndex { return a.index }
func (a AnyHandle) Type() reflect.Type { return a.typ }

func (a AnyHandle) String() string {
	if a.typ == nil {
		return "<nil>" + a.index.String()
	}
	return a.typ.String() + ":" + a.index.String()
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
