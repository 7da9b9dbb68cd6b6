package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered event bus. Events emitted during tick N are
// delivered by DispatchAll in tick N+1, after SwapBuffers.
type Bus struct {
	mu       sync.Mutex // guards handler registration
	front    map[reflect.Type][]any
	back     map[reflect.Type][]any
	handlers map[reflect.Type][]func(any)
	known    map[reflect.Type]struct{}
	order    []reflect.Type
}

func NewBus() *Bus {
	return &Bus{
		front:    make(map[reflect.Type][]any),
		back:     make(map[reflect.Type][]any),
		handlers: make(map[reflect.Type][]func(any)),
		known:    make(map[reflect.Type]struct{}),
	}
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Emit queues an event into the back buffer.
func Emit[T any](b *Bus, event T) {
	t := typeKey[T]()
	if _, ok := b.known[t]; !ok {
		b.known[t] = struct{}{}
		b.order = append(b.order, t)
	}
	b.back[t] = append(b.back[t], event)
}

// Subscribe registers a handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := typeKey[T]()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers makes last tick's events readable and clears the back buffer.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front
	for k := range b.back {
		b.back[k] = b.back[k][:0]
	}
}

// DispatchAll delivers front-buffer events to their handlers. Event types
// are visited in the order they were first emitted.
func (b *Bus) DispatchAll() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.order {
		events := b.front[t]
		for _, ev := range events {
			for _, h := range b.handlers[t] {
				h(ev)
			}
		}
		n += len(events)
	}
	return n
}

// Pending reports how many events wait in the back buffer.
func (b *Bus) Pending() int {
	n := 0
	for _, events := range b.back {
		n += len(events)
	}
	return n
}
