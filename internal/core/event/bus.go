package event

import (
	"reflect"
	"sync"
)

type envelope struct {
	t  reflect.Type
	ev any
}

// Bus is a double-buffered event bus. Events emitted in tick N are readable
// in tick N+1, in emission order across all event types. SwapBuffers() is
// called at tick start by the FeedSystem. Emit and DispatchAll belong to the
// game loop goroutine.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    []envelope
	back     []envelope
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]func(any))}
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Emit queues an event into the back buffer (will be readable next tick).
func Emit[T any](b *Bus, event T) {
	b.back = append(b.back, envelope{t: typeKey[T](), ev: event})
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := typeKey[T]()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers rotates back→front and clears the new back buffer.
func (b *Bus) SwapBuffers() {
	clear(b.front)
	b.front, b.back = b.back, b.front[:0]
}

// Pending returns the number of events waiting in the back buffer.
func (b *Bus) Pending() int { return len(b.back) }

// DispatchAll delivers all front-buffer events to their subscribed handlers.
// Events emitted by a handler land in the back buffer.
func (b *Bus) DispatchAll() {
	b.mu.Lock()
	handlers := make(map[reflect.Type][]func(any), len(b.handlers))
	for t, hs := range b.handlers {
		handlers[t] = hs
	}
	b.mu.Unlock()

	for _, e := range b.front {
		for _, h := range handlers[e.t] {
			h(e.ev)
		}
	}
}
