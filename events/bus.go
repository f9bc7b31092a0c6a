package events

import (
	"slices"
	"sync"
)

// Handler receives the reason passed to Emit.
type Handler func(reason string)

// UnauthorizedBus carries "the backend rejected our credential" signals from
// the HTTP layer to whoever owns session state. Neither side holds a
// reference to the other.
//
// Dispatch is synchronous: Emit returns after every handler subscribed at
// the moment of the call has run exactly once.
type UnauthorizedBus struct {
	handlers map[uint64]Handler
	nextID   uint64
	lock     sync.RWMutex
}

func NewUnauthorizedBus() *UnauthorizedBus {
	return &UnauthorizedBus{
		handlers: make(map[uint64]Handler),
	}
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (b *UnauthorizedBus) Subscribe(fn Handler) (unsubscribe func()) {
	b.lock.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	b.lock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.lock.Lock()
			delete(b.handlers, id)
			b.lock.Unlock()
		})
	}
}

// Emit delivers reason to a snapshot of the current subscribers, in
// subscription order. Handlers may subscribe or unsubscribe while running;
// that only affects later emissions.
func (b *UnauthorizedBus) Emit(reason string) {
	for _, h := range b.snapshot() {
		h(reason)
	}
}

// Len returns the number of subscribers.
func (b *UnauthorizedBus) Len() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.handlers)
}

func (b *UnauthorizedBus) snapshot() []Handler {
	b.lock.RLock()
	defer b.lock.RUnlock()

	ids := make([]uint64, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	// ids are issued in increasing order
	slices.Sort(ids)

	out := make([]Handler, len(ids))
	for i, id := range ids {
		out[i] = b.handlers[id]
	}
	return out
}
