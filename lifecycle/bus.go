// Package lifecycle is the named-callback registry the core uses to notify
// host code of milestones (ready, form states, product changes).
package lifecycle

import "sync"

type Handler func(payload interface{})

// Bus fans an emitted event out to every handler registered under its name.
// Handlers run synchronously in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

func (b *Bus) On(name string, h Handler) {
	b.mu.Lock()
	b.handlers[name] = append(b.handlers[name], h)
	b.mu.Unlock()
}

func (b *Bus) Off(name string) {
	b.mu.Lock()
	delete(b.handlers, name)
	b.mu.Unlock()
}

func (b *Bus) Emit(name string, payload interface{}) {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers[name]))
	copy(hs, b.handlers[name])
	b.mu.RUnlock()

	for _, h := range hs {
		h(payload)
	}
}
