package bus

import (
	"log/slog"
	"sync"
)

type Handler func(payload any)

// Bus is a synchronous in-process publish point for state-change
// notifications. Publish invokes subscribers in subscription order; a panic
// in one subscriber is recovered and logged, never propagated to the
// publisher or allowed to skip the remaining subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]Handler
	logger *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	return &Bus{subs: make(map[string][]Handler), logger: logger}
}

// Subscribe registers a handler for an event name. Registration is
// expected once at startup; there is no unsubscribe.
func (b *Bus) Subscribe(event string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subs[event] = append(b.subs[event], h)
	b.mu.Unlock()
}

func (b *Bus) Publish(event string, payload any) {
	b.mu.RLock()
	handlers := b.subs[event]
	b.mu.RUnlock()
	for _, h := range handlers {
		b.invoke(event, h, payload)
	}
}

func (b *Bus) invoke(event string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("event subscriber panicked", "event", event, "panic", r)
		}
	}()
	h(payload)
}
