package events

import (
	"log/slog"
	"sync"
)

type Handler func(Event)

// Publisher is the emitting side of a Bus.
type Publisher interface {
	Publish(Event)
}

// Bus fans events out to subscribers synchronously, on the publishing
// goroutine, in subscription order. Handlers must not block.
type Bus struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	order    []uint64
	next     uint64
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[uint64]Handler)}
}

var _ Publisher = (*Bus)(nil)

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.handlers[id] = h
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, o := range b.order {
				if o == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "event", e, "panic", r)
		}
	}()
	h(e)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}
