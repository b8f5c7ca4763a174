package engine

import "sync"

type EventType int

// Event is one in-process notification with a typed payload.
type Event struct {
	Type    EventType
	Payload any
}

type Handler func(Event)

// EventBus is a synchronous in-process pub/sub. Handlers run on the emitting
// goroutine; anything slow (broker publishes, HTTP) goes through the outbox
// instead of blocking here.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers a handler for every event type.
func (b *EventBus) Subscribe(fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, fn)
}

// SubscribeTypes registers a handler for specific event types.
func (b *EventBus) SubscribeTypes(fn Handler, types ...EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], fn)
	}
}

func (b *EventBus) Emit(evt Event) {
	b.mu.RLock()
	typed := b.handlers[evt.Type]
	all := b.all
	b.mu.RUnlock()

	for _, fn := range typed {
		fn(evt)
	}
	for _, fn := range all {
		fn(evt)
	}
}
