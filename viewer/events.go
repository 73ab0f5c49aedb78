package viewer

import "sync"

// Event topics published by a viewer instance. Each instance has its own bus;
// nothing is broadcast process-wide.
const (
	EventPageChanged       = "page-changed"
	EventScaleChanged      = "scale-changed"
	EventLoadProgress      = "load-progress"
	EventLoadComplete      = "load-complete"
	EventLoadError         = "load-error"
	EventInstanceDestroyed = "instance-destroyed"
)

// EventHandler receives the payload published for a topic
type EventHandler func(payload any)

type subscription struct {
	id      int
	handler EventHandler
}

// Bus is a minimal per-instance publish/subscribe hub. Publishing after
// Destroy is a silent no-op so teardown never races a late render completion
// into a dead listener.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	handlers  map[string][]subscription
	destroyed bool
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]subscription)}
}

// Subscribe registers a handler for a topic. Returns an unsubscribe func.
func (b *Bus) Subscribe(topic string, handler EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return func() {}
	}

	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[topic]
		for i, sub := range subs {
			if sub.id == id {
				b.handlers[topic] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the payload to every handler subscribed to the topic,
// synchronously and in subscription order
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	subs := append([]subscription(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.handler(payload)
	}
}

// Destroy drops every subscription and refuses further publishes
func (b *Bus) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = true
	b.handlers = make(map[string][]subscription)
}
