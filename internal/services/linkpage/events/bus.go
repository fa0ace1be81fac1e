// Package events broadcasts process-wide client signals.
package events

import "sync"

// Event names a broadcast signal.
type Event string

// SessionInvalidated is published when stored credentials were rejected and
// could not be refreshed.
const SessionInvalidated Event = "session.invalidated"

// Handler receives a published event.
type Handler func(Event)

type subscription struct {
	id      uint64
	event   Event
	handler Handler
}

// Bus delivers events synchronously to every current subscriber.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// NewBus creates a bus without subscribers.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for event and returns a function that removes
// it. The returned function is safe to call more than once.
func (b *Bus) Subscribe(event Event, handler Handler) func() {
	if b == nil || handler == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, event: event, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

// Publish calls the subscribers of event in subscription order.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.event == event {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}
