package app

import (
	"sync"

	"github.com/meszmate/xmpplink/internal/xmpp"
	"github.com/meszmate/xmpplink/internal/xmpp/roster"
)

// EventType represents the type of event
type EventType int

const (
	EventStatus EventType = iota
	EventMessage
	EventRoster
)

// String returns the string representation of the event type
func (t EventType) String() string {
	switch t {
	case EventStatus:
		return "status"
	case EventMessage:
		return "message"
	case EventRoster:
		return "roster"
	default:
		return "unknown"
	}
}

// EventMsg represents an event from the app layer. Only the fields that
// belong to Type are set.
type EventMsg struct {
	Type     EventType
	Account  string
	Session  xmpp.SessionID
	State    xmpp.State
	Message  xmpp.Message
	Contacts []roster.Contact
	Err      error
}

// EventHandler is a function that handles events
type EventHandler func(event EventMsg)

type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus delivers events to subscribers synchronously, in subscription
// order, on the publishing goroutine. Events from one session therefore
// arrive in the order the session produced them.
type EventBus struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[EventType][]subscription
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe subscribes to an event type. The returned function removes the
// subscription.
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})
	return func() { b.remove(eventType, id) }
}

// SubscribeAll subscribes handler to every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) func() {
	cancels := []func(){
		b.Subscribe(EventStatus, handler),
		b.Subscribe(EventMessage, handler),
		b.Subscribe(EventRoster, handler),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (b *EventBus) remove(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish publishes an event to all subscribers
func (b *EventBus) Publish(event EventMsg) {
	b.mu.RLock()
	subs := b.handlers[event.Type]
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(event)
	}
}

// Unsubscribe removes all handlers for an event type
func (b *EventBus) Unsubscribe(eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, eventType)
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]subscription)
}
