package xmpp

import (
	"github.com/meszmate/xmpplink/internal/logging"
	"github.com/meszmate/xmpplink/internal/stream"
	"github.com/meszmate/xmpplink/internal/xmpp/roster"
	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

// Message is an inbound message delivered to the consumer.
type Message struct {
	Type string
	From string
	Body string
}

// Handlers receive session events. Every callback carries the session
// identifier returned by Open. Nil callbacks are skipped.
//
// Callbacks run on the goroutine pumping the session.
type Handlers struct {
	OnMessage func(id SessionID, msg Message)
	OnStatus  func(id SessionID, state State, err error)
	OnRoster  func(id SessionID, contacts []roster.Contact, err error)
}

// EventKind is the classification of an inbound message stanza.
type EventKind int

const (
	EventIgnore EventKind = iota
	EventMessage
)

// String returns the string representation of the kind
func (k EventKind) String() string {
	if k == EventMessage {
		return "message"
	}
	return "ignore"
}

// Classify decides whether an inbound message stanza reaches the consumer.
// Stanzas without a body (chat states, receipts) and error messages are
// ignored.
func Classify(el *stanza.Element) EventKind {
	if el == nil || el.Child("body") == nil {
		return EventIgnore
	}
	if t, ok := el.Attr("type"); ok && t == stanza.ErrorMessage {
		return EventIgnore
	}
	return EventMessage
}

func messageFrom(el *stanza.Element) Message {
	return Message{
		Type: el.Type(),
		From: el.AttrValue("from"),
		Body: el.Child("body").Text,
	}
}

// router builds the engine callbacks for a session. The callbacks capture
// only the session identifier and resolve the session through the registry
// each time, so a late callback for a closed session is dropped.
type router struct {
	registry *Registry
	log      *logging.Logger
}

func (r *router) lookup(id SessionID, what string) *Session {
	s, err := r.registry.Lookup(id)
	if err != nil {
		r.log.Warn("dropping %s: %v", what, err)
		return nil
	}
	return s
}

func (r *router) statusHandler(id SessionID) stream.StatusHandler {
	return func(status stream.Status, err error) {
		if s := r.lookup(id, "status "+status.String()); s != nil {
			s.handleStatus(status, err)
		}
	}
}

// messageHandler stays registered for the life of the connection.
func (r *router) messageHandler(id SessionID) stream.StanzaHandler {
	return func(el *stanza.Element) bool {
		if Classify(el) == EventIgnore {
			r.log.Debug("session %d: ignoring message from %q", id, el.AttrValue("from"))
			return true
		}
		if s := r.lookup(id, "message"); s != nil {
			s.deliverMessage(messageFrom(el))
		}
		return true
	}
}

// rosterHandler fires once for the result of a single roster request.
// Other stanzas that happen to carry the request id leave it registered.
func (r *router) rosterHandler(id SessionID) stream.StanzaHandler {
	return func(el *stanza.Element) bool {
		if !roster.IsResponse(el) {
			r.log.Debug("session %d: ignoring <%s> carrying roster id %q", id, el.Name.Local, el.ID())
			return true
		}
		contacts, err := roster.Parse(el)
		if s := r.lookup(id, "roster result"); s != nil {
			s.deliverRoster(contacts, err)
		}
		return false
	}
}
