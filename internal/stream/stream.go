// Package stream defines the boundary between the session layer and the
// engine that owns sockets, TLS, SASL and XML parsing.
//
// An engine hands out Contexts, each with its own cooperative event loop.
// Nothing is delivered until the owner pumps the loop with RunOnce, and
// every handler registered on a Context's connections runs synchronously
// inside that call.
package stream

import (
	"errors"
	"sync"
	"time"

	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

// DefaultPort is used when a connection is opened with port 0.
const DefaultPort = 5222

var (
	// ErrReleased is returned when a handle is released or used after
	// release. Release is not idempotent.
	ErrReleased = errors.New("handle already released")

	// ErrNotInitialized is returned by engines used before Init.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrNotConnected is returned by Send before the stream is ready.
	ErrNotConnected = errors.New("stream not connected")
)

// Status is a connection event reported by the engine.
type Status int

const (
	StatusConnect Status = iota
	StatusDisconnect
	StatusFail
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusConnect:
		return "connect"
	case StatusDisconnect:
		return "disconnect"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// StatusHandler receives every connection event. err carries the engine's
// error detail and may be nil.
type StatusHandler func(status Status, err error)

// StanzaHandler receives an inbound stanza. Returning false unregisters the
// handler.
type StanzaHandler func(el *stanza.Element) bool

// Credentials are handed to Connect. The engine copies what it needs; the
// caller clears its copy once Connect returns.
type Credentials struct {
	JID      string
	Password []byte
}

// Clear zeroes the password in place.
func (c *Credentials) Clear() {
	for i := range c.Password {
		c.Password[i] = 0
	}
	c.Password = nil
}

// Engine is the process wide stream library. Init and Shutdown are each
// called once, at process start and end.
type Engine interface {
	Init() error
	Shutdown() error
	NewContext() (Context, error)
}

// Context owns an event loop and the connections created from it.
type Context interface {
	NewConn() (Conn, error)

	// RunOnce delivers pending events, waiting at most timeout for the
	// first one. It returns immediately once the loop is stopped.
	RunOnce(timeout time.Duration)
	Stop()
	Stopped() bool
	Release() error
}

// Conn is a single client connection.
type Conn interface {
	// Connect starts connecting in the background. An error means the
	// attempt was rejected outright and no status will be reported.
	Connect(creds Credentials, host string, port uint16, h StatusHandler) error
	Send(el *stanza.Element) error

	// HandleMessages registers h for every inbound message stanza.
	HandleMessages(h StanzaHandler)

	// HandleID registers h for the next inbound stanza whose id matches.
	HandleID(id string, h StanzaHandler)

	Disconnect() error
	Release() error
}

// Handlers is the handler table kept by a connection. It is safe to
// register handlers from inside a running handler.
type Handlers struct {
	mu       sync.Mutex
	ids      map[string]StanzaHandler
	messages []*messageHandler
}

type messageHandler struct {
	fn StanzaHandler
}

// AddMessage registers a message handler.
func (t *Handlers) AddMessage(h StanzaHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, &messageHandler{fn: h})
}

// AddID registers a handler for the given stanza id, replacing any handler
// already waiting on it.
func (t *Handlers) AddID(id string, h StanzaHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ids == nil {
		t.ids = make(map[string]StanzaHandler)
	}
	t.ids[id] = h
}

// Reset drops every handler.
func (t *Handlers) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids = nil
	t.messages = nil
}

// Dispatch routes an inbound stanza to the handler waiting on its id and,
// for messages, to every message handler in registration order.
func (t *Handlers) Dispatch(el *stanza.Element) {
	t.mu.Lock()
	id := el.ID()
	var idHandler StanzaHandler
	hasID := false
	if id != "" {
		idHandler, hasID = t.ids[id]
		delete(t.ids, id)
	}
	var messages []*messageHandler
	if el.Name.Local == "message" {
		messages = append(messages, t.messages...)
	}
	t.mu.Unlock()

	if hasID && idHandler(el) {
		t.mu.Lock()
		if _, taken := t.ids[id]; !taken {
			if t.ids == nil {
				t.ids = make(map[string]StanzaHandler)
			}
			t.ids[id] = idHandler
		}
		t.mu.Unlock()
	}

	for _, m := range messages {
		if m.fn(el) {
			continue
		}
		t.remove(m)
	}
}

func (t *Handlers) remove(m *messageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, h := range t.messages {
		if h == m {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return
		}
	}
}
