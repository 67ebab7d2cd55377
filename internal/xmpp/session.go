package xmpp

import (
	"fmt"
	"sync"
	"time"

	"github.com/meszmate/xmpplink/internal/logging"
	"github.com/meszmate/xmpplink/internal/stream"
	"github.com/meszmate/xmpplink/internal/xmpp/roster"
	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

// State is the lifecycle state of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session owns one connection and its event loop. The two handles are
// acquired together in open and released together in Close.
type Session struct {
	id       SessionID
	jid      string
	handlers Handlers
	router   *router
	log      *logging.Logger

	mu        sync.Mutex
	state     State
	loop      stream.Context
	conn      stream.Conn
	closed    bool
	rosterSeq uint64
}

// ID returns the session identifier.
func (s *Session) ID() SessionID { return s.id }

// JID returns the account address the session was opened for.
func (s *Session) JID() string { return s.jid }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// open allocates both handles and starts connecting. On failure both
// handles are released and the session is left unregistered.
func (s *Session) open(engine stream.Engine, registry *Registry, creds stream.Credentials, host string, port uint16) error {
	defer creds.Clear()

	loop, err := engine.NewContext()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectInit, err)
	}
	conn, err := loop.NewConn()
	if err != nil {
		loop.Release()
		return fmt.Errorf("%w: %v", ErrConnectInit, err)
	}

	s.id = registry.Register(s)
	s.log = s.log.With(fmt.Sprintf("session=%d", s.id))

	s.mu.Lock()
	s.loop, s.conn = loop, conn
	s.state = StateConnecting
	s.mu.Unlock()

	if err := conn.Connect(creds, host, port, s.router.statusHandler(s.id)); err != nil {
		registry.forget(s.id)
		conn.Release()
		loop.Release()

		s.mu.Lock()
		s.loop, s.conn = nil, nil
		s.state = StateFailed
		s.closed = true
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrConnectInit, err)
	}

	s.log.Info("connecting as %s", s.jid)
	return nil
}

// handleStatus applies an engine status report. Every report produces
// exactly one status event.
func (s *Session) handleStatus(status stream.Status, err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	prev := s.state
	conn, loop := s.conn, s.loop

	switch {
	case status == stream.StatusConnect && prev == StateConnecting:
		s.state = StateConnected
	case status == stream.StatusConnect:
		s.log.Warn("unexpected connect report in state %s", prev)
		s.mu.Unlock()
		return
	case prev == StateConnecting, status == stream.StatusFail:
		s.state = StateFailed
	default:
		s.state = StateDisconnected
	}
	next := s.state
	s.mu.Unlock()

	if next == StateConnected {
		conn.HandleMessages(s.router.messageHandler(s.id))
		if err := conn.Send(stanza.Presence()); err != nil {
			s.log.Warn("failed to send initial presence: %v", err)
		}
	} else {
		loop.Stop()
	}

	if err != nil {
		s.log.Warn("%s -> %s: %v", prev, next, err)
	} else {
		s.log.Info("%s -> %s", prev, next)
	}
	if s.handlers.OnStatus != nil {
		s.handlers.OnStatus(s.id, next, err)
	}
}

func (s *Session) deliverMessage(msg Message) {
	s.log.Debug("message from %s (%s)", msg.From, msg.Type)
	if s.handlers.OnMessage != nil {
		s.handlers.OnMessage(s.id, msg)
	}
}

func (s *Session) deliverRoster(contacts []roster.Contact, err error) {
	if err != nil {
		s.log.Warn("roster request failed: %v", err)
	} else {
		s.log.Debug("roster with %d contacts", len(contacts))
	}
	if s.handlers.OnRoster != nil {
		s.handlers.OnRoster(s.id, contacts, err)
	}
}

// connected returns the connection if the session may send.
func (s *Session) connected() (stream.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("session %d: %w", s.id, ErrDoubleClose)
	}
	if s.state != StateConnected {
		return nil, fmt.Errorf("session %d is %s: %w", s.id, s.state, ErrNotConnected)
	}
	return s.conn, nil
}

// SendMessage sends a message. The type is "chat" unless overridden with
// stanza.WithType.
func (s *Session) SendMessage(to, body string, opts ...stanza.MessageOption) error {
	conn, err := s.connected()
	if err != nil {
		return err
	}
	msg, err := stanza.Message(to, body, opts...)
	if err != nil {
		return err
	}
	if err := conn.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// RequestRoster asks the server for the roster. The result arrives through
// Handlers.OnRoster. Each request carries its own id so overlapping
// requests are answered independently.
func (s *Session) RequestRoster() error {
	conn, err := s.connected()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.rosterSeq++
	id := fmt.Sprintf("%s-%d", stanza.RosterID, s.rosterSeq)
	s.mu.Unlock()

	conn.HandleID(id, s.router.rosterHandler(s.id))
	if err := conn.Send(stanza.RosterQueryID(id)); err != nil {
		return fmt.Errorf("failed to request roster: %w", err)
	}
	return nil
}

// Disconnect starts a graceful disconnect. The engine reports completion
// through the status handler.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session %d: %w", s.id, ErrDoubleClose)
	}
	prev := s.state
	if prev != StateConnected && prev != StateConnecting {
		s.mu.Unlock()
		return fmt.Errorf("session %d is %s: %w", s.id, prev, ErrNotConnected)
	}
	s.state = StateDisconnecting
	conn := s.conn
	s.mu.Unlock()

	if prev == StateConnected {
		if err := conn.Send(stanza.Unavailable()); err != nil {
			s.log.Debug("failed to send unavailable presence: %v", err)
		}
	}
	s.log.Info("%s -> %s", prev, StateDisconnecting)
	return conn.Disconnect()
}

// Pump runs the session's event loop once. Every callback for the session
// fires inside Pump.
func (s *Session) Pump(timeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session %d: %w", s.id, ErrDoubleClose)
	}
	loop := s.loop
	s.mu.Unlock()

	loop.RunOnce(timeout)
	return nil
}

// Stopped reports whether the event loop has stopped after a disconnect or
// failure. A stopped session only needs closing.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.loop.Stopped()
}

// close releases the connection and the context, in that order. A second
// call fails with ErrDoubleClose and releases nothing.
func (s *Session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session %d: %w", s.id, ErrDoubleClose)
	}
	s.closed = true
	conn, loop := s.conn, s.loop
	s.conn, s.loop = nil, nil
	s.mu.Unlock()

	var firstErr error
	if err := conn.Release(); err != nil {
		firstErr = fmt.Errorf("failed to release connection: %w", err)
	}
	if err := loop.Release(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to release context: %w", err)
	}
	s.log.Info("closed")
	return firstErr
}
