package xmpp

import (
	"errors"
	"fmt"
	"time"

	"github.com/meszmate/xmpplink/internal/logging"
	"github.com/meszmate/xmpplink/internal/stream"
	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

// Client is the entry point to the session layer. It opens sessions on a
// stream engine and addresses them by SessionID.
type Client struct {
	engine   stream.Engine
	registry *Registry
	handlers Handlers
	router   *router
	log      *logging.Logger
}

// ClientConfig contains configuration for the client
type ClientConfig struct {
	Engine   stream.Engine
	Handlers Handlers
	Logger   *logging.Logger
}

// NewClient creates a client. Init must be called before opening sessions.
func NewClient(cfg ClientConfig) *Client {
	registry := NewRegistry()
	return &Client{
		engine:   cfg.Engine,
		registry: registry,
		handlers: cfg.Handlers,
		router:   &router{registry: registry, log: cfg.Logger},
		log:      cfg.Logger,
	}
}

// Init initializes the stream engine. Call once at process start.
func (c *Client) Init() error {
	if err := c.engine.Init(); err != nil {
		return fmt.Errorf("failed to initialize stream engine: %w", err)
	}
	return nil
}

// Shutdown closes every live session and shuts the engine down. Call once
// at process end.
func (c *Client) Shutdown() error {
	var errs []error
	for _, id := range c.registry.IDs() {
		if err := c.Close(id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.engine.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down stream engine: %w", err))
	}
	return errors.Join(errs...)
}

// Open starts connecting to the server for jid and returns the session
// identifier. password is zeroed before Open returns. An empty host
// resolves the server from the JID domain; port 0 means 5222.
func (c *Client) Open(jid string, password []byte, host string, port uint16) (SessionID, error) {
	s := &Session{
		jid:      jid,
		handlers: c.handlers,
		router:   c.router,
		log:      c.log,
	}
	creds := stream.Credentials{JID: jid, Password: password}
	if err := s.open(c.engine, c.registry, creds, host, port); err != nil {
		c.log.Error("failed to open session for %s: %v", jid, err)
		return 0, err
	}
	return s.id, nil
}

// Session returns the live session for id.
func (c *Client) Session(id SessionID) (*Session, error) {
	return c.registry.Lookup(id)
}

// Sessions returns the identifiers of all live sessions.
func (c *Client) Sessions() []SessionID {
	return c.registry.IDs()
}

// State returns the lifecycle state of a session.
func (c *Client) State(id SessionID) (State, error) {
	s, err := c.registry.Lookup(id)
	if err != nil {
		return 0, err
	}
	return s.State(), nil
}

// Close releases the session's handles and forgets it. Closing the same
// identifier twice fails with ErrDoubleClose.
func (c *Client) Close(id SessionID) error {
	s, err := c.registry.Lookup(id)
	if err != nil {
		if c.registry.Retired(id) {
			return fmt.Errorf("session %d: %w", id, ErrDoubleClose)
		}
		return err
	}
	c.registry.Remove(id)
	return s.close()
}

// Disconnect starts a graceful disconnect of a session.
func (c *Client) Disconnect(id SessionID) error {
	s, err := c.registry.Lookup(id)
	if err != nil {
		return err
	}
	return s.Disconnect()
}

// Pump runs a session's event loop once, waiting at most timeout.
func (c *Client) Pump(id SessionID, timeout time.Duration) error {
	s, err := c.registry.Lookup(id)
	if err != nil {
		return err
	}
	return s.Pump(timeout)
}

// SendMessage sends a message from a connected session.
func (c *Client) SendMessage(id SessionID, to, body string, opts ...stanza.MessageOption) error {
	s, err := c.registry.Lookup(id)
	if err != nil {
		return err
	}
	return s.SendMessage(to, body, opts...)
}

// RequestRoster asks a connected session's server for the roster.
func (c *Client) RequestRoster(id SessionID) error {
	s, err := c.registry.Lookup(id)
	if err != nil {
		return err
	}
	return s.RequestRoster()
}
