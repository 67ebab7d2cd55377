// Package streamtest provides a scripted in-memory stream engine.
//
// Tests queue status reports and inbound stanzas on a Conn and then pump the
// owning Context, exactly as a real event loop would deliver them.
package streamtest

import (
	"sync"
	"time"

	"github.com/meszmate/xmpplink/internal/stream"
	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

// Engine is a fake stream.Engine. Set ConnectErr to make every Connect fail.
type Engine struct {
	mu          sync.Mutex
	ConnectErr  error
	initialized bool
	shutdown    bool
	contexts    []*Context
}

// New returns an initialized engine.
func New() *Engine {
	return &Engine{initialized: true}
}

// Init marks the engine ready.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = true
	e.shutdown = false
	return nil
}

// Shutdown marks the engine closed.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = false
	e.shutdown = true
	return nil
}

// IsShutdown reports whether Shutdown was called.
func (e *Engine) IsShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

// NewContext creates a fake event loop.
func (e *Engine) NewContext() (stream.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil, stream.ErrNotInitialized
	}
	ctx := &Context{engine: e, wake: make(chan struct{}, 1)}
	e.contexts = append(e.contexts, ctx)
	return ctx, nil
}

// Contexts returns every context created so far.
func (e *Engine) Contexts() []*Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Context(nil), e.contexts...)
}

// LastConn returns the most recently created connection, or nil.
func (e *Engine) LastConn() *Conn {
	ctxs := e.Contexts()
	for i := len(ctxs) - 1; i >= 0; i-- {
		if c := ctxs[i].Conn(); c != nil {
			return c
		}
	}
	return nil
}

// Context is a fake event loop. Events run only inside RunOnce.
type Context struct {
	engine   *Engine
	mu       sync.Mutex
	queue    []func()
	conn     *Conn
	stopped  bool
	releases int
	pumps    int
	wake     chan struct{}
}

// NewConn creates the context's connection.
func (c *Context) NewConn() (stream.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.releases > 0 {
		return nil, stream.ErrReleased
	}
	c.conn = &Conn{loop: c}
	return c.conn, nil
}

// Conn returns the connection created from this context.
func (c *Context) Conn() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Context) post(fn func()) {
	c.mu.Lock()
	c.queue = append(c.queue, fn)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// RunOnce runs every queued event in order. With an empty queue it waits up
// to timeout for something to be posted.
func (c *Context) RunOnce(timeout time.Duration) {
	c.mu.Lock()
	c.pumps++
	idle := len(c.queue) == 0 && !c.stopped
	c.mu.Unlock()

	if idle && timeout > 0 {
		timer := time.NewTimer(timeout)
		select {
		case <-c.wake:
		case <-timer.C:
		}
		timer.Stop()
	}

	for {
		c.mu.Lock()
		if c.stopped || len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		fn := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		fn()
	}
}

// Pending returns the number of queued events.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Pumps returns the number of RunOnce calls.
func (c *Context) Pumps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pumps
}

// Stop halts the loop.
func (c *Context) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

// Stopped reports whether Stop was called.
func (c *Context) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Release frees the context. Only the first call succeeds.
func (c *Context) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
	if c.releases > 1 {
		return stream.ErrReleased
	}
	return nil
}

// Releases returns how many times Release was called.
func (c *Context) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

// Conn is a fake connection that records everything sent through it.
type Conn struct {
	loop     *Context
	handlers stream.Handlers

	mu           sync.Mutex
	creds        stream.Credentials
	host         string
	port         uint16
	status       stream.StatusHandler
	connected    bool
	sent         []*stanza.Element
	disconnects  int
	releases     int
	passwordSeen string
}

// Connect records the target and keeps the status handler.
func (c *Conn) Connect(creds stream.Credentials, host string, port uint16, h stream.StatusHandler) error {
	if err := c.loop.engine.connectErr(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = stream.Credentials{JID: creds.JID}
	c.passwordSeen = string(creds.Password)
	c.host = host
	c.port = port
	c.status = h
	return nil
}

func (e *Engine) connectErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ConnectErr
}

// JID returns the jid given to Connect.
func (c *Conn) JID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds.JID
}

// PasswordSeen returns the password as it was when Connect was called.
func (c *Conn) PasswordSeen() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passwordSeen
}

// Target returns the host and port given to Connect.
func (c *Conn) Target() (string, uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host, c.port
}

// Send records el. Sending before a StatusConnect report fails.
func (c *Conn) Send(el *stanza.Element) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.releases > 0 {
		return stream.ErrReleased
	}
	if !c.connected {
		return stream.ErrNotConnected
	}
	c.sent = append(c.sent, el)
	return nil
}

// Sent returns every stanza sent so far.
func (c *Conn) Sent() []*stanza.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*stanza.Element(nil), c.sent...)
}

// HandleMessages registers a message handler.
func (c *Conn) HandleMessages(h stream.StanzaHandler) {
	c.handlers.AddMessage(h)
}

// HandleID registers an id handler.
func (c *Conn) HandleID(id string, h stream.StanzaHandler) {
	c.handlers.AddID(id, h)
}

// Disconnect counts the call; tests report the resulting status.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

// Disconnects returns how many times Disconnect was called.
func (c *Conn) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// Release frees the connection. Only the first call succeeds.
func (c *Conn) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
	if c.releases > 1 {
		return stream.ErrReleased
	}
	c.handlers.Reset()
	return nil
}

// Releases returns how many times Release was called.
func (c *Conn) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

// Report queues a status event for the next pump.
func (c *Conn) Report(status stream.Status, err error) {
	c.loop.post(func() {
		c.mu.Lock()
		c.connected = status == stream.StatusConnect
		h := c.status
		c.mu.Unlock()
		if h != nil {
			h(status, err)
		}
	})
}

// Inject queues an inbound stanza for the next pump.
func (c *Conn) Inject(el *stanza.Element) {
	c.loop.post(func() {
		c.handlers.Dispatch(el)
	})
}

// InjectRaw parses raw XML and queues it. It panics on malformed input.
func (c *Conn) InjectRaw(raw string) {
	el, err := stanza.Parse([]byte(raw))
	if err != nil {
		panic(err)
	}
	c.Inject(el)
}
