// Package mellium implements the stream engine on top of mellium.im/xmpp.
//
// Network work happens on background goroutines. Their results are queued
// on the owning context and only reach handlers when the context is pumped.
package mellium

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mellium.im/sasl"
	"mellium.im/xmlstream"
	"mellium.im/xmpp"
	"mellium.im/xmpp/dial"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/xmpplink/internal/logging"
	"github.com/meszmate/xmpplink/internal/stream"
	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

const queueSize = 64

// Options tune the engine.
type Options struct {
	DialTimeout time.Duration
	TLSConfig   *tls.Config
	Logger      *logging.Logger
}

// Engine creates mellium backed contexts.
type Engine struct {
	opts        Options
	initialized atomic.Bool
}

// New creates an engine. Init must be called before use.
func New(opts Options) *Engine {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 30 * time.Second
	}
	return &Engine{opts: opts}
}

// Init prepares the engine.
func (e *Engine) Init() error {
	e.initialized.Store(true)
	return nil
}

// Shutdown stops the engine from handing out new contexts.
func (e *Engine) Shutdown() error {
	e.initialized.Store(false)
	return nil
}

// NewContext creates an event loop.
func (e *Engine) NewContext() (stream.Context, error) {
	if !e.initialized.Load() {
		return nil, stream.ErrNotInitialized
	}
	return &loop{
		engine: e,
		events: make(chan func(), queueSize),
		done:   make(chan struct{}),
	}, nil
}

type loop struct {
	engine   *Engine
	events   chan func()
	done     chan struct{}
	stopped  atomic.Bool
	released atomic.Bool
}

func (l *loop) NewConn() (stream.Conn, error) {
	if l.released.Load() {
		return nil, stream.ErrReleased
	}
	return &conn{loop: l, log: l.engine.opts.Logger}, nil
}

// post queues fn for the pumping goroutine. It gives up once the loop is
// released.
func (l *loop) post(fn func()) {
	select {
	case l.events <- fn:
	case <-l.done:
	}
}

func (l *loop) RunOnce(timeout time.Duration) {
	if l.stopped.Load() || l.released.Load() {
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case fn := <-l.events:
		fn()
	case <-timer.C:
		return
	}

	for !l.stopped.Load() {
		select {
		case fn := <-l.events:
			fn()
		default:
			return
		}
	}
}

func (l *loop) Stop() { l.stopped.Store(true) }

func (l *loop) Stopped() bool { return l.stopped.Load() }

func (l *loop) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		return stream.ErrReleased
	}
	l.stopped.Store(true)
	close(l.done)
	return nil
}

type conn struct {
	loop     *loop
	log      *logging.Logger
	handlers stream.Handlers

	mu       sync.Mutex
	session  *xmpp.Session
	netConn  net.Conn
	cancel   context.CancelFunc
	closing  bool
	released bool
}

func (c *conn) Connect(creds stream.Credentials, host string, port uint16, h stream.StatusHandler) error {
	j, err := jid.Parse(creds.JID)
	if err != nil {
		return fmt.Errorf("invalid JID: %w", err)
	}
	if j.Localpart() == "" {
		return fmt.Errorf("invalid JID %q: missing localpart", creds.JID)
	}
	if err := validateHost(host); err != nil {
		return err
	}
	if port == 0 {
		port = stream.DefaultPort
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return stream.ErrReleased
	}
	if c.cancel != nil {
		return errors.New("connect already in progress")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	// SASL takes the password as a string, so this copy is not scrubbed and
	// lives until collected. Only the caller's byte slice is cleared.
	password := string(creds.Password)
	addr := ""
	if host != "" {
		addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	}
	go c.run(ctx, j, password, addr, h)
	return nil
}

func validateHost(host string) error {
	if host == "" {
		return nil
	}
	if strings.TrimSpace(host) != host || strings.ContainsAny(host, " /@\t\n") {
		return fmt.Errorf("malformed host %q", host)
	}
	return nil
}

func (c *conn) run(ctx context.Context, j jid.JID, password, addr string, h stream.StatusHandler) {
	report := func(status stream.Status, err error) {
		c.loop.post(func() { h(status, err) })
	}

	netConn, err := c.dial(ctx, j, addr)
	if err != nil {
		c.fail(report, fmt.Errorf("failed to dial server: %w", err))
		return
	}

	tlsConfig := c.loop.engine.opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			ServerName: j.Domain().String(),
			MinVersion: tls.VersionTLS12,
		}
	}

	negotiator := xmpp.NewNegotiator(func(_ *xmpp.Session, _ *xmpp.StreamConfig) xmpp.StreamConfig {
		return xmpp.StreamConfig{
			Features: []xmpp.StreamFeature{
				xmpp.StartTLS(tlsConfig),
				xmpp.SASL("", password, sasl.ScramSha256Plus, sasl.ScramSha256, sasl.ScramSha1Plus, sasl.ScramSha1, sasl.Plain),
				xmpp.BindResource(),
			},
		}
	})

	session, err := xmpp.NewSession(ctx, j.Domain(), j, netConn, 0, negotiator)
	if err != nil {
		netConn.Close()
		c.fail(report, fmt.Errorf("failed to negotiate session: %w", err))
		return
	}

	if !c.attach(session, netConn, report) {
		return
	}

	err = session.Serve(xmpp.HandlerFunc(c.handleXMPP))

	c.mu.Lock()
	closing := c.closing
	c.session = nil
	c.mu.Unlock()

	if err != nil && !closing {
		report(stream.StatusDisconnect, err)
		return
	}
	report(stream.StatusDisconnect, nil)
}

// attach stores a negotiated stream and reports the connect. A stream that
// arrives after Release or Disconnect is closed instead and false is
// returned.
func (c *conn) attach(session *xmpp.Session, netConn net.Conn, report func(stream.Status, error)) bool {
	c.mu.Lock()
	released, closing := c.released, c.closing
	if !released && !closing {
		c.session = session
		c.netConn = netConn
	}
	c.mu.Unlock()

	if released || closing {
		session.Close()
		netConn.Close()
		if closing {
			report(stream.StatusDisconnect, nil)
		}
		return false
	}

	c.log.Debug("stream ready for %s", session.LocalAddr())
	report(stream.StatusConnect, nil)
	return true
}

// fail reports a connection attempt that did not complete. An attempt
// aborted by Disconnect is reported as a plain disconnect.
func (c *conn) fail(report func(stream.Status, error), err error) {
	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()

	if closing {
		report(stream.StatusDisconnect, nil)
		return
	}
	report(stream.StatusFail, err)
}

func (c *conn) dial(ctx context.Context, j jid.JID, addr string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.loop.engine.opts.DialTimeout)
	defer cancel()

	if addr == "" {
		return dial.Client(ctx, "tcp", j)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// handleXMPP decodes each inbound stanza on the serve goroutine and queues
// it for the pump.
func (c *conn) handleXMPP(t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	el := &stanza.Element{}
	r := xmlstream.MultiReader(xmlstream.Token(start.Copy()), t)
	if err := xml.NewTokenDecoder(r).Decode(el); err != nil {
		c.log.Warn("dropping undecodable %s: %v", start.Name.Local, err)
		return nil
	}
	c.loop.post(func() { c.handlers.Dispatch(el) })
	return nil
}

func (c *conn) Send(el *stanza.Element) error {
	c.mu.Lock()
	session := c.session
	released := c.released
	c.mu.Unlock()

	if released {
		return stream.ErrReleased
	}
	if session == nil {
		return stream.ErrNotConnected
	}
	c.log.Debug("send %s", el)
	return session.Send(context.Background(), el.TokenReader())
}

func (c *conn) HandleMessages(h stream.StanzaHandler) { c.handlers.AddMessage(h) }

func (c *conn) HandleID(id string, h stream.StanzaHandler) { c.handlers.AddID(id, h) }

// Disconnect closes the stream; the serve loop then reports the disconnect.
// Before the stream is up it aborts the attempt instead.
func (c *conn) Disconnect() error {
	c.mu.Lock()
	c.closing = true
	session := c.session
	cancel := c.cancel
	c.mu.Unlock()

	if session != nil {
		return session.Close()
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

func (c *conn) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return stream.ErrReleased
	}
	c.released = true
	session, netConn, cancel := c.session, c.netConn, c.cancel
	c.session, c.netConn = nil, nil
	c.mu.Unlock()

	c.handlers.Reset()
	if cancel != nil {
		cancel()
	}
	if session != nil {
		if err := session.Close(); err != nil {
			c.log.Debug("closing stream on release: %v", err)
		}
	}
	if netConn != nil {
		if err := netConn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
	}
	return nil
}
