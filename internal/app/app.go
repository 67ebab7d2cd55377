package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/meszmate/xmpplink/internal/config"
	"github.com/meszmate/xmpplink/internal/logging"
	"github.com/meszmate/xmpplink/internal/storage/sqlite"
	"github.com/meszmate/xmpplink/internal/stream"
	"github.com/meszmate/xmpplink/internal/stream/mellium"
	"github.com/meszmate/xmpplink/internal/xmpp"
	"github.com/meszmate/xmpplink/internal/xmpp/roster"
	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

// ErrUnknownAccount is returned for an account missing from accounts.toml.
var ErrUnknownAccount = errors.New("unknown account")

// Option configures an App.
type Option func(*options)

type options struct {
	engine stream.Engine
	logger *logging.Logger
}

// WithEngine replaces the mellium stream engine.
func WithEngine(e stream.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithLogger sets the logger. Without it the default logger is used.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// App represents the main application
type App struct {
	cfg      *config.Config
	accounts *config.AccountsConfig
	log      *logging.Logger
	journal  *sqlite.DB
	client   *xmpp.Client
	bus      *EventBus
	program  *tea.Program

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	mu        sync.RWMutex
	sessions  map[string]xmpp.SessionID // account -> session
	accountOf map[xmpp.SessionID]string
	states    map[string]xmpp.State
}

// New creates a new App instance and initializes the stream engine.
func New(cfg *config.Config, accounts *config.AccountsConfig, opts ...Option) (*App, error) {
	o := options{logger: logging.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine == nil {
		o.engine = mellium.New(mellium.Options{
			DialTimeout: cfg.DialTimeout(),
			Logger:      o.logger.With("stream"),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		cfg:       cfg,
		accounts:  accounts,
		log:       o.logger.With("app"),
		bus:       NewEventBus(),
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]xmpp.SessionID),
		accountOf: make(map[xmpp.SessionID]string),
		states:    make(map[string]xmpp.State),
	}

	if cfg.Storage.Journal && cfg.General.DataDir != "" {
		journal, err := sqlite.New(cfg.General.DataDir)
		if err != nil {
			// The journal is optional.
			a.log.Warn("failed to open connection journal: %v", err)
		} else {
			a.journal = journal
		}
	}

	a.client = xmpp.NewClient(xmpp.ClientConfig{
		Engine: o.engine,
		Logger: o.logger.With("xmpp"),
		Handlers: xmpp.Handlers{
			OnMessage: a.onMessage,
			OnStatus:  a.onStatus,
			OnRoster:  a.onRoster,
		},
	})
	if err := a.client.Init(); err != nil {
		cancel()
		if a.journal != nil {
			a.journal.Close()
		}
		return nil, err
	}

	return a, nil
}

// Events returns the bus every session event is published on.
func (a *App) Events() *EventBus {
	return a.bus
}

// Journal returns the connection journal, or nil when disabled.
func (a *App) Journal() *sqlite.DB {
	return a.journal
}

// SetProgram forwards every event to the Bubble Tea program.
func (a *App) SetProgram(p *tea.Program) {
	a.program = p
	a.bus.SubscribeAll(func(event EventMsg) {
		p.Send(event)
	})
}

// Connect opens a session for a configured account and starts pumping it on
// its own goroutine. Connecting an account that already has a session
// returns that session.
func (a *App) Connect(account string) (xmpp.SessionID, error) {
	acc, ok := a.accounts.Find(account)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if id, exists := a.sessions[account]; exists {
		return id, nil
	}
	if a.ctx.Err() != nil {
		return 0, errors.New("app is closed")
	}

	a.record(account, xmpp.StateConnecting, nil)
	id, err := a.client.Open(acc.Address(), []byte(acc.Password), acc.Server, uint16(acc.Port))
	if err != nil {
		a.states[account] = xmpp.StateFailed
		a.record(account, xmpp.StateFailed, err)
		return 0, err
	}

	a.sessions[account] = id
	a.accountOf[id] = account
	a.states[account] = xmpp.StateConnecting

	a.wg.Add(1)
	go a.pump(id, account)
	return id, nil
}

// pump drives one session until its loop stops, then closes it.
func (a *App) pump(id xmpp.SessionID, account string) {
	defer a.wg.Done()
	timeout := a.cfg.PumpTimeout()

	for {
		if a.ctx.Err() != nil {
			// Close shuts the remaining sessions down.
			return
		}
		s, err := a.client.Session(id)
		if err != nil {
			return
		}
		if s.Stopped() {
			break
		}
		if err := a.client.Pump(id, timeout); err != nil {
			a.log.Warn("pump %s: %v", account, err)
			return
		}
	}

	if err := a.client.Close(id); err != nil {
		a.log.Warn("failed to close session for %s: %v", account, err)
	}
	a.mu.Lock()
	delete(a.sessions, account)
	delete(a.accountOf, id)
	a.mu.Unlock()
}

// Disconnect gracefully disconnects an account. The session is closed by
// its pump once the server confirms.
func (a *App) Disconnect(account string) error {
	id, err := a.sessionFor(account)
	if err != nil {
		return err
	}
	return a.client.Disconnect(id)
}

// SendMessage sends a chat message from an account.
func (a *App) SendMessage(account, to, body string, opts ...stanza.MessageOption) error {
	id, err := a.sessionFor(account)
	if err != nil {
		return err
	}
	return a.client.SendMessage(id, to, body, opts...)
}

// RequestRoster asks the server for an account's roster. The result is
// published as an EventRoster.
func (a *App) RequestRoster(account string) error {
	id, err := a.sessionFor(account)
	if err != nil {
		return err
	}
	return a.client.RequestRoster(id)
}

// State returns the last known state of an account.
func (a *App) State(account string) xmpp.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.states[account]
}

// Connected returns the accounts that currently have a session.
func (a *App) Connected() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	accounts := make([]string, 0, len(a.sessions))
	for acc := range a.sessions {
		accounts = append(accounts, acc)
	}
	return accounts
}

func (a *App) sessionFor(account string) (xmpp.SessionID, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.sessions[account]
	if !ok {
		return 0, fmt.Errorf("%s: %w", account, xmpp.ErrNotFound)
	}
	return id, nil
}

func (a *App) account(id xmpp.SessionID) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.accountOf[id]
}

func (a *App) record(account string, state xmpp.State, cause error) {
	if a.journal == nil {
		return
	}
	if err := a.journal.SaveStatus(account, state.String(), cause); err != nil {
		a.log.Warn("failed to journal %s for %s: %v", state, account, err)
	}
}

func (a *App) onStatus(id xmpp.SessionID, state xmpp.State, err error) {
	account := a.account(id)

	a.mu.Lock()
	a.states[account] = state
	a.mu.Unlock()
	a.record(account, state, err)

	if state == xmpp.StateConnected && a.cfg.General.AutoRoster {
		if err := a.client.RequestRoster(id); err != nil {
			a.log.Warn("failed to request roster for %s: %v", account, err)
		}
	}

	a.bus.Publish(EventMsg{Type: EventStatus, Account: account, Session: id, State: state, Err: err})
}

func (a *App) onMessage(id xmpp.SessionID, msg xmpp.Message) {
	a.bus.Publish(EventMsg{Type: EventMessage, Account: a.account(id), Session: id, Message: msg})
}

func (a *App) onRoster(id xmpp.SessionID, contacts []roster.Contact, err error) {
	a.bus.Publish(EventMsg{Type: EventRoster, Account: a.account(id), Session: id, Contacts: contacts, Err: err})
}

// Close stops every pump, closes the remaining sessions and shuts the engine
// down. Later calls return the first result.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.cancel()
		a.mu.Unlock()
		a.wg.Wait()

		err := a.client.Shutdown()
		a.bus.Clear()
		if a.journal != nil {
			if cerr := a.journal.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
		a.closeErr = err
	})
	return a.closeErr
}

// WaitFor blocks until account reaches one of the given states or timeout
// expires.
func (a *App) WaitFor(account string, timeout time.Duration, states ...xmpp.State) (xmpp.State, error) {
	deadline := time.Now().Add(timeout)
	for {
		current := a.State(account)
		for _, s := range states {
			if current == s {
				return current, nil
			}
		}
		if time.Now().After(deadline) {
			return current, fmt.Errorf("timed out waiting for %s: still %s", account, current)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
