package xmpp

import (
	"errors"

	"github.com/meszmate/xmpplink/internal/xmpp/roster"
	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

var (
	// ErrConnectInit is returned when the engine rejects a connection
	// attempt outright. Nothing is left registered.
	ErrConnectInit = errors.New("connection could not be started")

	// ErrNotConnected is returned for intents issued outside the Connected
	// state. The intent is dropped.
	ErrNotConnected = errors.New("not connected")

	// ErrDoubleClose is returned when a session is closed a second time.
	ErrDoubleClose = errors.New("session already closed")

	// ErrNotFound is returned for unknown or stale session identifiers.
	ErrNotFound = errors.New("session not found")

	// ErrProtocol marks malformed or error flagged inbound stanzas.
	ErrProtocol = roster.ErrProtocol

	// ErrInvalidArgument marks unusable intent arguments.
	ErrInvalidArgument = stanza.ErrInvalidArgument
)
