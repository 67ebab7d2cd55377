package stanza

import (
	"encoding/xml"
	"fmt"
)

// Message types understood by most servers. Any other value is passed
// through unchanged.
const (
	ChatMessage      = "chat"
	ErrorMessage     = "error"
	GroupChatMessage = "groupchat"
	HeadlineMessage  = "headline"
	NormalMessage    = "normal"
)

// MessageOption configures a message built by Message.
type MessageOption func(*messageConfig)

type messageConfig struct {
	typ string
}

// WithType sets the message type verbatim. An empty type omits the type
// attribute, which servers treat as a normal message.
func WithType(t string) MessageOption {
	return func(c *messageConfig) {
		c.typ = t
	}
}

// RosterQuery builds the roster request with the fixed id RosterID.
func RosterQuery() *Element {
	return RosterQueryID(RosterID)
}

// RosterQueryID builds a roster request with a caller chosen id.
func RosterQueryID(id string) *Element {
	iq := New("iq").
		SetAttr("type", "get").
		SetAttr("id", id)
	iq.AddChild(&Element{Name: xml.Name{Space: NSRoster, Local: "query"}})
	return iq
}

// Chat builds a chat message addressed to to.
func Chat(to, body string) (*Element, error) {
	return Message(to, body)
}

// Message builds a message stanza. The type defaults to "chat" unless
// WithType is given.
func Message(to, body string, opts ...MessageOption) (*Element, error) {
	if to == "" {
		return nil, fmt.Errorf("message recipient is empty: %w", ErrInvalidArgument)
	}

	cfg := messageConfig{typ: ChatMessage}
	for _, opt := range opts {
		opt(&cfg)
	}

	msg := New("message")
	if cfg.typ != "" {
		msg.SetAttr("type", cfg.typ)
	}
	msg.SetAttr("to", to)

	b := New("body")
	b.Text = body
	msg.AddChild(b)
	return msg, nil
}

// Presence builds the initial availability announcement.
func Presence() *Element {
	return New("presence")
}

// Unavailable builds the presence sent before a graceful disconnect.
func Unavailable() *Element {
	return New("presence").SetAttr("type", "unavailable")
}
