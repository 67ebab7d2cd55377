package roster

import (
	"errors"
	"fmt"

	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

// Subscription represents the subscription state
type Subscription string

const (
	SubscriptionNone   Subscription = "none"
	SubscriptionTo     Subscription = "to"
	SubscriptionFrom   Subscription = "from"
	SubscriptionBoth   Subscription = "both"
	SubscriptionRemove Subscription = "remove"
)

// ErrProtocol is returned for roster results the server flagged as errors
// or that are not roster results at all.
var ErrProtocol = errors.New("protocol error")

// Contact represents a roster item. Subscription is whatever the server
// reported; it is not validated against the constants above.
type Contact struct {
	JID          string
	Name         string
	Subscription Subscription
}

// Parse decodes a roster result into contacts in document order.
//
// Items without a jid are kept with an empty JID. A result with no items
// yields an empty, non-nil slice.
func Parse(el *stanza.Element) ([]Contact, error) {
	if el == nil {
		return nil, fmt.Errorf("nil roster result: %w", ErrProtocol)
	}
	if !IsResponse(el) {
		return []Contact{}, fmt.Errorf("not a roster response: <%s type=%q>: %w", el.Name.Local, el.Type(), ErrProtocol)
	}
	if el.Type() == "error" {
		return []Contact{}, fmt.Errorf("roster request %q failed: %w", el.ID(), errorDetail(el))
	}

	query := el.Child("query")
	if query == nil {
		return []Contact{}, nil
	}
	if query.Name.Space != "" && query.Name.Space != stanza.NSRoster {
		return []Contact{}, fmt.Errorf("unexpected query namespace %q: %w", query.Name.Space, ErrProtocol)
	}

	items := query.ChildrenNamed("item")
	contacts := make([]Contact, 0, len(items))
	for _, item := range items {
		contacts = append(contacts, Contact{
			JID:          item.AttrValue("jid"),
			Name:         item.AttrValue("name"),
			Subscription: Subscription(item.AttrValue("subscription")),
		})
	}
	return contacts, nil
}

// IsResponse reports whether el can answer a roster request: an iq of
// type result or error.
func IsResponse(el *stanza.Element) bool {
	if el == nil || el.Name.Local != "iq" {
		return false
	}
	t := el.Type()
	return t == "result" || t == "error"
}

// errorDetail names the first stanza error condition, if any.
func errorDetail(el *stanza.Element) error {
	e := el.Child("error")
	if e == nil || len(e.Children) == 0 {
		return ErrProtocol
	}
	return fmt.Errorf("%s: %w", e.Children[0].Name.Local, ErrProtocol)
}
