package roster

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

func mustParse(t *testing.T, raw string) *stanza.Element {
	t.Helper()
	el, err := stanza.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return el
}

func TestParseTwoItems(t *testing.T) {
	el := mustParse(t, `<iq xmlns='jabber:client' type='result' id='roster'>`+
		`<query xmlns='jabber:iq:roster'>`+
		`<item jid='a@x' name='A' subscription='both'/>`+
		`<item jid='b@x' subscription='none'/>`+
		`</query></iq>`)

	contacts, err := Parse(el)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(contacts))
	}
	if contacts[0] != (Contact{JID: "a@x", Name: "A", Subscription: SubscriptionBoth}) {
		t.Fatalf("unexpected first contact %+v", contacts[0])
	}
	if contacts[1].JID != "b@x" || contacts[1].Name != "" || contacts[1].Subscription != SubscriptionNone {
		t.Fatalf("unexpected second contact %+v", contacts[1])
	}
}

func TestParsePreservesOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<iq type='result' id='roster'><query xmlns='jabber:iq:roster'>`)
	for i := 9; i >= 0; i-- {
		fmt.Fprintf(&b, `<item jid='c%d@x' subscription='to'/>`, i)
	}
	b.WriteString(`</query></iq>`)

	contacts, err := Parse(mustParse(t, b.String()))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(contacts) != 10 {
		t.Fatalf("expected 10 contacts, got %d", len(contacts))
	}
	for i, c := range contacts {
		want := fmt.Sprintf("c%d@x", 9-i)
		if c.JID != want {
			t.Fatalf("contact %d: expected %s, got %s", i, want, c.JID)
		}
	}
}

func TestParseItemWithoutJID(t *testing.T) {
	el := mustParse(t, `<iq type='result' id='roster'><query xmlns='jabber:iq:roster'>`+
		`<item name='Nameless'/><item jid='z@x'/></query></iq>`)

	contacts, err := Parse(el)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("expected both items, got %d", len(contacts))
	}
	if contacts[0].JID != "" || contacts[0].Name != "Nameless" {
		t.Fatalf("unexpected first contact %+v", contacts[0])
	}
}

func TestParseEmptyQuery(t *testing.T) {
	contacts, err := Parse(mustParse(t, `<iq type='result' id='roster'><query xmlns='jabber:iq:roster'/></iq>`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if contacts == nil || len(contacts) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", contacts)
	}
}

func TestParseErrorResult(t *testing.T) {
	el := mustParse(t, `<iq type='error' id='roster'><query xmlns='jabber:iq:roster'><item jid='a@x'/></query>`+
		`<error type='cancel'><service-unavailable xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'/></error></iq>`)

	contacts, err := Parse(el)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	if len(contacts) != 0 {
		t.Fatalf("expected no contacts, got %d", len(contacts))
	}
	if !strings.Contains(err.Error(), "service-unavailable") {
		t.Fatalf("expected condition in error, got %v", err)
	}
}

func TestParseNil(t *testing.T) {
	if _, err := Parse(nil); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestParseRejectsNonResponses(t *testing.T) {
	for _, raw := range []string{
		`<message id='roster-1' from='eve@x'><body>hi</body></message>`,
		`<iq type='set' id='roster-1'><query xmlns='jabber:iq:roster'><item jid='eve@x'/></query></iq>`,
		`<iq id='roster-1'><query xmlns='jabber:iq:roster'/></iq>`,
	} {
		if IsResponse(mustParse(t, raw)) {
			t.Fatalf("%s must not count as a roster response", raw)
		}
		if _, err := Parse(mustParse(t, raw)); !errors.Is(err, ErrProtocol) {
			t.Fatalf("expected ErrProtocol for %s, got %v", raw, err)
		}
	}
}
