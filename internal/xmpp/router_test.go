package xmpp

import (
	"testing"

	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want EventKind
	}{
		{"chat with body", `<message type='chat' from='a@x'><body>hi</body></message>`, EventMessage},
		{"no type", `<message from='a@x'><body>hi</body></message>`, EventMessage},
		{"empty body", `<message type='chat'><body/></message>`, EventMessage},
		{"groupchat", `<message type='groupchat'><body>hi</body></message>`, EventMessage},
		{"no body", `<message type='chat'><active xmlns='http://jabber.org/protocol/chatstates'/></message>`, EventIgnore},
		{"error with body", `<message type='error'><body>hi</body></message>`, EventIgnore},
		{"error without body", `<message type='error'/>`, EventIgnore},
		{"nested body only", `<message><x><body>hi</body></x></message>`, EventIgnore},
	}

	for _, c := range cases {
		el, err := stanza.Parse([]byte(c.raw))
		if err != nil {
			t.Fatalf("%s: failed to parse fixture: %v", c.name, err)
		}
		if got := Classify(el); got != c.want {
			t.Fatalf("%s: Classify = %s, want %s", c.name, got, c.want)
		}
	}

	if Classify(nil) != EventIgnore {
		t.Fatalf("nil stanza must be ignored")
	}
}

func TestRouterDropsUnknownSession(t *testing.T) {
	r := &router{registry: NewRegistry()}

	el, _ := stanza.Parse([]byte(`<message type='chat'><body>hi</body></message>`))
	if !r.messageHandler(7)(el) {
		t.Fatalf("message handler must stay registered")
	}

	iq, _ := stanza.Parse([]byte(`<iq type='result' id='roster-1'/>`))
	if r.rosterHandler(7)(iq) {
		t.Fatalf("roster handler must be one-shot")
	}
}

func TestRosterHandlerWaitsForResponse(t *testing.T) {
	r := &router{registry: NewRegistry()}
	h := r.rosterHandler(7)

	msg, _ := stanza.Parse([]byte(`<message id='roster-1' type='chat'><body>hi</body></message>`))
	if !h(msg) {
		t.Fatalf("a message with a matching id must not consume the roster handler")
	}
	set, _ := stanza.Parse([]byte(`<iq type='set' id='roster-1'/>`))
	if !h(set) {
		t.Fatalf("an iq set with a matching id must not consume the roster handler")
	}
}
