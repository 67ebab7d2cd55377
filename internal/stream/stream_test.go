package stream

import (
	"testing"

	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

func parse(t *testing.T, raw string) *stanza.Element {
	t.Helper()
	el, err := stanza.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return el
}

func TestDispatchIDHandlerIsOneShot(t *testing.T) {
	var h Handlers
	calls := 0
	h.AddID("roster-1", func(*stanza.Element) bool {
		calls++
		return false
	})

	h.Dispatch(parse(t, `<iq type='result' id='roster-1'/>`))
	h.Dispatch(parse(t, `<iq type='result' id='roster-1'/>`))
	h.Dispatch(parse(t, `<iq type='result' id='other'/>`))

	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}

func TestDispatchKeepsIDHandler(t *testing.T) {
	var h Handlers
	calls := 0
	h.AddID("x", func(*stanza.Element) bool {
		calls++
		return calls < 2
	})

	for i := 0; i < 3; i++ {
		h.Dispatch(parse(t, `<iq id='x'/>`))
	}
	if calls != 2 {
		t.Fatalf("expected two calls, got %d", calls)
	}
}

func TestDispatchMessagesInOrder(t *testing.T) {
	var h Handlers
	var order []string
	h.AddMessage(func(*stanza.Element) bool {
		order = append(order, "first")
		return false
	})
	h.AddMessage(func(*stanza.Element) bool {
		order = append(order, "second")
		return true
	})

	h.Dispatch(parse(t, `<message><body>a</body></message>`))
	h.Dispatch(parse(t, `<presence/>`))
	h.Dispatch(parse(t, `<message><body>b</body></message>`))

	want := []string{"first", "second", "second"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestDispatchAllowsRegistrationFromHandler(t *testing.T) {
	var h Handlers
	fired := false
	h.AddMessage(func(*stanza.Element) bool {
		h.AddID("late", func(*stanza.Element) bool {
			fired = true
			return false
		})
		return true
	})

	h.Dispatch(parse(t, `<message><body>a</body></message>`))
	h.Dispatch(parse(t, `<iq id='late'/>`))
	if !fired {
		t.Fatalf("handler registered during dispatch did not fire")
	}
}

func TestResetDropsHandlers(t *testing.T) {
	var h Handlers
	h.AddMessage(func(*stanza.Element) bool {
		t.Fatalf("handler must not run after reset")
		return true
	})
	h.Reset()
	h.Dispatch(parse(t, `<message><body>a</body></message>`))
}

func TestCredentialsClear(t *testing.T) {
	pw := []byte("hunter2")
	c := Credentials{JID: "a@x", Password: pw}
	c.Clear()

	if c.Password != nil {
		t.Fatalf("expected password dropped")
	}
	for _, b := range pw {
		if b != 0 {
			t.Fatalf("expected backing array zeroed, got %q", pw)
		}
	}
}
