package xmpp

import (
	"errors"
	"sync"
	"testing"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	s := &Session{}

	id := r.Register(s)
	got, err := r.Lookup(id)
	if err != nil || got != s {
		t.Fatalf("Lookup(%d) = %v, %v", id, got, err)
	}

	r.Remove(id)
	if _, err := r.Lookup(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
	if !r.Retired(id) {
		t.Fatalf("expected removed id to be retired")
	}
	if r.Retired(id + 1) {
		t.Fatalf("unknown id must not be retired")
	}
}

func TestRegistryNeverReusesIDs(t *testing.T) {
	r := NewRegistry()
	seen := make(map[SessionID]bool)

	for i := 0; i < 100; i++ {
		id := r.Register(&Session{})
		if seen[id] {
			t.Fatalf("id %d reused", id)
		}
		seen[id] = true
		r.Remove(id)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistryForgetDoesNotRetire(t *testing.T) {
	r := NewRegistry()
	id := r.Register(&Session{})
	r.forget(id)

	if r.Retired(id) {
		t.Fatalf("forgotten id must not be retired")
	}
	if _, err := r.Lookup(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	ids := make(chan SessionID, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := r.Register(&Session{})
			if _, err := r.Lookup(id); err != nil {
				t.Errorf("Lookup(%d): %v", id, err)
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[SessionID]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}

	got := r.IDs()
	if len(got) != 200 {
		t.Fatalf("expected 200 ids, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("IDs not sorted: %v", got)
		}
	}
}
