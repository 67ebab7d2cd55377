package xmpp

import (
	"fmt"
	"sort"
	"sync"
)

// SessionID identifies a session. Identifiers increase monotonically and
// are never reused within a process.
type SessionID uint64

// Registry maps identifiers to live sessions. Engine callbacks carry only
// the identifier and resolve the session here.
type Registry struct {
	mu       sync.RWMutex
	last     SessionID
	sessions map[SessionID]*Session
	retired  map[SessionID]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[SessionID]*Session),
		retired:  make(map[SessionID]struct{}),
	}
}

// Register stores s under a fresh identifier and returns it.
func (r *Registry) Register(s *Session) SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	r.sessions[r.last] = s
	return r.last
}

// Lookup returns the session registered under id.
func (r *Registry) Lookup(id SessionID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return s, nil
}

// Remove drops the mapping for id. The identifier is remembered as retired
// so late callers can tell a closed session from an unknown one.
func (r *Registry) Remove(id SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.retired[id] = struct{}{}
}

// forget drops id without retiring it. Used when an open attempt fails
// before the identifier was handed out.
func (r *Registry) forget(id SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Retired reports whether id belonged to a session that has been removed.
func (r *Registry) Retired(id SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.retired[id]
	return ok
}

// IDs returns the identifiers of every live session in ascending order.
func (r *Registry) IDs() []SessionID {
	r.mu.RLock()
	ids := make([]SessionID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
