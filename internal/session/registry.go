package session

import (
	"fmt"
	"sync"
	"time"
)

// Registry is the in-memory table of active sessions, keyed by session id.
// It is lifecycle-scoped: constructed at server startup and owned by the
// controller, never a package-level singleton, so tests can run independent
// instances side by side.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*State)}
}

// Create registers a new session in recording state.
func (r *Registry) Create(id, ownerID string, source AudioSource, title string, now time.Time) (*State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return nil, fmt.Errorf("create session %s: %w", id, ErrDuplicateSession)
	}

	st := newState(id, ownerID, source, title, now)
	r.sessions[id] = st
	return st, nil
}

// Get returns the active session for id.
func (r *Registry) Get(id string) (*State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return st, nil
}

// Remove deletes the session from the registry. Removing an unknown id is a
// no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// ForEach visits every registered session. The visitor runs outside the
// registry lock so it may call back into the registry.
func (r *Registry) ForEach(visit func(*State)) {
	r.mu.RLock()
	snapshot := make([]*State, 0, len(r.sessions))
	for _, st := range r.sessions {
		snapshot = append(snapshot, st)
	}
	r.mu.RUnlock()

	for _, st := range snapshot {
		visit(st)
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
