package registry

import "sync"

// MemoryRegistry is the in-process Registry implementation. State is
// owned by this struct for the server's lifetime; there are no package
// globals. Connect/Disconnect from concurrent handlers are serialised
// by the mutex, which is never held across I/O.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]struct{} // userID -> set of connID
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		sessions: make(map[string]map[string]struct{}),
	}
}

// Connect adds a session. Re-adding a known connID is a no-op.
func (r *MemoryRegistry) Connect(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.sessions[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.sessions[userID] = conns
	}
	first := len(conns) == 0
	conns[connID] = struct{}{}
	return first
}

// Disconnect removes a session. Removing an unknown session reports no
// transition.
func (r *MemoryRegistry) Disconnect(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.sessions[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}

	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.sessions, userID)
		return true
	}
	return false
}

// IsOnline reports whether the user has any live session.
func (r *MemoryRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID]) > 0
}

// OnlineUserIDs returns a snapshot of online users.
func (r *MemoryRegistry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// ConnectionCount returns the user's session count.
func (r *MemoryRegistry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID])
}
