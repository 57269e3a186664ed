package bot

import "sync"

// Registry maps a user id to that user's current session. Both the dispatch
// loop and the reconciler insert through Acquire, which treats "insert if
// absent or inactive" as one atomic step so two workers are never spawned
// for the same user concurrently.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Acquire returns the live session for username, or installs the one built
// by create and reports created=true. A stale inactive entry is replaced.
func (r *Registry) Acquire(username string, create func() *Session) (s *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[username]; ok && existing.Active() {
		return existing, false
	}
	s = create()
	r.sessions[username] = s
	return s, true
}

// Lookup returns the registered session for username, live or not.
func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[username]
	return s, ok
}
