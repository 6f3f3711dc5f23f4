// Package presence tracks which users currently hold a live, addressable
// connection. The Registry is the single source of truth for "is this user
// reachable right now" and is the only long-lived shared state in the
// realtime core, so every access goes through its mutex.
package presence

import "sync"

// Conn is the outbound handle stored per user. A registered connection is
// owned by the registry; ownership transfers back to the caller on
// deregistration, and the caller is then responsible for closing it.
type Conn interface {
	WriteMessage(data []byte) error
	Close() error
}

// Registry maps user ids to their active connection. A user holds at most
// one entry; registering a new connection for the same user replaces the
// previous one.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]Conn
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]Conn)}
}

// Register installs conn as the active handle for userID. A superseded
// connection is closed: the old handle can never be addressed again (the
// registry entry now points at the new one), so leaving it open would only
// leak the socket until its peer times out.
func (r *Registry) Register(userID int64, conn Conn) {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()

	if prev != nil && prev != conn {
		_ = prev.Close()
	}
}

// Deregister removes the user's entry and returns the connection that was
// registered, if any. It is idempotent; removing an absent user is a no-op.
// The returned connection is not closed — that is the caller's job.
func (r *Registry) Deregister(userID int64) (Conn, bool) {
	r.mu.Lock()
	conn, ok := r.conns[userID]
	if ok {
		delete(r.conns, userID)
	}
	r.mu.Unlock()
	return conn, ok
}

// Release removes the user's entry only if it still points at conn. This is
// the cleanup path for connection handlers: if the user has already
// reconnected, the newer registration must not be torn down by the old
// handler's deferred cleanup.
func (r *Registry) Release(userID int64, conn Conn) bool {
	r.mu.Lock()
	current, ok := r.conns[userID]
	if ok && current == conn {
		delete(r.conns, userID)
	} else {
		ok = false
	}
	r.mu.Unlock()
	return ok
}

// Lookup returns the active connection for userID, or false if the user is
// offline.
func (r *Registry) Lookup(userID int64) (Conn, bool) {
	r.mu.RLock()
	conn, ok := r.conns[userID]
	r.mu.RUnlock()
	return conn, ok
}

// IsOnline reports whether userID currently has a registered connection.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	_, ok := r.conns[userID]
	r.mu.RUnlock()
	return ok
}

// Online returns a snapshot of all currently registered user ids. The
// snapshot is safe to iterate without holding the lock; registrations that
// happen after the call are not reflected.
func (r *Registry) Online() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	return ids
}

// Count returns the number of users currently online.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.conns)
	r.mu.RUnlock()
	return n
}
