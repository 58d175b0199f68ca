// Package app tracks the running call sessions and owns their collective
// shutdown. Every accepted media stream registers its relay here; on process
// shutdown all registered sessions are cancelled so no call is left
// half-open.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nitesh0626/callingAgent-backend/internal/relay"
)

// SessionInfo is a point-in-time view of one active call.
type SessionInfo struct {
	// ID is the registry's identifier for this session.
	ID string

	// StreamSid is the telephony stream identifier, empty until the stream's
	// start event arrives.
	StreamSid string

	// Caller is the caller identifier, "unknown" when not supplied.
	Caller string

	// StartedAt is when the session was registered.
	StartedAt time.Time
}

// entry pairs a relay with its cancel function.
type entry struct {
	relay     *relay.Relay
	cancel    context.CancelFunc
	startedAt time.Time
}

// Registry tracks active call sessions. All methods are safe for concurrent
// use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]entry)}
}

// Add registers a running relay and returns its registry ID. cancel is
// invoked when the registry shuts the session down.
func (r *Registry) Add(rel *relay.Relay, cancel context.CancelFunc) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = entry{relay: rel, cancel: cancel, startedAt: time.Now()}
	r.mu.Unlock()
	return id
}

// Remove deregisters a finished session. Unknown IDs are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List returns a snapshot of the active sessions.
func (r *Registry) List() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for id, e := range r.sessions {
		info := SessionInfo{ID: id, StartedAt: e.startedAt}
		if e.relay != nil {
			info.StreamSid = e.relay.StreamSid()
			info.Caller = e.relay.Caller()
		}
		out = append(out, info)
	}
	return out
}

// CloseAll cancels every active session. Used during graceful shutdown; the
// relays close both legs themselves when cancelled.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	n := len(entries)
	r.mu.Unlock()

	if n > 0 {
		slog.Info("closing active sessions", slog.Int("count", n))
	}
	for _, e := range entries {
		e.cancel()
	}
}
