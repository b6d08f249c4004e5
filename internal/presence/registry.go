package presence

import (
	"fmt"
	"log"
	"sync"
	"time"
)

type Role string

const (
	RoleAgent   Role = "agent"
	RoleVisitor Role = "visitor"
)

// Transport is the live delivery handle owned by a session. The websocket
// package provides the real implementation; tests use in-memory fakes.
type Transport interface {
	Send(event string, payload interface{}) error
	Close() error
}

// Session is ephemeral connection state. It is owned exclusively by the
// Registry: created on Register, destroyed on Unregister or eviction.
type Session struct {
	Role         Role
	ID           string
	Transport    Transport
	LastActivity time.Time
}

// Key is the identity key a session is stored under: one per (role, id).
func Key(role Role, id string) string {
	return fmt.Sprintf("%s:%s", role, id)
}

// Registry maps identities to their single active transport handle.
// A later connect for the same identity evicts the earlier handle
// (last-connect-wins); register/unregister for one identity are serialized
// under the registry lock so a disconnect cannot race a reconnect into
// evicting the wrong handle.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Register stores the transport for the identity, closing any prior handle.
func (r *Registry) Register(role Role, id string, transport Transport) {
	key := Key(role, id)

	r.mu.Lock()
	prior := r.sessions[key]
	r.sessions[key] = &Session{
		Role:         role,
		ID:           id,
		Transport:    transport,
		LastActivity: r.now(),
	}
	r.mu.Unlock()

	if prior != nil {
		if err := prior.Transport.Close(); err != nil {
			log.Printf("presence: closing evicted handle for %s: %v", key, err)
		}
	}
}

// Unregister removes the identity's session if the given transport is still
// the active one. Passing nil removes unconditionally. Idempotent: a second
// call for the same identity is a no-op.
func (r *Registry) Unregister(role Role, id string, transport Transport) {
	key := Key(role, id)

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[key]
	if !ok {
		return
	}
	// A stale disconnect from an evicted handle must not tear down the
	// replacement connection.
	if transport != nil && session.Transport != transport {
		return
	}
	delete(r.sessions, key)
}

// Lookup returns the live transport for the identity, if any.
func (r *Registry) Lookup(role Role, id string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[Key(role, id)]
	if !ok {
		return nil, false
	}
	return session.Transport, true
}

// Touch refreshes the identity's activity timestamp.
func (r *Registry) Touch(role Role, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[Key(role, id)]; ok {
		session.LastActivity = r.now()
	}
}

// Send delivers one event to a single identity, best effort. Absent
// identities are silently skipped; the message pipeline has already persisted
// anything durable.
func (r *Registry) Send(role Role, id string, event string, payload interface{}) {
	transport, ok := r.Lookup(role, id)
	if !ok {
		return
	}
	if err := transport.Send(event, payload); err != nil {
		log.Printf("presence: send %s to %s failed: %v", event, Key(role, id), err)
	}
}

// Broadcast fans an event out to every given identity currently registered.
// Delivery is fire-and-forget per recipient.
func (r *Registry) Broadcast(role Role, ids []string, event string, payload interface{}) {
	for _, id := range ids {
		r.Send(role, id, event, payload)
	}
}

// BroadcastAgents sends the event to every connected agent, optionally
// excluding one (the agent that caused the event).
func (r *Registry) BroadcastAgents(event string, payload interface{}, excludeID string) {
	for _, id := range r.AgentIDs() {
		if id == excludeID {
			continue
		}
		r.Send(RoleAgent, id, event, payload)
	}
}

// AgentIDs snapshots the currently connected agent identities.
func (r *Registry) AgentIDs() []string {
	return r.idsWithRole(RoleAgent)
}

// VisitorIDs snapshots the currently connected visitor identities.
func (r *Registry) VisitorIDs() []string {
	return r.idsWithRole(RoleVisitor)
}

func (r *Registry) idsWithRole(role Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for _, session := range r.sessions {
		if session.Role == role {
			ids = append(ids, session.ID)
		}
	}
	return ids
}
