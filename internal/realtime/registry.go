package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// PresenceListener receives agent connect/disconnect events emitted
// by the registry. Implementations must not block; the registry calls
// them while accepting or tearing down a connection.
type PresenceListener interface {
	AgentConnected(agentID string)
	AgentDisconnected(agentID string)
}

// Registry maps logical identities to live connections: visitors
// keyed by session id, agents keyed by agent id. At most one handle
// is held per identity; registering replaces any prior handle.
//
// All sends are best-effort. A missing handle or a failed write is
// logged and swallowed, never surfaced to the caller.
type Registry struct {
	mu       sync.RWMutex
	visitors map[string]Conn
	agents   map[string]Conn
	presence PresenceListener
}

// NewRegistry creates an empty registry. The presence listener may be
// nil when presence tracking is not wired (tests).
func NewRegistry(presence PresenceListener) *Registry {
	return &Registry{
		visitors: make(map[string]Conn),
		agents:   make(map[string]Conn),
		presence: presence,
	}
}

// RegisterVisitor adds a visitor connection keyed by session id,
// replacing and closing any prior handle for that session.
func (r *Registry) RegisterVisitor(sessionID string, conn Conn) {
	r.mu.Lock()
	prior := r.visitors[sessionID]
	r.visitors[sessionID] = conn
	r.mu.Unlock()

	if prior != nil && prior != conn {
		_ = prior.Close("connection replaced")
	}
	slog.Info("Visitor connected", "session_id", sessionID)
}

// UnregisterVisitor removes the visitor handle if conn is still the
// registered one. Removing an absent or stale handle is a no-op.
func (r *Registry) UnregisterVisitor(sessionID string, conn Conn) {
	r.mu.Lock()
	current, ok := r.visitors[sessionID]
	if ok && current == conn {
		delete(r.visitors, sessionID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		slog.Info("Visitor disconnected", "session_id", sessionID)
	}
}

// RegisterAgent adds an agent connection, replacing any prior handle,
// and emits a presence-online event.
func (r *Registry) RegisterAgent(agentID string, conn Conn) {
	r.mu.Lock()
	prior := r.agents[agentID]
	r.agents[agentID] = conn
	r.mu.Unlock()

	if prior != nil && prior != conn {
		_ = prior.Close("connection replaced")
	}
	slog.Info("Agent connected", "agent_id", agentID)

	if r.presence != nil {
		r.presence.AgentConnected(agentID)
	}
}

// UnregisterAgent removes the agent handle if conn is still the
// registered one and emits a presence-offline event.
func (r *Registry) UnregisterAgent(agentID string, conn Conn) {
	r.mu.Lock()
	current, ok := r.agents[agentID]
	if ok && current == conn {
		delete(r.agents, agentID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	slog.Info("Agent disconnected", "agent_id", agentID)

	if r.presence != nil {
		r.presence.AgentDisconnected(agentID)
	}
}

// SendToVisitor delivers an event to the visitor connected for the
// given session, if any.
func (r *Registry) SendToVisitor(sessionID string, event any) {
	r.mu.RLock()
	conn := r.visitors[sessionID]
	r.mu.RUnlock()

	if conn == nil {
		return
	}
	r.send(conn, event, "visitor", sessionID)
}

// SendToAgent delivers an event to the connected agent, if any.
func (r *Registry) SendToAgent(agentID string, event any) {
	r.mu.RLock()
	conn := r.agents[agentID]
	r.mu.RUnlock()

	if conn == nil {
		return
	}
	r.send(conn, event, "agent", agentID)
}

// BroadcastToAgents delivers an event to every agent registered at
// call time, except any ids listed in exclude. Each target is written
// from its own goroutine so one broken or slow connection cannot
// block or fail delivery to the rest.
func (r *Registry) BroadcastToAgents(event any, exclude ...string) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal broadcast event", "error", err)
		return
	}

	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	r.mu.RLock()
	targets := make(map[string]Conn, len(r.agents))
	for agentID, conn := range r.agents {
		if !skip[agentID] {
			targets[agentID] = conn
		}
	}
	r.mu.RUnlock()

	for agentID, conn := range targets {
		go func(agentID string, conn Conn) {
			if err := conn.Send(context.Background(), data); err != nil {
				slog.Debug("Broadcast delivery failed", "agent_id", agentID, "error", err)
			}
		}(agentID, conn)
	}
}

func (r *Registry) send(conn Conn, event any, kind, id string) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "error", err)
		return
	}
	if err := conn.Send(context.Background(), data); err != nil {
		slog.Debug("Delivery failed", "target", kind, "id", id, "error", err)
	}
}
