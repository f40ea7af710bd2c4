package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/quickdesk/livechat/internal/store"
)

// presenceTimeout bounds the detached persistence write so a slow
// database cannot pile up goroutines.
const presenceTimeout = 5 * time.Second

// PresenceTracker persists an agent's online flag when their
// connection opens or closes. Writes run in their own goroutine so
// accepting or tearing down a connection never waits on the database.
type PresenceTracker struct {
	repo store.Repository
}

// NewPresenceTracker creates the tracker.
func NewPresenceTracker(repo store.Repository) *PresenceTracker {
	return &PresenceTracker{repo: repo}
}

// AgentConnected flips the agent's persisted presence to online.
func (p *PresenceTracker) AgentConnected(agentID string) {
	p.setOnline(agentID, true)
}

// AgentDisconnected flips the agent's persisted presence to offline.
func (p *PresenceTracker) AgentDisconnected(agentID string) {
	p.setOnline(agentID, false)
}

func (p *PresenceTracker) setOnline(agentID string, online bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := p.repo.SetAgentOnline(ctx, agentID, online); err != nil {
			slog.Warn("Failed to persist agent presence", "agent_id", agentID, "online", online, "error", err)
		}
	}()
}
