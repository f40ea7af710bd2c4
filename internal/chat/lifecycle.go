package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quickdesk/livechat/internal/domain"
	"github.com/quickdesk/livechat/internal/realtime"
	"github.com/quickdesk/livechat/internal/store"
)

// SessionLifecycle drives the session state machine
// (waiting -> active -> closed) and emits the notifications each
// transition produces. Closed is terminal.
type SessionLifecycle struct {
	repo     store.Repository
	registry *realtime.Registry
}

// NewSessionLifecycle creates the lifecycle service.
func NewSessionLifecycle(repo store.Repository, registry *realtime.Registry) *SessionLifecycle {
	return &SessionLifecycle{repo: repo, registry: registry}
}

// Create returns the visitor's open session if one exists, otherwise
// creates a waiting session and broadcasts new_session to agents.
// Only one session per visitor may be open at a time.
func (l *SessionLifecycle) Create(ctx context.Context, visitorID, visitorName string) (*domain.ChatSession, error) {
	now := time.Now().UTC()
	session := &domain.ChatSession{
		ID:          uuid.NewString(),
		VisitorID:   visitorID,
		VisitorName: visitorName,
		Status:      domain.StatusWaiting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	session, created, err := l.repo.CreateSession(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !created {
		return session, nil
	}

	slog.Info("Session created", "session_id", session.ID, "visitor_id", visitorID)
	l.registry.BroadcastToAgents(SessionEvent{Type: EventNewSession, Session: session})
	return session, nil
}

// Assign sets the session's agent and activates it. Reassignment of
// an already-active session is permitted and re-notifies both sides.
func (l *SessionLifecycle) Assign(ctx context.Context, sessionID, agentID string) (*domain.ChatSession, error) {
	agent, err := l.repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if err := l.repo.UpdateSessionAssignment(ctx, sessionID, agentID, time.Now().UTC()); err != nil {
		return nil, err
	}

	session, err := l.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	slog.Info("Session assigned", "session_id", sessionID, "agent_id", agentID)
	l.registry.SendToVisitor(sessionID, AgentJoinedEvent{
		Type:      EventAgentJoined,
		AgentName: agent.Name,
		Session:   session,
	})
	l.registry.BroadcastToAgents(SessionEvent{Type: EventSessionUpdated, Session: session})
	return session, nil
}

// Close moves the session to its terminal state and notifies the
// visitor and all agents. Closing a closed session fails with
// domain.ErrSessionClosed and mutates nothing.
func (l *SessionLifecycle) Close(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	if err := l.repo.UpdateSessionStatus(ctx, sessionID, domain.StatusClosed, time.Now().UTC()); err != nil {
		return nil, err
	}

	session, err := l.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	slog.Info("Session closed", "session_id", sessionID)
	closed := SessionEvent{Type: EventSessionClosed, Session: session}
	l.registry.SendToVisitor(sessionID, closed)
	l.registry.BroadcastToAgents(closed)
	return session, nil
}
