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

// MessageRouter turns inbound envelopes into persisted messages and
// live deliveries. Persistence always precedes routing: on a failed
// write nothing is delivered, so the durable log and the live
// notifications stay consistent.
type MessageRouter struct {
	repo     store.Repository
	registry *realtime.Registry
}

// NewMessageRouter creates the router.
func NewMessageRouter(repo store.Repository, registry *realtime.Registry) *MessageRouter {
	return &MessageRouter{repo: repo, registry: registry}
}

// HandleVisitorEnvelope processes one envelope read off a visitor
// connection. Unknown envelope types are ignored.
func (r *MessageRouter) HandleVisitorEnvelope(ctx context.Context, sessionID string, env Envelope) error {
	switch env.Type {
	case EnvelopeMessage:
		return r.visitorMessage(ctx, sessionID, env)
	case EnvelopeTyping:
		r.visitorTyping(ctx, sessionID)
		return nil
	default:
		slog.Debug("Ignoring unknown visitor envelope", "type", env.Type, "session_id", sessionID)
		return nil
	}
}

// HandleAgentEnvelope processes one envelope read off an agent
// connection. Unknown envelope types are ignored.
func (r *MessageRouter) HandleAgentEnvelope(ctx context.Context, agentID string, env Envelope) error {
	switch env.Type {
	case EnvelopeMessage:
		return r.agentMessage(ctx, agentID, env)
	case EnvelopeTyping:
		r.agentTyping(env.SessionID)
		return nil
	default:
		slog.Debug("Ignoring unknown agent envelope", "type", env.Type, "agent_id", agentID)
		return nil
	}
}

func (r *MessageRouter) visitorMessage(ctx context.Context, sessionID string, env Envelope) error {
	session, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsOpen() {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionClosed)
	}

	msg, err := r.persist(ctx, sessionID, domain.SenderVisitor, env.VisitorID, env.SenderName, env, true)
	if err != nil {
		return err
	}

	// Dual delivery: the assigned agent gets a targeted copy, every
	// agent gets an awareness copy.
	event := MessageEvent{Type: EventNewMessage, Message: msg, SessionID: sessionID}
	if session.AssignedAgentID != "" {
		r.registry.SendToAgent(session.AssignedAgentID, event)
	}
	r.registry.BroadcastToAgents(event)
	return nil
}

func (r *MessageRouter) agentMessage(ctx context.Context, agentID string, env Envelope) error {
	session, err := r.repo.GetSession(ctx, env.SessionID)
	if err != nil {
		return err
	}
	if !session.IsOpen() {
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrSessionClosed)
	}

	senderName := "Agent"
	if agent, err := r.repo.GetAgent(ctx, agentID); err == nil {
		senderName = agent.Name
	}

	msg, err := r.persist(ctx, session.ID, domain.SenderAgent, agentID, senderName, env, false)
	if err != nil {
		return err
	}

	r.registry.SendToVisitor(session.ID, MessageEvent{Type: EventNewMessage, Message: msg})
	r.registry.BroadcastToAgents(
		MessageEvent{Type: EventNewMessage, Message: msg, SessionID: session.ID},
		agentID,
	)
	return nil
}

// persist writes the message and refreshes the session summary.
// unread_count moves only for visitor-authored messages.
func (r *MessageRouter) persist(ctx context.Context, sessionID, senderType, senderID, senderName string, env Envelope, incrementUnread bool) (*domain.Message, error) {
	messageType := env.MessageType
	if messageType == "" {
		messageType = domain.MessageText
	}

	msg := &domain.Message{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		SenderType:  senderType,
		SenderID:    senderID,
		SenderName:  senderName,
		Content:     env.Content,
		MessageType: messageType,
		FileURL:     env.FileURL,
		FileName:    env.FileName,
		CreatedAt:   time.Now().UTC(),
	}

	if err := r.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	if err := r.repo.AppendSessionSummary(ctx, sessionID, domain.Preview(env.Content), incrementUnread, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("update session summary: %w", err)
	}
	return msg, nil
}

func (r *MessageRouter) visitorTyping(ctx context.Context, sessionID string) {
	session, err := r.repo.GetSession(ctx, sessionID)
	if err != nil || session.AssignedAgentID == "" {
		return
	}
	r.registry.SendToAgent(session.AssignedAgentID, TypingEvent{Type: EventVisitorTyping, SessionID: sessionID})
}

func (r *MessageRouter) agentTyping(sessionID string) {
	if sessionID == "" {
		return
	}
	r.registry.SendToVisitor(sessionID, TypingEvent{Type: EventAgentTyping, SessionID: sessionID})
}

// MarkRead flags every unread message in the session and zeroes the
// unread counter. Idempotent.
func (r *MessageRouter) MarkRead(ctx context.Context, sessionID string) error {
	if err := r.repo.MarkAllRead(ctx, sessionID); err != nil {
		return err
	}
	return r.repo.ResetUnread(ctx, sessionID)
}
