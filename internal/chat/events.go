package chat

import (
	"github.com/quickdesk/livechat/internal/domain"
)

// Outbound event vocabulary.
const (
	EventNewSession     = "new_session"
	EventSessionUpdated = "session_updated"
	EventSessionClosed  = "session_closed"
	EventNewMessage     = "new_message"
	EventAgentJoined    = "agent_joined"
	EventAgentTyping    = "agent_typing"
	EventVisitorTyping  = "visitor_typing"
)

// SessionEvent carries a session snapshot to agents or the visitor.
type SessionEvent struct {
	Type    string              `json:"type"`
	Session *domain.ChatSession `json:"session"`
}

// AgentJoinedEvent tells the visitor an agent picked up the session.
type AgentJoinedEvent struct {
	Type      string              `json:"type"`
	AgentName string              `json:"agent_name"`
	Session   *domain.ChatSession `json:"session"`
}

// MessageEvent carries a new message. SessionID is set on copies sent
// to agents, who multiplex many sessions over one connection.
type MessageEvent struct {
	Type      string          `json:"type"`
	Message   *domain.Message `json:"message"`
	SessionID string          `json:"session_id,omitempty"`
}

// TypingEvent signals the counterpart is typing.
type TypingEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}
