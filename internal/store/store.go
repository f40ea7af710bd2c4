// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/quickdesk/livechat/internal/domain"
)

// Repository defines the interface for persisting visitors, agents,
// chat sessions, and messages. It is the single owner of durable
// state; the routing core keeps only transient in-memory handles.
type Repository interface {
	// CreateVisitor persists a new visitor record.
	CreateVisitor(ctx context.Context, v *domain.Visitor) error

	// GetVisitor retrieves a visitor by id. Returns domain.ErrNotFound
	// if no such visitor exists.
	GetVisitor(ctx context.Context, visitorID string) (*domain.Visitor, error)

	// TouchVisitor refreshes a visitor's last_active timestamp.
	TouchVisitor(ctx context.Context, visitorID string, lastActive time.Time) error

	// CreateSession returns the visitor's open session if one exists
	// in {waiting, active}, otherwise inserts session and returns it.
	// The created flag reports whether a new row was inserted.
	CreateSession(ctx context.Context, session *domain.ChatSession) (*domain.ChatSession, bool, error)

	// GetSession retrieves a session by id.
	GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error)

	// ListSessions returns up to limit sessions ordered by updated_at
	// descending, optionally filtered by status and/or assigned agent.
	ListSessions(ctx context.Context, status, agentID string, limit int) ([]*domain.ChatSession, error)

	// UpdateSessionAssignment sets the assigned agent and moves the
	// session to active. Fails with domain.ErrSessionClosed if the
	// session is closed, domain.ErrNotFound if it does not exist.
	UpdateSessionAssignment(ctx context.Context, sessionID, agentID string, updatedAt time.Time) error

	// UpdateSessionStatus transitions the session status. The closed
	// state is terminal: transitioning a closed session fails with
	// domain.ErrSessionClosed.
	UpdateSessionStatus(ctx context.Context, sessionID, status string, updatedAt time.Time) error

	// AppendSessionSummary updates the last_message preview and
	// updated_at, incrementing unread_count when incrementUnread is
	// set (visitor-authored messages).
	AppendSessionSummary(ctx context.Context, sessionID, preview string, incrementUnread bool, updatedAt time.Time) error

	// ResetUnread zeroes the session's unread counter.
	ResetUnread(ctx context.Context, sessionID string) error

	// CreateMessage persists a new message.
	CreateMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns up to limit messages for a session in
	// ascending created_at order, ties broken by insertion order.
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*domain.Message, error)

	// MarkAllRead flags every unread message in a session as read.
	MarkAllRead(ctx context.Context, sessionID string) error

	// CreateAgent persists a new agent. Fails with domain.ErrEmailTaken
	// if the email is already registered.
	CreateAgent(ctx context.Context, agent *domain.Agent) error

	// GetAgent retrieves an agent by id.
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)

	// GetAgentByEmail retrieves an agent by email.
	GetAgentByEmail(ctx context.Context, email string) (*domain.Agent, error)

	// ListAgents returns all registered agents.
	ListAgents(ctx context.Context) ([]*domain.Agent, error)

	// SetAgentOnline updates the agent's persisted presence flag.
	SetAgentOnline(ctx context.Context, agentID string, online bool) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
