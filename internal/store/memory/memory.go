// Package memory provides an in-memory Repository used in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quickdesk/livechat/internal/domain"
	"github.com/quickdesk/livechat/internal/store"
)

// Store implements store.Repository with plain maps. Entities are
// copied on the way in and out so callers cannot mutate shared state.
type Store struct {
	mu       sync.RWMutex
	visitors map[string]*domain.Visitor
	agents   map[string]*domain.Agent
	sessions map[string]*domain.ChatSession
	messages map[string][]*domain.Message
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		visitors: make(map[string]*domain.Visitor),
		agents:   make(map[string]*domain.Agent),
		sessions: make(map[string]*domain.ChatSession),
		messages: make(map[string][]*domain.Message),
	}
}

var _ store.Repository = (*Store)(nil)

func (s *Store) CreateVisitor(_ context.Context, v *domain.Visitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.visitors[v.ID] = &cp
	return nil
}

func (s *Store) GetVisitor(_ context.Context, visitorID string) (*domain.Visitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.visitors[visitorID]
	if !ok {
		return nil, fmt.Errorf("visitor %s: %w", visitorID, domain.ErrNotFound)
	}
	cp := *v
	return &cp, nil
}

func (s *Store) TouchVisitor(_ context.Context, visitorID string, lastActive time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.visitors[visitorID]; ok {
		v.LastActive = lastActive
	}
	return nil
}

func (s *Store) CreateSession(_ context.Context, session *domain.ChatSession) (*domain.ChatSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sessions {
		if existing.VisitorID == session.VisitorID && existing.IsOpen() {
			cp := *existing
			return &cp, false, nil
		}
	}

	cp := *session
	s.sessions[session.ID] = &cp
	out := cp
	return &out, true, nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionLocked(sessionID)
}

func (s *Store) sessionLocked(sessionID string) (*domain.ChatSession, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	cp := *session
	return &cp, nil
}

func (s *Store) ListSessions(_ context.Context, status, agentID string, limit int) ([]*domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*domain.ChatSession
	for _, session := range s.sessions {
		if status != "" && session.Status != status {
			continue
		}
		if agentID != "" && session.AssignedAgentID != agentID {
			continue
		}
		cp := *session
		sessions = append(sessions, &cp)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// openSession returns the live (not copied) session, failing on
// missing or closed sessions like the SQL guard does.
func (s *Store) openSession(sessionID string) (*domain.ChatSession, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if session.Status == domain.StatusClosed {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionClosed)
	}
	return session, nil
}

func (s *Store) UpdateSessionAssignment(_ context.Context, sessionID, agentID string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.openSession(sessionID)
	if err != nil {
		return err
	}
	session.AssignedAgentID = agentID
	session.Status = domain.StatusActive
	session.UpdatedAt = updatedAt
	return nil
}

func (s *Store) UpdateSessionStatus(_ context.Context, sessionID, status string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.openSession(sessionID)
	if err != nil {
		return err
	}
	session.Status = status
	session.UpdatedAt = updatedAt
	return nil
}

func (s *Store) AppendSessionSummary(_ context.Context, sessionID, preview string, incrementUnread bool, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.openSession(sessionID)
	if err != nil {
		return err
	}
	session.LastMessage = preview
	session.UpdatedAt = updatedAt
	if incrementUnread {
		session.UnreadCount++
	}
	return nil
}

func (s *Store) ResetUnread(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		session.UnreadCount = 0
	}
	return nil
}

func (s *Store) CreateMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], &cp)
	return nil
}

func (s *Store) ListMessages(_ context.Context, sessionID string, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]*domain.Message, 0, len(msgs))
	for _, msg := range msgs {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) MarkAllRead(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages[sessionID] {
		msg.IsRead = true
	}
	return nil
}

func (s *Store) CreateAgent(_ context.Context, agent *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.agents {
		if existing.Email == agent.Email {
			return fmt.Errorf("agent email %s: %w", agent.Email, domain.ErrEmailTaken)
		}
	}
	cp := *agent
	s.agents[agent.ID] = &cp
	return nil
}

func (s *Store) GetAgent(_ context.Context, agentID string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	cp := *agent
	return &cp, nil
}

func (s *Store) GetAgentByEmail(_ context.Context, email string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, agent := range s.agents {
		if agent.Email == email {
			cp := *agent
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("agent email %s: %w", email, domain.ErrNotFound)
}

func (s *Store) ListAgents(_ context.Context) ([]*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agents := make([]*domain.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		cp := *agent
		agents = append(agents, &cp)
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].CreatedAt.Before(agents[j].CreatedAt)
	})
	return agents, nil
}

func (s *Store) SetAgentOnline(_ context.Context, agentID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent, ok := s.agents[agentID]; ok {
		agent.IsOnline = online
	}
	return nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }
