package store

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quickdesk/livechat/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return repo
}

func seedVisitor(t *testing.T, repo Repository) *domain.Visitor {
	t.Helper()
	now := time.Now().UTC()
	visitor := &domain.Visitor{
		ID:         uuid.NewString(),
		Source:     domain.DefaultSource,
		CreatedAt:  now,
		LastActive: now,
	}
	if err := repo.CreateVisitor(context.Background(), visitor); err != nil {
		t.Fatalf("Failed to create visitor: %v", err)
	}
	return visitor
}

func seedSession(t *testing.T, repo Repository, visitorID string) *domain.ChatSession {
	t.Helper()
	now := time.Now().UTC()
	session, created, err := repo.CreateSession(context.Background(), &domain.ChatSession{
		ID:        uuid.NewString(),
		VisitorID: visitorID,
		Status:    domain.StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if !created {
		t.Fatalf("Expected a new session for visitor %s", visitorID)
	}
	return session
}

func seedAgent(t *testing.T, repo Repository, email string) *domain.Agent {
	t.Helper()
	agent := &domain.Agent{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "x",
		Name:         "Test Agent",
		Role:         domain.DefaultRole,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}
	return agent
}

func seedMessage(t *testing.T, repo Repository, sessionID, senderType, content string) *domain.Message {
	t.Helper()
	msg := &domain.Message{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		SenderType:  senderType,
		SenderID:    "sender",
		Content:     content,
		MessageType: domain.MessageText,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.CreateMessage(context.Background(), msg); err != nil {
		t.Fatalf("Failed to create message: %v", err)
	}
	return msg
}

func TestSQLite_VisitorRoundtrip(t *testing.T) {
	repo := newTestStore(t)
	visitor := seedVisitor(t, repo)

	got, err := repo.GetVisitor(context.Background(), visitor.ID)
	if err != nil {
		t.Fatalf("GetVisitor failed: %v", err)
	}
	if got.Source != domain.DefaultSource {
		t.Errorf("Expected source %q, got %q", domain.DefaultSource, got.Source)
	}

	_, err = repo.GetVisitor(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLite_SessionDedup(t *testing.T) {
	repo := newTestStore(t)
	visitor := seedVisitor(t, repo)
	first := seedSession(t, repo, visitor.ID)

	for i := 0; i < 3; i++ {
		now := time.Now().UTC()
		session, created, err := repo.CreateSession(context.Background(), &domain.ChatSession{
			ID:        uuid.NewString(),
			VisitorID: visitor.ID,
			Status:    domain.StatusWaiting,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if created {
			t.Error("Expected existing session, got a new one")
		}
		if session.ID != first.ID {
			t.Errorf("Expected session %s, got %s", first.ID, session.ID)
		}
	}

	// An active session still blocks creation; a closed one does not.
	if err := repo.UpdateSessionAssignment(context.Background(), first.ID, "agent-1", time.Now().UTC()); err != nil {
		t.Fatalf("UpdateSessionAssignment failed: %v", err)
	}
	_, created, err := repo.CreateSession(context.Background(), &domain.ChatSession{
		ID: uuid.NewString(), VisitorID: visitor.ID, Status: domain.StatusWaiting,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})
	if err != nil || created {
		t.Fatalf("Expected dedup for active session, created=%v err=%v", created, err)
	}

	if err := repo.UpdateSessionStatus(context.Background(), first.ID, domain.StatusClosed, time.Now().UTC()); err != nil {
		t.Fatalf("UpdateSessionStatus failed: %v", err)
	}
	second, created, err := repo.CreateSession(context.Background(), &domain.ChatSession{
		ID: uuid.NewString(), VisitorID: visitor.ID, Status: domain.StatusWaiting,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})
	if err != nil || !created {
		t.Fatalf("Expected new session after close, created=%v err=%v", created, err)
	}
	if second.ID == first.ID {
		t.Error("Expected a different session id after close")
	}
}

func TestSQLite_UnreadAccounting(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	visitor := seedVisitor(t, repo)
	session := seedSession(t, repo, visitor.ID)

	for i := 0; i < 3; i++ {
		seedMessage(t, repo, session.ID, domain.SenderVisitor, "hello "+strconv.Itoa(i))
		if err := repo.AppendSessionSummary(ctx, session.ID, "hello "+strconv.Itoa(i), true, time.Now().UTC()); err != nil {
			t.Fatalf("AppendSessionSummary failed: %v", err)
		}
	}

	got, err := repo.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.UnreadCount != 3 {
		t.Errorf("Expected unread_count 3, got %d", got.UnreadCount)
	}
	if got.LastMessage != "hello 2" {
		t.Errorf("Expected last_message %q, got %q", "hello 2", got.LastMessage)
	}

	// Agent-authored messages leave the counter alone.
	seedMessage(t, repo, session.ID, domain.SenderAgent, "hi there")
	if err := repo.AppendSessionSummary(ctx, session.ID, "hi there", false, time.Now().UTC()); err != nil {
		t.Fatalf("AppendSessionSummary failed: %v", err)
	}
	got, _ = repo.GetSession(ctx, session.ID)
	if got.UnreadCount != 3 {
		t.Errorf("Expected unread_count unchanged at 3, got %d", got.UnreadCount)
	}

	// Mark-read resets the counter and flags every message.
	if err := repo.MarkAllRead(ctx, session.ID); err != nil {
		t.Fatalf("MarkAllRead failed: %v", err)
	}
	if err := repo.ResetUnread(ctx, session.ID); err != nil {
		t.Fatalf("ResetUnread failed: %v", err)
	}
	got, _ = repo.GetSession(ctx, session.ID)
	if got.UnreadCount != 0 {
		t.Errorf("Expected unread_count 0 after reset, got %d", got.UnreadCount)
	}
	messages, err := repo.ListMessages(ctx, session.ID, 50)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	for _, msg := range messages {
		if !msg.IsRead {
			t.Errorf("Expected message %s to be read", msg.ID)
		}
	}
}

func TestSQLite_ClosedSessionIsTerminal(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	visitor := seedVisitor(t, repo)
	session := seedSession(t, repo, visitor.ID)

	if err := repo.UpdateSessionStatus(ctx, session.ID, domain.StatusClosed, time.Now().UTC()); err != nil {
		t.Fatalf("UpdateSessionStatus failed: %v", err)
	}
	before, _ := repo.GetSession(ctx, session.ID)

	if err := repo.UpdateSessionAssignment(ctx, session.ID, "agent-1", time.Now().UTC()); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed on assign, got %v", err)
	}
	if err := repo.UpdateSessionStatus(ctx, session.ID, domain.StatusClosed, time.Now().UTC()); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed on close, got %v", err)
	}
	if err := repo.AppendSessionSummary(ctx, session.ID, "late", true, time.Now().UTC()); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed on summary update, got %v", err)
	}

	after, _ := repo.GetSession(ctx, session.ID)
	if after.Status != before.Status || after.AssignedAgentID != before.AssignedAgentID ||
		!after.UpdatedAt.Equal(before.UpdatedAt) || after.UnreadCount != before.UnreadCount {
		t.Error("Expected closed session to be unchanged after rejected operations")
	}
}

func TestSQLite_MissingSessionIsNotFound(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.UpdateSessionAssignment(ctx, "missing", "agent-1", time.Now().UTC()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetSession(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLite_MessageOrdering(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	visitor := seedVisitor(t, repo)
	session := seedSession(t, repo, visitor.ID)

	var ids []string
	for i := 0; i < 10; i++ {
		msg := seedMessage(t, repo, session.ID, domain.SenderVisitor, "msg "+strconv.Itoa(i))
		ids = append(ids, msg.ID)
	}

	messages, err := repo.ListMessages(ctx, session.ID, 50)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != len(ids) {
		t.Fatalf("Expected %d messages, got %d", len(ids), len(messages))
	}
	for i, msg := range messages {
		if msg.ID != ids[i] {
			t.Fatalf("Expected message %d to be %s, got %s", i, ids[i], msg.ID)
		}
		if i > 0 && msg.CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatalf("Expected non-decreasing created_at at index %d", i)
		}
	}
}

func TestSQLite_ListSessionsFilters(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	v1 := seedVisitor(t, repo)
	v2 := seedVisitor(t, repo)
	s1 := seedSession(t, repo, v1.ID)
	seedSession(t, repo, v2.ID)

	agent := seedAgent(t, repo, "a@example.com")
	if err := repo.UpdateSessionAssignment(ctx, s1.ID, agent.ID, time.Now().UTC()); err != nil {
		t.Fatalf("UpdateSessionAssignment failed: %v", err)
	}

	waiting, err := repo.ListSessions(ctx, domain.StatusWaiting, "", 100)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(waiting) != 1 {
		t.Errorf("Expected 1 waiting session, got %d", len(waiting))
	}

	mine, err := repo.ListSessions(ctx, "", agent.ID, 100)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != s1.ID {
		t.Errorf("Expected agent filter to return %s, got %v", s1.ID, mine)
	}

	all, err := repo.ListSessions(ctx, "", "", 100)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 sessions, got %d", len(all))
	}
}

func TestSQLite_AgentEmailUnique(t *testing.T) {
	repo := newTestStore(t)
	seedAgent(t, repo, "dup@example.com")

	err := repo.CreateAgent(context.Background(), &domain.Agent{
		ID:           uuid.NewString(),
		Email:        "dup@example.com",
		PasswordHash: "x",
		Name:         "Other",
		Role:         domain.DefaultRole,
		CreatedAt:    time.Now().UTC(),
	})
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Errorf("Expected ErrEmailTaken, got %v", err)
	}
}

func TestSQLite_AgentPresenceFlag(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	agent := seedAgent(t, repo, "presence@example.com")

	if err := repo.SetAgentOnline(ctx, agent.ID, true); err != nil {
		t.Fatalf("SetAgentOnline failed: %v", err)
	}
	got, err := repo.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if !got.IsOnline {
		t.Error("Expected agent to be online")
	}

	if err := repo.SetAgentOnline(ctx, agent.ID, false); err != nil {
		t.Fatalf("SetAgentOnline failed: %v", err)
	}
	got, _ = repo.GetAgent(ctx, agent.ID)
	if got.IsOnline {
		t.Error("Expected agent to be offline")
	}
}
