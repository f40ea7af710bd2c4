package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quickdesk/livechat/internal/chat"
	"github.com/quickdesk/livechat/internal/domain"
	"github.com/quickdesk/livechat/internal/realtime"
	"github.com/quickdesk/livechat/internal/store/memory"
)

// fakeConn records decoded events delivered to one connection.
type fakeConn struct {
	mu     sync.Mutex
	events []map[string]any
}

func (c *fakeConn) Send(_ context.Context, data []byte) error {
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Close(string) error { return nil }

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *fakeConn) snapshot() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.events...)
}

// waitForEvents polls until the connection saw n events; broadcast
// deliveries run on their own goroutines.
func waitForEvents(t *testing.T, conn *fakeConn, n int) []map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn.count() >= n {
			return conn.snapshot()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d events, got %d: %v", n, conn.count(), conn.snapshot())
	return nil
}

func eventTypes(events []map[string]any) []string {
	var types []string
	for _, event := range events {
		if s, ok := event["type"].(string); ok {
			types = append(types, s)
		}
	}
	return types
}

func hasEventType(events []map[string]any, eventType string) bool {
	for _, s := range eventTypes(events) {
		if s == eventType {
			return true
		}
	}
	return false
}

func seedAgent(t *testing.T, repo *memory.Store, id, name string) {
	t.Helper()
	err := repo.CreateAgent(context.Background(), &domain.Agent{
		ID:        id,
		Email:     id + "@example.com",
		Name:      name,
		Role:      domain.DefaultRole,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to seed agent: %v", err)
	}
}

func TestLifecycle_CreateBroadcastsNewSession(t *testing.T) {
	repo := memory.New()
	registry := realtime.NewRegistry(nil)
	lifecycle := chat.NewSessionLifecycle(repo, registry)

	agentConn := &fakeConn{}
	registry.RegisterAgent("agent-1", agentConn)

	session, err := lifecycle.Create(context.Background(), "visitor-1", "Ana")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if session.Status != domain.StatusWaiting {
		t.Errorf("Expected status waiting, got %q", session.Status)
	}

	events := waitForEvents(t, agentConn, 1)
	if events[0]["type"] != chat.EventNewSession {
		t.Errorf("Expected new_session broadcast, got %v", events[0]["type"])
	}
}

func TestLifecycle_CreateDedupReturnsExistingWithoutBroadcast(t *testing.T) {
	repo := memory.New()
	registry := realtime.NewRegistry(nil)
	lifecycle := chat.NewSessionLifecycle(repo, registry)

	first, err := lifecycle.Create(context.Background(), "visitor-1", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	agentConn := &fakeConn{}
	registry.RegisterAgent("agent-1", agentConn)

	for i := 0; i < 3; i++ {
		session, err := lifecycle.Create(context.Background(), "visitor-1", "")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if session.ID != first.ID {
			t.Errorf("Expected session %s, got %s", first.ID, session.ID)
		}
	}

	time.Sleep(50 * time.Millisecond)
	if agentConn.count() != 0 {
		t.Errorf("Expected no broadcast on dedup, got %v", agentConn.snapshot())
	}
}

func TestLifecycle_AssignNotifiesBothSides(t *testing.T) {
	repo := memory.New()
	registry := realtime.NewRegistry(nil)
	lifecycle := chat.NewSessionLifecycle(repo, registry)
	seedAgent(t, repo, "agent-1", "Alice")

	session, err := lifecycle.Create(context.Background(), "visitor-1", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	visitorConn := &fakeConn{}
	agentConn := &fakeConn{}
	registry.RegisterVisitor(session.ID, visitorConn)
	registry.RegisterAgent("agent-1", agentConn)

	updated, err := lifecycle.Assign(context.Background(), session.ID, "agent-1")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if updated.Status != domain.StatusActive || updated.AssignedAgentID != "agent-1" {
		t.Errorf("Expected active session assigned to agent-1, got %+v", updated)
	}

	visitorEvents := waitForEvents(t, visitorConn, 1)
	if visitorEvents[0]["type"] != chat.EventAgentJoined {
		t.Errorf("Expected agent_joined, got %v", visitorEvents[0]["type"])
	}
	if visitorEvents[0]["agent_name"] != "Alice" {
		t.Errorf("Expected agent_name Alice, got %v", visitorEvents[0]["agent_name"])
	}

	agentEvents := waitForEvents(t, agentConn, 1)
	if !hasEventType(agentEvents, chat.EventSessionUpdated) {
		t.Errorf("Expected session_updated broadcast, got %v", eventTypes(agentEvents))
	}
}

func TestLifecycle_ReassignOverwritesAgent(t *testing.T) {
	repo := memory.New()
	registry := realtime.NewRegistry(nil)
	lifecycle := chat.NewSessionLifecycle(repo, registry)
	seedAgent(t, repo, "agent-1", "Alice")
	seedAgent(t, repo, "agent-2", "Bob")

	session, _ := lifecycle.Create(context.Background(), "visitor-1", "")
	if _, err := lifecycle.Assign(context.Background(), session.ID, "agent-1"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	updated, err := lifecycle.Assign(context.Background(), session.ID, "agent-2")
	if err != nil {
		t.Fatalf("Reassign failed: %v", err)
	}
	if updated.AssignedAgentID != "agent-2" || updated.Status != domain.StatusActive {
		t.Errorf("Expected reassignment to agent-2, got %+v", updated)
	}
}

func TestLifecycle_AssignUnknownAgentFails(t *testing.T) {
	repo := memory.New()
	registry := realtime.NewRegistry(nil)
	lifecycle := chat.NewSessionLifecycle(repo, registry)

	session, _ := lifecycle.Create(context.Background(), "visitor-1", "")
	_, err := lifecycle.Assign(context.Background(), session.ID, "nobody")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLifecycle_CloseNotifiesVisitorAndAgents(t *testing.T) {
	repo := memory.New()
	registry := realtime.NewRegistry(nil)
	lifecycle := chat.NewSessionLifecycle(repo, registry)

	session, _ := lifecycle.Create(context.Background(), "visitor-1", "")
	visitorConn := &fakeConn{}
	agentConn := &fakeConn{}
	registry.RegisterVisitor(session.ID, visitorConn)
	registry.RegisterAgent("agent-1", agentConn)

	closed, err := lifecycle.Close(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed.Status != domain.StatusClosed {
		t.Errorf("Expected status closed, got %q", closed.Status)
	}

	if !hasEventType(waitForEvents(t, visitorConn, 1), chat.EventSessionClosed) {
		t.Error("Expected session_closed sent to visitor")
	}
	if !hasEventType(waitForEvents(t, agentConn, 1), chat.EventSessionClosed) {
		t.Error("Expected session_closed broadcast to agents")
	}
}

func TestLifecycle_ClosedSessionIsTerminal(t *testing.T) {
	repo := memory.New()
	registry := realtime.NewRegistry(nil)
	lifecycle := chat.NewSessionLifecycle(repo, registry)
	seedAgent(t, repo, "agent-1", "Alice")

	session, _ := lifecycle.Create(context.Background(), "visitor-1", "")
	if _, err := lifecycle.Close(context.Background(), session.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	before, _ := repo.GetSession(context.Background(), session.ID)

	if _, err := lifecycle.Assign(context.Background(), session.ID, "agent-1"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed on assign, got %v", err)
	}
	if _, err := lifecycle.Close(context.Background(), session.ID); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed on close, got %v", err)
	}

	after, _ := repo.GetSession(context.Background(), session.ID)
	if after.Status != before.Status || after.AssignedAgentID != before.AssignedAgentID || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("Expected closed session to be unchanged after rejected operations")
	}
}

func TestPresenceTracker_PersistsOnlineFlag(t *testing.T) {
	repo := memory.New()
	seedAgent(t, repo, "agent-1", "Alice")
	tracker := chat.NewPresenceTracker(repo)
	registry := realtime.NewRegistry(tracker)

	conn := &fakeConn{}
	registry.RegisterAgent("agent-1", conn)
	waitForOnline(t, repo, "agent-1", true)

	registry.UnregisterAgent("agent-1", conn)
	waitForOnline(t, repo, "agent-1", false)
}

func waitForOnline(t *testing.T, repo *memory.Store, agentID string, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		agent, err := repo.GetAgent(context.Background(), agentID)
		if err == nil && agent.IsOnline == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Agent %s never reached online=%v", agentID, want)
}
