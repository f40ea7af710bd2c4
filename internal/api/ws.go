package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/quickdesk/livechat/internal/chat"
	"github.com/quickdesk/livechat/internal/realtime"
	"github.com/quickdesk/livechat/internal/store"
)

// SocketHandler upgrades visitor and agent connections and pumps
// their inbound envelopes through the message router.
type SocketHandler struct {
	repo          store.Repository
	registry      *realtime.Registry
	router        *chat.MessageRouter
	allowedOrigin string
	isDev         bool
}

// NewSocketHandler creates a new websocket handler.
func NewSocketHandler(repo store.Repository, registry *realtime.Registry, router *chat.MessageRouter, allowedOrigin string, isDev bool) *SocketHandler {
	return &SocketHandler{
		repo:          repo,
		registry:      registry,
		router:        router,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// RegisterRoutes mounts the websocket endpoints.
func (h *SocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/ws/visitor/{sessionID}", h.VisitorSocket)
	r.Get("/api/ws/agent/{agentID}", h.AgentSocket)
}

// VisitorSocket serves the visitor side of a session.
func (h *SocketHandler) VisitorSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	slog.Info("Visitor WebSocket request", "session_id", sessionID, "ip", r.RemoteAddr)

	ws := h.accept(w, r, sessionID)
	if ws == nil {
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	conn := realtime.NewWebSocketConn(ws)
	h.registry.RegisterVisitor(sessionID, conn)
	defer h.registry.UnregisterVisitor(sessionID, conn)

	h.readLoop(r.Context(), ws, func(ctx context.Context, env chat.Envelope) error {
		if env.VisitorID != "" {
			h.touchVisitor(env.VisitorID)
		}
		return h.router.HandleVisitorEnvelope(ctx, sessionID, env)
	})
	slog.Info("Visitor WebSocket ended", "session_id", sessionID)
}

// AgentSocket serves an agent's multiplexed connection.
func (h *SocketHandler) AgentSocket(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	slog.Info("Agent WebSocket request", "agent_id", agentID, "ip", r.RemoteAddr)

	ws := h.accept(w, r, agentID)
	if ws == nil {
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "agent_id", agentID)
		}
	}()

	conn := realtime.NewWebSocketConn(ws)
	h.registry.RegisterAgent(agentID, conn)
	defer h.registry.UnregisterAgent(agentID, conn)

	h.readLoop(r.Context(), ws, func(ctx context.Context, env chat.Envelope) error {
		return h.router.HandleAgentEnvelope(ctx, agentID, env)
	})
	slog.Info("Agent WebSocket ended", "agent_id", agentID)
}

func (h *SocketHandler) accept(w http.ResponseWriter, r *http.Request, id string) *websocket.Conn {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return nil
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "id", id)
		return nil
	}
	return ws
}

func (h *SocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop reads envelopes until the peer disconnects. Malformed
// envelopes are skipped without closing the connection; handler
// errors are logged and the loop continues with the next envelope.
func (h *SocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, handle func(context.Context, chat.Envelope) error) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client")
			} else {
				slog.Debug("WebSocket read error", "error", err)
			}
			return
		}

		var env chat.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Debug("Skipping malformed envelope", "error", err)
			continue
		}

		if err := handle(ctx, env); err != nil {
			slog.Warn("Failed to handle envelope", "type", env.Type, "error", err)
		}
	}
}

// touchVisitor refreshes last_active off the hot path with a bounded
// timeout.
func (h *SocketHandler) touchVisitor(visitorID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.repo.TouchVisitor(ctx, visitorID, time.Now().UTC()); err != nil {
			slog.Warn("Failed to update visitor activity", "visitor_id", visitorID, "error", err)
		}
	}()
}
