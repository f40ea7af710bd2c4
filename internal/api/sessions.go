package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/quickdesk/livechat/internal/domain"
)

const (
	defaultSessionLimit = 100
	defaultMessageLimit = 50
)

// CreateSession opens a chat session for a visitor, returning the
// existing open session when one is already in progress.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	visitorID := r.URL.Query().Get("visitor_id")
	if visitorID == "" {
		Error(w, http.StatusBadRequest, "visitor_id is required")
		return
	}
	visitorName := r.URL.Query().Get("visitor_name")

	session, err := h.lifecycle.Create(r.Context(), visitorID, visitorName)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, session)
}

// GetSession returns a session by id.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.repo.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, session)
}

// ListSessions returns sessions, optionally filtered by status and
// assigned agent, most recently updated first.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repo.ListSessions(r.Context(),
		r.URL.Query().Get("status"),
		r.URL.Query().Get("agent_id"),
		defaultSessionLimit,
	)
	if err != nil {
		DomainError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*domain.ChatSession{}
	}
	JSON(w, http.StatusOK, sessions)
}

type assignRequest struct {
	AgentID string `json:"agent_id"`
}

// AssignSession assigns an agent to a session and activates it.
func (h *Handler) AssignSession(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
		Error(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	session, err := h.lifecycle.Assign(r.Context(), chi.URLParam(r, "sessionID"), req.AgentID)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, session)
}

// CloseSession moves a session to its terminal closed state.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.lifecycle.Close(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, session)
}

// ListMessages returns a session's messages in ascending order.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	messages, err := h.repo.ListMessages(r.Context(), chi.URLParam(r, "sessionID"), limit)
	if err != nil {
		DomainError(w, err)
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}
	JSON(w, http.StatusOK, messages)
}

type createMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	FileURL     string `json:"file_url"`
	FileName    string `json:"file_name"`
}

// CreateMessage appends a message to the durable log without live
// routing; websocket envelopes are the live path.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	senderType := r.URL.Query().Get("sender_type")
	senderID := r.URL.Query().Get("sender_id")
	if senderType != domain.SenderVisitor && senderType != domain.SenderAgent {
		Error(w, http.StatusBadRequest, "sender_type must be visitor or agent")
		return
	}

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		DomainError(w, err)
		return
	}

	messageType := req.MessageType
	if messageType == "" {
		messageType = domain.MessageText
	}

	msg := &domain.Message{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		SenderType:  senderType,
		SenderID:    senderID,
		SenderName:  r.URL.Query().Get("sender_name"),
		Content:     req.Content,
		MessageType: messageType,
		FileURL:     req.FileURL,
		FileName:    req.FileName,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.repo.CreateMessage(r.Context(), msg); err != nil {
		DomainError(w, err)
		return
	}
	incrementUnread := senderType == domain.SenderVisitor
	if err := h.repo.AppendSessionSummary(r.Context(), session.ID, domain.Preview(req.Content), incrementUnread, msg.CreatedAt); err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusCreated, msg)
}

// MarkRead flags a session's messages as read and resets the unread
// counter.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.router.MarkRead(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
