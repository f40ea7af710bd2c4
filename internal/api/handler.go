// Package api provides HTTP handlers for the live chat API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/quickdesk/livechat/internal/auth"
	"github.com/quickdesk/livechat/internal/chat"
	"github.com/quickdesk/livechat/internal/domain"
	"github.com/quickdesk/livechat/internal/store"
)

// Handler serves the REST surface: visitors, sessions, messages,
// agents, and uploads.
type Handler struct {
	repo           store.Repository
	lifecycle      *chat.SessionLifecycle
	router         *chat.MessageRouter
	tokens         *auth.Tokens
	uploadDir      string
	maxUploadBytes int64
}

// NewHandler creates a new Handler with its dependencies.
func NewHandler(repo store.Repository, lifecycle *chat.SessionLifecycle, router *chat.MessageRouter, tokens *auth.Tokens, uploadDir string, maxUploadBytes int64) *Handler {
	return &Handler{
		repo:           repo,
		lifecycle:      lifecycle,
		router:         router,
		tokens:         tokens,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes mounts all REST endpoints under the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/", h.Root)

	r.Post("/api/visitors", h.CreateVisitor)
	r.Get("/api/visitors/{visitorID}", h.GetVisitor)

	r.Post("/api/sessions", h.CreateSession)
	r.Get("/api/sessions", h.ListSessions)
	r.Get("/api/sessions/{sessionID}", h.GetSession)
	r.Put("/api/sessions/{sessionID}/assign", h.AssignSession)
	r.Put("/api/sessions/{sessionID}/close", h.CloseSession)
	r.Get("/api/sessions/{sessionID}/messages", h.ListMessages)
	r.Post("/api/sessions/{sessionID}/messages", h.CreateMessage)
	r.Put("/api/sessions/{sessionID}/read", h.MarkRead)

	r.Post("/api/agents/register", h.RegisterAgent)
	r.Post("/api/agents/login", h.LoginAgent)
	r.Get("/api/agents/me", h.CurrentAgent)
	r.Get("/api/agents", h.ListAgents)
	r.Put("/api/agents/{agentID}/status", h.UpdateAgentStatus)

	r.Post("/api/upload", h.Upload)
	r.Handle("/api/uploads/*", http.StripPrefix("/api/uploads/", http.FileServer(http.Dir(h.uploadDir))))
}

// Root is a liveness endpoint.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"message": "livechat API"})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// DomainError maps a service error to its HTTP status and writes it.
func DomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSessionClosed):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrEmailTaken):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
