package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/quickdesk/livechat/internal/auth"
	"github.com/quickdesk/livechat/internal/domain"
)

type registerAgentRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// RegisterAgent creates a new agent account.
func (h *Handler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		Error(w, http.StatusBadRequest, "email, password, and name are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	role := req.Role
	if role == "" {
		role = domain.DefaultRole
	}

	agent := &domain.Agent{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.repo.CreateAgent(r.Context(), agent); err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusCreated, agent)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string        `json:"token"`
	Agent *domain.Agent `json:"agent"`
}

// LoginAgent verifies credentials and issues a token.
func (h *Handler) LoginAgent(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agent, err := h.repo.GetAgentByEmail(r.Context(), req.Email)
	if err != nil || !auth.VerifyPassword(req.Password, agent.PasswordHash) {
		Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.Issue(agent.ID, agent.Email)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	JSON(w, http.StatusOK, loginResponse{Token: token, Agent: agent})
}

// CurrentAgent resolves the agent identified by a token.
func (h *Handler) CurrentAgent(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		DomainError(w, err)
		return
	}

	agent, err := h.repo.GetAgent(r.Context(), claims.AgentID)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, agent)
}

// ListAgents returns all registered agents.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.repo.ListAgents(r.Context())
	if err != nil {
		DomainError(w, err)
		return
	}
	if agents == nil {
		agents = []*domain.Agent{}
	}
	JSON(w, http.StatusOK, agents)
}

// UpdateAgentStatus manually overrides an agent's online flag.
func (h *Handler) UpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if _, err := h.repo.GetAgent(r.Context(), agentID); err != nil {
		DomainError(w, err)
		return
	}

	online := r.URL.Query().Get("is_online") == "true"
	if err := h.repo.SetAgentOnline(r.Context(), agentID, online); err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
