package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/quickdesk/livechat/internal/domain"
)

type createVisitorRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// CreateVisitor registers a new anonymous visitor.
func (h *Handler) CreateVisitor(w http.ResponseWriter, r *http.Request) {
	var req createVisitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	source := req.Source
	if source == "" {
		source = domain.DefaultSource
	}

	now := time.Now().UTC()
	visitor := &domain.Visitor{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Source:     source,
		CreatedAt:  now,
		LastActive: now,
	}

	if err := h.repo.CreateVisitor(r.Context(), visitor); err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusCreated, visitor)
}

// GetVisitor returns a visitor by id.
func (h *Handler) GetVisitor(w http.ResponseWriter, r *http.Request) {
	visitor, err := h.repo.GetVisitor(r.Context(), chi.URLParam(r, "visitorID"))
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, visitor)
}
