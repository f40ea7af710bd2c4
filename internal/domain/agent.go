package domain

import (
	"time"
)

// DefaultRole is assigned to agents registered without an explicit role.
const DefaultRole = "agent"

// Agent represents an authenticated human operator handling chats.
// PasswordHash is persisted but never serialized to clients.
type Agent struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	IsOnline     bool      `json:"is_online"`
	CreatedAt    time.Time `json:"created_at"`
}
