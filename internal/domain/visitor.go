// Package domain contains core domain types for the live chat service.
package domain

import (
	"time"
)

// DefaultSource is the channel tag applied when a visitor arrives
// without one.
const DefaultSource = "whatsapp"

// Visitor represents an anonymous end-user initiating a chat.
type Visitor struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}
