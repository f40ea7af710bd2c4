package domain

import (
	"time"
)

// Session statuses. A session starts waiting, becomes active when an
// agent is assigned, and ends closed. Closed is terminal.
const (
	StatusWaiting = "waiting"
	StatusActive  = "active"
	StatusClosed  = "closed"
)

// PreviewLimit caps the session's last_message preview, in runes.
const PreviewLimit = 100

// ChatSession is one visitor's conversation thread with an agent.
type ChatSession struct {
	ID              string    `json:"id"`
	VisitorID       string    `json:"visitor_id"`
	VisitorName     string    `json:"visitor_name,omitempty"`
	AssignedAgentID string    `json:"assigned_agent_id,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	LastMessage     string    `json:"last_message,omitempty"`
	UnreadCount     int       `json:"unread_count"`
}

// IsOpen reports whether the session still accepts activity.
func (s *ChatSession) IsOpen() bool {
	return s.Status == StatusWaiting || s.Status == StatusActive
}

// Preview truncates content to PreviewLimit runes for the session's
// last_message field. Counting runes keeps multi-byte previews valid.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLimit {
		return content
	}
	return string(runes[:PreviewLimit])
}
