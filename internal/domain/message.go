package domain

import (
	"time"
)

// Sender types.
const (
	SenderVisitor = "visitor"
	SenderAgent   = "agent"
)

// Message content types.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageFile  = "file"
)

// Message is a single persisted chat message. Immutable once created
// except for IsRead, which only transitions false to true.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	SenderType  string    `json:"sender_type"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	FileURL     string    `json:"file_url,omitempty"`
	FileName    string    `json:"file_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	IsRead      bool      `json:"is_read"`
}
