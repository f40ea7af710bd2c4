// Package chat implements the live session routing core: the session
// lifecycle state machine, the message router, and presence tracking.
package chat

// Envelope type discriminants accepted from either side of the wire.
// Envelopes with any other type are ignored without closing the
// connection.
const (
	EnvelopeMessage = "message"
	EnvelopeTyping  = "typing"
)

// Envelope is a single inbound real-time event. Visitor envelopes
// carry VisitorID (the session id arrives with the connection); agent
// envelopes carry SessionID.
type Envelope struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id,omitempty"`
	VisitorID   string `json:"visitor_id,omitempty"`
	SenderName  string `json:"sender_name,omitempty"`
	Content     string `json:"content,omitempty"`
	MessageType string `json:"message_type,omitempty"`
	FileURL     string `json:"file_url,omitempty"`
	FileName    string `json:"file_name,omitempty"`
}
