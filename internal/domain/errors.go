package domain

import "errors"

// Sentinel errors surfaced by the store and chat services. The API
// layer maps them to HTTP statuses with errors.Is.
var (
	// ErrNotFound indicates a referenced visitor, session, agent, or
	// message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionClosed indicates an operation was attempted against a
	// closed session. Closed is terminal; nothing is mutated.
	ErrSessionClosed = errors.New("session is closed")

	// ErrEmailTaken indicates an agent registration reused an email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials covers failed logins and bad tokens.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
