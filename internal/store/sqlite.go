package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quickdesk/livechat/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS visitors (
		id TEXT PRIMARY KEY,
		name TEXT,
		source TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_active INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		is_online INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		visitor_id TEXT NOT NULL,
		visitor_name TEXT,
		assigned_agent_id TEXT,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		last_message TEXT,
		unread_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_visitor_status ON chat_sessions(visitor_id, status);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON chat_sessions(updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender_type TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT,
		content TEXT NOT NULL,
		message_type TEXT NOT NULL,
		file_url TEXT,
		file_name TEXT,
		created_at INTEGER NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateVisitor persists a new visitor record.
func (s *SQLiteStore) CreateVisitor(ctx context.Context, v *domain.Visitor) error {
	query := `INSERT INTO visitors (id, name, source, created_at, last_active) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		v.ID, nullString(v.Name), v.Source, v.CreatedAt.UnixMilli(), v.LastActive.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert visitor: %w", err)
	}
	return nil
}

// GetVisitor retrieves a visitor by id.
func (s *SQLiteStore) GetVisitor(ctx context.Context, visitorID string) (*domain.Visitor, error) {
	query := `SELECT id, name, source, created_at, last_active FROM visitors WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, visitorID)

	var v domain.Visitor
	var name sql.NullString
	var createdAt, lastActive int64

	err := row.Scan(&v.ID, &name, &v.Source, &createdAt, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("visitor %s: %w", visitorID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan visitor row: %w", err)
	}

	v.Name = name.String
	v.CreatedAt = time.UnixMilli(createdAt)
	v.LastActive = time.UnixMilli(lastActive)
	return &v, nil
}

// TouchVisitor refreshes a visitor's last_active timestamp.
func (s *SQLiteStore) TouchVisitor(ctx context.Context, visitorID string, lastActive time.Time) error {
	query := `UPDATE visitors SET last_active = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, lastActive.UnixMilli(), visitorID)
	if err != nil {
		return fmt.Errorf("update last_active: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchVisitor affected 0 rows", "visitor_id", visitorID)
	}
	return nil
}

// CreateSession returns the visitor's existing open session, or
// inserts and returns session when none exists.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.ChatSession) (*domain.ChatSession, bool, error) {
	existing, err := s.openSessionForVisitor(ctx, session.VisitorID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	query := `
	INSERT INTO chat_sessions (id, visitor_id, visitor_name, assigned_agent_id, status, created_at, updated_at, last_message, unread_count)
	VALUES (?, ?, ?, NULL, ?, ?, ?, NULL, 0)`
	_, err = s.db.ExecContext(ctx, query,
		session.ID, session.VisitorID, nullString(session.VisitorName),
		session.Status, session.CreatedAt.UnixMilli(), session.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert session: %w", err)
	}
	return session, true, nil
}

func (s *SQLiteStore) openSessionForVisitor(ctx context.Context, visitorID string) (*domain.ChatSession, error) {
	query := sessionSelect + ` WHERE visitor_id = ? AND status IN (?, ?) LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, visitorID, domain.StatusWaiting, domain.StatusActive)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan open session: %w", err)
	}
	return session, nil
}

const sessionSelect = `
	SELECT id, visitor_id, visitor_name, assigned_agent_id, status,
	       created_at, updated_at, last_message, unread_count
	FROM chat_sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.ChatSession, error) {
	var session domain.ChatSession
	var visitorName, agentID, lastMessage sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&session.ID, &session.VisitorID, &visitorName, &agentID, &session.Status,
		&createdAt, &updatedAt, &lastMessage, &session.UnreadCount,
	)
	if err != nil {
		return nil, err
	}

	session.VisitorName = visitorName.String
	session.AssignedAgentID = agentID.String
	session.LastMessage = lastMessage.String
	session.CreatedAt = time.UnixMilli(createdAt)
	session.UpdatedAt = time.UnixMilli(updatedAt)
	return &session, nil
}

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	row := s.db.QueryRowContext(ctx, sessionSelect+` WHERE id = ?`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions ordered by updated_at descending.
func (s *SQLiteStore) ListSessions(ctx context.Context, status, agentID string, limit int) ([]*domain.ChatSession, error) {
	query := sessionSelect
	var conds []string
	var args []any

	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}
	if agentID != "" {
		conds = append(conds, "assigned_agent_id = ?")
		args = append(args, agentID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSessionAssignment assigns an agent and activates the session.
// The WHERE clause excludes closed sessions so a racing close cannot
// be overwritten.
func (s *SQLiteStore) UpdateSessionAssignment(ctx context.Context, sessionID, agentID string, updatedAt time.Time) error {
	query := `
	UPDATE chat_sessions SET assigned_agent_id = ?, status = ?, updated_at = ?
	WHERE id = ? AND status != ?`
	result, err := s.db.ExecContext(ctx, query,
		agentID, domain.StatusActive, updatedAt.UnixMilli(), sessionID, domain.StatusClosed,
	)
	if err != nil {
		return fmt.Errorf("update session assignment: %w", err)
	}
	return s.openSessionMutationResult(ctx, result, sessionID)
}

// UpdateSessionStatus transitions the session status, refusing to
// mutate closed sessions.
func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID, status string, updatedAt time.Time) error {
	query := `UPDATE chat_sessions SET status = ?, updated_at = ? WHERE id = ? AND status != ?`
	result, err := s.db.ExecContext(ctx, query,
		status, updatedAt.UnixMilli(), sessionID, domain.StatusClosed,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return s.openSessionMutationResult(ctx, result, sessionID)
}

// AppendSessionSummary updates the preview fields after a message.
func (s *SQLiteStore) AppendSessionSummary(ctx context.Context, sessionID, preview string, incrementUnread bool, updatedAt time.Time) error {
	increment := 0
	if incrementUnread {
		increment = 1
	}
	query := `
	UPDATE chat_sessions SET last_message = ?, updated_at = ?, unread_count = unread_count + ?
	WHERE id = ? AND status != ?`
	result, err := s.db.ExecContext(ctx, query,
		preview, updatedAt.UnixMilli(), increment, sessionID, domain.StatusClosed,
	)
	if err != nil {
		return fmt.Errorf("update session summary: %w", err)
	}
	return s.openSessionMutationResult(ctx, result, sessionID)
}

// openSessionMutationResult distinguishes a missing session from a
// closed one when an open-session UPDATE matched no rows.
func (s *SQLiteStore) openSessionMutationResult(ctx context.Context, result sql.Result, sessionID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM chat_sessions WHERE id = ?`, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check session status: %w", err)
	}
	if status == domain.StatusClosed {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionClosed)
	}
	return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
}

// ResetUnread zeroes the session's unread counter.
func (s *SQLiteStore) ResetUnread(ctx context.Context, sessionID string) error {
	query := `UPDATE chat_sessions SET unread_count = 0 WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

// CreateMessage persists a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	query := `
	INSERT INTO messages (id, session_id, sender_type, sender_id, sender_name, content, message_type, file_url, file_name, created_at, is_read)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SessionID, msg.SenderType, msg.SenderID, nullString(msg.SenderName),
		msg.Content, msg.MessageType, nullString(msg.FileURL), nullString(msg.FileName),
		msg.CreatedAt.UnixMilli(), msg.IsRead,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns messages in ascending created_at order; rowid
// breaks same-millisecond ties so insertion order is preserved.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*domain.Message, error) {
	query := `
	SELECT id, session_id, sender_type, sender_id, sender_name, content,
	       message_type, file_url, file_name, created_at, is_read
	FROM messages WHERE session_id = ?
	ORDER BY created_at ASC, rowid ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var messages []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var senderName, fileURL, fileName sql.NullString
		var createdAt int64

		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &msg.SenderType, &msg.SenderID, &senderName,
			&msg.Content, &msg.MessageType, &fileURL, &fileName, &createdAt, &msg.IsRead,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}

		msg.SenderName = senderName.String
		msg.FileURL = fileURL.String
		msg.FileName = fileName.String
		msg.CreatedAt = time.UnixMilli(createdAt)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// MarkAllRead flags every unread message in a session as read.
func (s *SQLiteStore) MarkAllRead(ctx context.Context, sessionID string) error {
	query := `UPDATE messages SET is_read = 1 WHERE session_id = ? AND is_read = 0`
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}

// CreateAgent persists a new agent record.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	query := `
	INSERT INTO agents (id, email, password_hash, name, role, is_online, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		agent.ID, agent.Email, agent.PasswordHash, agent.Name, agent.Role,
		agent.IsOnline, agent.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("agent email %s: %w", agent.Email, domain.ErrEmailTaken)
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

const agentSelect = `SELECT id, email, password_hash, name, role, is_online, created_at FROM agents`

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var agent domain.Agent
	var createdAt int64
	err := row.Scan(
		&agent.ID, &agent.Email, &agent.PasswordHash, &agent.Name,
		&agent.Role, &agent.IsOnline, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	agent.CreatedAt = time.UnixMilli(createdAt)
	return &agent, nil
}

// GetAgent retrieves an agent by id.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx, agentSelect+` WHERE id = ?`, agentID)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}
	return agent, nil
}

// GetAgentByEmail retrieves an agent by email.
func (s *SQLiteStore) GetAgentByEmail(ctx context.Context, email string) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx, agentSelect+` WHERE email = ?`, email)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent email %s: %w", email, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}
	return agent, nil
}

// ListAgents returns all registered agents.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx, agentSelect+` ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close agent rows", "error", closeErr)
		}
	}()

	var agents []*domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// SetAgentOnline updates the agent's persisted presence flag.
func (s *SQLiteStore) SetAgentOnline(ctx context.Context, agentID string, online bool) error {
	query := `UPDATE agents SET is_online = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, online, agentID)
	if err != nil {
		return fmt.Errorf("update agent online flag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("SetAgentOnline affected 0 rows", "agent_id", agentID)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
