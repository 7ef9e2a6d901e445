package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout keeps stored timestamps lexically sortable.
const timeLayout = time.RFC3339Nano

// Engine owns the sqlite database holding chat history and memory weights.
type Engine struct {
	db    *sql.DB
	newID func() string
	now   func() time.Time
}

func NewEngine(dbPath string) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	e := &Engine{
		db:    db,
		newID: uuid.NewString,
		now:   time.Now,
	}
	if err := e.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := e.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := e.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (e *Engine) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS memory_weights (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL UNIQUE REFERENCES messages(id) ON DELETE CASCADE,
			session_id TEXT NOT NULL,
			emotional_impact INTEGER NOT NULL DEFAULT 0,
			relationship_relevance INTEGER NOT NULL DEFAULT 0,
			personal_significance INTEGER NOT NULL DEFAULT 0,
			contextual_importance INTEGER NOT NULL DEFAULT 0,
			memory_type TEXT NOT NULL DEFAULT 'conversational',
			recall_frequency INTEGER NOT NULL DEFAULT 0,
			last_recalled_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_weights_session ON memory_weights(session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := e.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// DB exposes the underlying handle so sibling stores (engagements) can
// share one database file.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// AppendMessage writes one immutable chat history row.
func (e *Engine) AppendMessage(sessionID, role, content string) (Message, error) {
	msg := Message{
		ID:        e.newID(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: e.now().UTC(),
	}
	_, err := e.db.Exec(
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Message{}, fmt.Errorf("append message (session %s): %w", sessionID, err)
	}
	return msg, nil
}

// MessagesByIDs resolves message ids to content in chronological order.
// Ids that do not exist in the session are skipped.
func (e *Engine) MessagesByIDs(sessionID string, ids []string) ([]Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, sessionID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := e.db.Query(
		`SELECT id, session_id, role, content, created_at
		 FROM messages
		 WHERE session_id = ? AND id IN (`+placeholders+`)
		 ORDER BY created_at ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("messages by ids (session %s): %w", sessionID, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the trailing limit messages in chronological order.
func (e *Engine) RecentMessages(sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := e.db.Query(
		`SELECT id, session_id, role, content, created_at
		 FROM messages
		 WHERE session_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages (session %s): %w", sessionID, err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// DeleteSession removes a session's history; weights cascade with it.
func (e *Engine) DeleteSession(sessionID string) error {
	if _, err := e.db.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	result := make([]Message, 0)
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
