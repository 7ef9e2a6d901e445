package proactive

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrEngagementNotFound is returned when a status transition targets an
// engagement id that does not exist.
var ErrEngagementNotFound = errors.New("engagement not found")

const timeLayout = time.RFC3339Nano

type EngagementStatus string

const (
	EngagementPending   EngagementStatus = "pending"
	EngagementDelivered EngagementStatus = "delivered"
)

// Engagement is one scheduled character-initiated message. It is consumed
// exactly once: transitioned to delivered, or left pending for a later
// scan. Never silently dropped.
type Engagement struct {
	ID                 string
	UserID             string
	SessionID          string
	CharacterID        string
	TriggerContext     string
	EngagementContent  string
	Status             EngagementStatus
	DueAt              time.Time
	DeliveredMessageID string
	CreatedAt          time.Time
}

// Store persists engagements in the shared sqlite database.
type Store struct {
	db    *sql.DB
	newID func() string
	now   func() time.Time
}

func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{
		db:    db,
		newID: uuid.NewString,
		now:   time.Now,
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS engagements (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			character_id TEXT NOT NULL,
			trigger_context TEXT NOT NULL,
			engagement_content TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			due_at TEXT NOT NULL,
			delivered_message_id TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_engagements_due ON engagements(status, due_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init engagement schema: %w", err)
		}
	}
	return nil
}

// Create enqueues an engagement for the scan loop.
func (s *Store) Create(userID, sessionID, characterID, triggerContext, content string, dueAt time.Time) (Engagement, error) {
	eng := Engagement{
		ID:                s.newID(),
		UserID:            userID,
		SessionID:         sessionID,
		CharacterID:       characterID,
		TriggerContext:    triggerContext,
		EngagementContent: content,
		Status:            EngagementPending,
		DueAt:             dueAt.UTC(),
		CreatedAt:         s.now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO engagements
		 (id, user_id, session_id, character_id, trigger_context, engagement_content, status, due_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		eng.ID, eng.UserID, eng.SessionID, eng.CharacterID,
		eng.TriggerContext, eng.EngagementContent, string(eng.Status),
		eng.DueAt.Format(timeLayout), eng.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Engagement{}, fmt.Errorf("create engagement (user %s): %w", userID, err)
	}
	return eng, nil
}

// DuePending returns pending engagements whose due time has passed,
// oldest first.
func (s *Store) DuePending(now time.Time, limit int) ([]Engagement, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, user_id, session_id, character_id, trigger_context,
		        engagement_content, status, due_at, delivered_message_id, created_at
		 FROM engagements
		 WHERE status = ? AND due_at <= ?
		 ORDER BY due_at ASC
		 LIMIT ?`,
		string(EngagementPending), now.UTC().Format(timeLayout), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("due pending engagements: %w", err)
	}
	defer rows.Close()

	result := make([]Engagement, 0)
	for rows.Next() {
		eng, err := scanEngagement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, eng)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate engagements: %w", err)
	}
	return result, nil
}

// MarkDelivered transitions an engagement to delivered with the persisted
// message attached. A pending row can only be consumed once.
func (s *Store) MarkDelivered(id, messageID string) error {
	res, err := s.db.Exec(
		`UPDATE engagements
		 SET status = ?, delivered_message_id = ?
		 WHERE id = ? AND status = ?`,
		string(EngagementDelivered), messageID, id, string(EngagementPending),
	)
	if err != nil {
		return fmt.Errorf("mark engagement %s delivered: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark engagement %s delivered: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("engagement %s: %w", id, ErrEngagementNotFound)
	}
	return nil
}

// Get is mainly for inspection and tests.
func (s *Store) Get(id string) (*Engagement, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, session_id, character_id, trigger_context,
		        engagement_content, status, due_at, delivered_message_id, created_at
		 FROM engagements WHERE id = ?`,
		id,
	)
	eng, err := scanEngagement(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("engagement %s: %w", id, ErrEngagementNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get engagement %s: %w", id, err)
	}
	return &eng, nil
}

type engagementRow interface {
	Scan(dest ...any) error
}

func scanEngagement(row engagementRow) (Engagement, error) {
	var eng Engagement
	var status, dueAt, createdAt string
	var deliveredID sql.NullString
	if err := row.Scan(
		&eng.ID, &eng.UserID, &eng.SessionID, &eng.CharacterID,
		&eng.TriggerContext, &eng.EngagementContent, &status,
		&dueAt, &deliveredID, &createdAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return Engagement{}, err
		}
		return Engagement{}, fmt.Errorf("scan engagement: %w", err)
	}
	eng.Status = EngagementStatus(status)
	eng.DueAt, _ = time.Parse(timeLayout, dueAt)
	eng.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if deliveredID.Valid {
		eng.DeliveredMessageID = deliveredID.String
	}
	return eng, nil
}
