package memory

import (
	"database/sql"
	"fmt"
	"strings"
)

// SaveWeight scores a message for the first time. A message is scored
// exactly once; rescoring goes through UpdateWeights.
func (e *Engine) SaveWeight(sessionID, messageID string, v WeightVector) (string, error) {
	v = v.Clamped()
	now := e.now().UTC().Format(timeLayout)
	id := e.newID()

	res, err := e.db.Exec(
		`INSERT OR IGNORE INTO memory_weights
		 (id, message_id, session_id, emotional_impact, relationship_relevance,
		  personal_significance, contextual_importance, memory_type,
		  recall_frequency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, messageID, sessionID,
		v.EmotionalImpact, v.RelationshipRelevance, v.PersonalSignificance, v.ContextualImportance,
		string(v.MemoryType), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("save weight (session %s, message %s): %w", sessionID, messageID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("save weight (session %s, message %s): %w", sessionID, messageID, err)
	}
	if affected == 0 {
		return "", fmt.Errorf("save weight (session %s, message %s): %w", sessionID, messageID, ErrWeightExists)
	}
	return id, nil
}

// GetWeight returns the weight for a message, or nil when the message was
// never scored.
func (e *Engine) GetWeight(sessionID, messageID string) (*MemoryWeight, error) {
	row := e.db.QueryRow(
		`SELECT id, message_id, session_id, emotional_impact, relationship_relevance,
		        personal_significance, contextual_importance, memory_type,
		        recall_frequency, last_recalled_at, created_at, updated_at
		 FROM memory_weights
		 WHERE session_id = ? AND message_id = ?`,
		sessionID, messageID,
	)

	w, err := scanWeight(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get weight (session %s, message %s): %w", sessionID, messageID, err)
	}
	return &w, nil
}

// UpdateWeights rescores an existing weight. Unknown session/message is a
// not-found error, never a silent no-op.
func (e *Engine) UpdateWeights(sessionID, messageID string, v WeightVector) error {
	v = v.Clamped()
	res, err := e.db.Exec(
		`UPDATE memory_weights
		 SET emotional_impact = ?, relationship_relevance = ?,
		     personal_significance = ?, contextual_importance = ?,
		     memory_type = ?, updated_at = ?
		 WHERE session_id = ? AND message_id = ?`,
		v.EmotionalImpact, v.RelationshipRelevance, v.PersonalSignificance, v.ContextualImportance,
		string(v.MemoryType), e.now().UTC().Format(timeLayout),
		sessionID, messageID,
	)
	if err != nil {
		return fmt.Errorf("update weights (session %s, message %s): %w", sessionID, messageID, err)
	}
	return e.requireAffected(res, sessionID, messageID)
}

// IncrementRecall bumps the recall counter atomically in SQL so concurrent
// recalls never lose updates.
func (e *Engine) IncrementRecall(sessionID, messageID string) error {
	now := e.now().UTC().Format(timeLayout)
	res, err := e.db.Exec(
		`UPDATE memory_weights
		 SET recall_frequency = recall_frequency + 1,
		     last_recalled_at = ?, updated_at = ?
		 WHERE session_id = ? AND message_id = ?`,
		now, now, sessionID, messageID,
	)
	if err != nil {
		return fmt.Errorf("increment recall (session %s, message %s): %w", sessionID, messageID, err)
	}
	return e.requireAffected(res, sessionID, messageID)
}

func (e *Engine) requireAffected(res sql.Result, sessionID, messageID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("weight rows affected (session %s, message %s): %w", sessionID, messageID, err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s, message %s: %w", sessionID, messageID, ErrWeightNotFound)
	}
	return nil
}

// TopBySignificance returns scored messages for a session, excluding the
// given ids, floored at minTotal and ranked by RankBySignificance. A
// limit <= 0 means unbounded.
func (e *Engine) TopBySignificance(sessionID string, excludeIDs []string, minTotal, limit int) ([]WeightedMessage, error) {
	query := `SELECT m.id, m.session_id, m.role, m.content, m.created_at,
	                 w.id, w.message_id, w.session_id, w.emotional_impact,
	                 w.relationship_relevance, w.personal_significance,
	                 w.contextual_importance, w.memory_type, w.recall_frequency,
	                 w.last_recalled_at, w.created_at, w.updated_at
	          FROM memory_weights w
	          JOIN messages m ON m.id = w.message_id
	          WHERE w.session_id = ?`
	args := []any{sessionID}

	if len(excludeIDs) > 0 {
		placeholders := strings.Repeat("?,", len(excludeIDs))
		query += ` AND w.message_id NOT IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}

	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("top by significance (session %s): %w", sessionID, err)
	}
	defer rows.Close()

	result := make([]WeightedMessage, 0)
	for rows.Next() {
		var m Message
		var w MemoryWeight
		var msgCreated, wCreated, wUpdated string
		var lastRecalled sql.NullString
		var memType string
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.Role, &m.Content, &msgCreated,
			&w.ID, &w.MessageID, &w.SessionID,
			&w.Vector.EmotionalImpact, &w.Vector.RelationshipRelevance,
			&w.Vector.PersonalSignificance, &w.Vector.ContextualImportance,
			&memType, &w.RecallFrequency, &lastRecalled, &wCreated, &wUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan weighted message: %w", err)
		}
		m.CreatedAt = parseTime(msgCreated)
		w.Vector.MemoryType = MemoryType(memType)
		w.CreatedAt = parseTime(wCreated)
		w.UpdatedAt = parseTime(wUpdated)
		if lastRecalled.Valid {
			t := parseTime(lastRecalled.String)
			w.LastRecalledAt = &t
		}
		result = append(result, WeightedMessage{
			Message:           m,
			Weight:            w,
			TotalSignificance: w.Vector.Total(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weighted messages: %w", err)
	}

	return RankBySignificance(result, minTotal, limit), nil
}

type weightRow interface {
	Scan(dest ...any) error
}

func scanWeight(row weightRow) (MemoryWeight, error) {
	var w MemoryWeight
	var memType string
	var lastRecalled sql.NullString
	var created, updated string
	if err := row.Scan(
		&w.ID, &w.MessageID, &w.SessionID,
		&w.Vector.EmotionalImpact, &w.Vector.RelationshipRelevance,
		&w.Vector.PersonalSignificance, &w.Vector.ContextualImportance,
		&memType, &w.RecallFrequency, &lastRecalled, &created, &updated,
	); err != nil {
		return MemoryWeight{}, err
	}
	w.Vector.MemoryType = MemoryType(memType)
	w.CreatedAt = parseTime(created)
	w.UpdatedAt = parseTime(updated)
	if lastRecalled.Valid {
		t := parseTime(lastRecalled.String)
		w.LastRecalledAt = &t
	}
	return w, nil
}
