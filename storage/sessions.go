package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// sqliteTime matches CURRENT_TIMESTAMP so datetime() comparisons hold.
const sqliteTime = "2006-01-02 15:04:05"

// Session outcomes stored in rebind_sessions.outcome.
const (
	OutcomeCommitted    = "committed"
	OutcomeCancelled    = "cancelled"
	OutcomeFailed       = "failed"
	OutcomeInconsistent = "inconsistent"
	OutcomeHookFailed   = "hook_failed"
)

// Session is one finished rebinding attempt.
type Session struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	ShortcutID      string    `json:"shortcut_id"`
	Mode            string    `json:"mode"`
	Outcome         string    `json:"outcome"`
	OriginalBinding string    `json:"original_binding"`
	NewBinding      string    `json:"new_binding"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	DurationMs      int64     `json:"duration_ms"`
}

// SaveSession saves a session to the database
func (db *DB) SaveSession(s *Session) error {
	query := `
		INSERT INTO rebind_sessions (
			session_id, shortcut_id, mode, outcome, original_binding,
			new_binding, error_message, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var errorMessage sql.NullString
	if s.ErrorMessage != "" {
		errorMessage = sql.NullString{String: s.ErrorMessage, Valid: true}
	}
	startedAt := s.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	result, err := db.conn.Exec(query,
		s.SessionID, s.ShortcutID, s.Mode, s.Outcome, s.OriginalBinding,
		s.NewBinding, errorMessage, startedAt.UTC().Format(sqliteTime), s.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	s.ID = id
	return nil
}

// GetSessions retrieves sessions with pagination, newest first
func (db *DB) GetSessions(limit, offset int) ([]Session, error) {
	query := `
		SELECT
			id, session_id, shortcut_id, mode, outcome, original_binding,
			new_binding, error_message, started_at, duration_ms
		FROM rebind_sessions
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := db.conn.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var errorMessage sql.NullString

		err := rows.Scan(
			&s.ID, &s.SessionID, &s.ShortcutID, &s.Mode, &s.Outcome, &s.OriginalBinding,
			&s.NewBinding, &errorMessage, &s.StartedAt, &s.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if errorMessage.Valid {
			s.ErrorMessage = errorMessage.String
		}

		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// DeleteSession deletes a session row by ID
func (db *DB) DeleteSession(id int64) error {
	result, err := db.conn.Exec(`DELETE FROM rebind_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("session %d: %w", id, ErrNotFound)
	}

	return nil
}

// GetSessionCount returns the total number of recorded sessions
func (db *DB) GetSessionCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM rebind_sessions").Scan(&count)
	return count, err
}
