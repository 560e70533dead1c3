package storage

import "fmt"

// OutcomeStats counts sessions per outcome.
type OutcomeStats struct {
	Outcome       string  `json:"outcome"`
	Sessions      int     `json:"sessions"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// ShortcutStats summarises sessions for one shortcut.
type ShortcutStats struct {
	ShortcutID     string `json:"shortcut_id"`
	Sessions       int    `json:"sessions"`
	CommittedCount int    `json:"committed_count"`
	CancelledCount int    `json:"cancelled_count"`
	FailureCount   int    `json:"failure_count"`
}

// GetOutcomeStats groups sessions of the last N days by outcome
func (db *DB) GetOutcomeStats(days int) ([]OutcomeStats, error) {
	query := `
		SELECT
			outcome,
			COUNT(*) as sessions,
			COALESCE(AVG(duration_ms), 0) as avg_duration_ms
		FROM rebind_sessions
		WHERE started_at >= datetime('now', '-' || ? || ' days')
		GROUP BY outcome
		ORDER BY sessions DESC, outcome
	`

	rows, err := db.conn.Query(query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcome stats: %w", err)
	}
	defer rows.Close()

	var stats []OutcomeStats
	for rows.Next() {
		var s OutcomeStats
		if err := rows.Scan(&s.Outcome, &s.Sessions, &s.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan outcome stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetShortcutStats groups sessions of the last N days by shortcut
func (db *DB) GetShortcutStats(days int) ([]ShortcutStats, error) {
	query := `
		SELECT
			shortcut_id,
			COUNT(*) as sessions,
			SUM(CASE WHEN outcome = 'committed' THEN 1 ELSE 0 END) as committed_count,
			SUM(CASE WHEN outcome = 'cancelled' THEN 1 ELSE 0 END) as cancelled_count,
			SUM(CASE WHEN outcome IN ('failed', 'inconsistent', 'hook_failed') THEN 1 ELSE 0 END) as failure_count
		FROM rebind_sessions
		WHERE started_at >= datetime('now', '-' || ? || ' days')
		GROUP BY shortcut_id
		ORDER BY sessions DESC, shortcut_id
	`

	rows, err := db.conn.Query(query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query shortcut stats: %w", err)
	}
	defer rows.Close()

	var stats []ShortcutStats
	for rows.Next() {
		var s ShortcutStats
		if err := rows.Scan(&s.ShortcutID, &s.Sessions, &s.CommittedCount, &s.CancelledCount, &s.FailureCount); err != nil {
			return nil, fmt.Errorf("failed to scan shortcut stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}
