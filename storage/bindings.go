package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Binding is the persisted shortcut-id-to-combination mapping.
type Binding struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	CurrentBinding string    `json:"current_binding"`
	DefaultBinding string    `json:"default_binding"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SeedBindings inserts bindings that do not exist yet. Name, description and
// default are refreshed for existing rows; the current binding is kept.
func (db *DB) SeedBindings(bindings []Binding) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO bindings (id, name, description, current_binding, default_binding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			default_binding = excluded.default_binding
	`
	for _, b := range bindings {
		current := b.CurrentBinding
		if current == "" {
			current = b.DefaultBinding
		}
		if _, err := tx.Exec(query, b.ID, b.Name, b.Description, current, b.DefaultBinding); err != nil {
			return fmt.Errorf("failed to seed binding %s: %w", b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}
	return nil
}

// GetBinding returns the binding for id, or ErrNotFound.
func (db *DB) GetBinding(id string) (*Binding, error) {
	query := `
		SELECT id, name, description, current_binding, default_binding, updated_at
		FROM bindings
		WHERE id = ?
	`

	var b Binding
	err := db.conn.QueryRow(query, id).Scan(
		&b.ID, &b.Name, &b.Description, &b.CurrentBinding, &b.DefaultBinding, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("binding %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query binding: %w", err)
	}
	return &b, nil
}

// ListBindings returns every binding ordered by id.
func (db *DB) ListBindings() ([]Binding, error) {
	query := `
		SELECT id, name, description, current_binding, default_binding, updated_at
		FROM bindings
		ORDER BY id
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query bindings: %w", err)
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.CurrentBinding, &b.DefaultBinding, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		bindings = append(bindings, b)
	}

	return bindings, rows.Err()
}

// SetBinding writes the current combination for id.
func (db *DB) SetBinding(id, combination string) error {
	query := `UPDATE bindings SET current_binding = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := db.conn.Exec(query, combination, id)
	if err != nil {
		return fmt.Errorf("failed to update binding: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("binding %s: %w", id, ErrNotFound)
	}

	return nil
}
