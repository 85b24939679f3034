package registry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// SQLite is a Registry backed by the entities table of the Komando database.
// Hosts that mirror their business records (partners, products) into that
// table get fuzzy lookup without the core ever touching the host system.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a SQLite registry over db. The entities migration must
// have been applied (store.Open runs all migrations on startup).
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Lookup scans all entities of the kind and scores them in memory. Fuzzy
// similarity cannot be expressed in SQL; entity sets per kind are small
// enough for a full scan.
func (s *SQLite) Lookup(ctx context.Context, kind, query string, threshold float64) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, display_name FROM entities WHERE kind = ?
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("registry: lookup %q: %w", kind, err)
	}
	defer rows.Close()

	var hits []Candidate
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("registry: scan entity: %w", err)
		}
		if score := Score(query, name); score >= threshold {
			hits = append(hits, Candidate{ID: id, DisplayName: name, Score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: iterate entities: %w", err)
	}
	return rank(hits), nil
}

// Create inserts a new entity of the given kind with a generated ID.
func (s *SQLite) Create(ctx context.Context, kind, displayName string) (Candidate, error) {
	if displayName == "" {
		return Candidate{}, fmt.Errorf("registry: display name must not be empty")
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (kind, entity_id, display_name) VALUES (?, ?, ?)
	`, kind, id, displayName)
	if err != nil {
		return Candidate{}, fmt.Errorf("registry: create %s %q: %w", kind, displayName, err)
	}
	return Candidate{ID: id, DisplayName: displayName, Score: 1.0}, nil
}
