package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound reports that no snapshot exists for the ID.
var ErrSessionNotFound = errors.New("store: session not found")

// SessionRecord is a persisted session snapshot. Snapshot holds the session
// layer's JSON serialization; the store treats it as opaque and only indexes
// the columns hosts filter on.
type SessionRecord struct {
	ID         string
	Actor      string
	State      string
	IntentKey  string
	Transcript string
	Snapshot   []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SaveSession inserts or replaces the snapshot for rec.ID.
func (s *Store) SaveSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, actor, state, intent_key, transcript, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			actor = excluded.actor,
			state = excluded.state,
			intent_key = excluded.intent_key,
			transcript = excluded.transcript,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at
	`, rec.ID, rec.Actor, rec.State, rec.IntentKey, rec.Transcript, string(rec.Snapshot),
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

// GetSession loads the snapshot for id.
func (s *Store) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, actor, state, intent_key, transcript, snapshot, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return rec, nil
}

// ListSessions returns the most recently updated snapshots, newest first.
// A state filter of "" lists all states.
func (s *Store) ListSessions(ctx context.Context, state string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, actor, state, intent_key, transcript, snapshot, created_at, updated_at
		FROM sessions
	`
	args := []any{}
	if state != "" {
		query += " WHERE state = ?"
		args = append(args, state)
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// DeleteSession removes a snapshot. Missing IDs are not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (SessionRecord, error) {
	var rec SessionRecord
	var snapshot string
	if err := row.Scan(&rec.ID, &rec.Actor, &rec.State, &rec.IntentKey,
		&rec.Transcript, &snapshot, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return SessionRecord{}, err
	}
	rec.Snapshot = []byte(snapshot)
	return rec, nil
}
