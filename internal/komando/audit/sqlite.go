package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avasile/komando/common/retry"
)

// SQLiteSink appends entries to the audit_log table. Appends are retried
// briefly so a writer holding the database lock does not drop audit records.
type SQLiteSink struct {
	DB    *sql.DB
	Now   func() time.Time
	Retry retry.Policy
}

func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{DB: db, Now: time.Now, Retry: retry.DefaultPolicy}
}

func (s *SQLiteSink) Append(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		now := s.Now
		if now == nil {
			now = time.Now
		}
		e.Timestamp = now()
	}
	payload := ""
	if len(e.Payload) > 0 {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("audit: marshal payload: %w", err)
		}
		payload = string(data)
	}

	err := retry.Do(ctx, s.Retry, func() error {
		_, err := s.DB.ExecContext(ctx, `
			INSERT INTO audit_log (session_id, severity, message, payload, actor, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.SessionID, string(e.Severity), e.Message, payload, e.Actor, e.Timestamp.UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, session_id, severity, message, payload, actor, created_at
		FROM audit_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// BySession returns a session's full trail in insertion order.
func (s *SQLiteSink) BySession(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, session_id, severity, message, payload, actor, created_at
		FROM audit_log
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("audit: query session %s: %w", sessionID, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// PruneOlderThan deletes entries created before cutoff and reports how many
// were removed. Hosts run this on a timer with the configured retention.
func (s *SQLiteSink) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		"DELETE FROM audit_log WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("audit: prune count: %w", err)
	}
	return n, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var severity, payload string
		if err := rows.Scan(&e.ID, &e.SessionID, &severity, &e.Message,
			&payload, &e.Actor, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		e.Severity = Severity(severity)
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				return nil, fmt.Errorf("audit: decode payload: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entries: %w", err)
	}
	return out, nil
}
