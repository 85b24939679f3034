package audit_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/avasile/komando/internal/komando/audit"
	"github.com/avasile/komando/internal/komando/store"
)

func newTestSink(t *testing.T) *audit.SQLiteSink {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return audit.NewSQLiteSink(s.DB())
}

func TestAppendAndBySession(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	entries := []audit.Entry{
		{SessionID: "sess-1", Severity: audit.SeverityInfo, Message: "intent matched", Actor: "topu",
			Payload: audit.Payload{"intent": "sale.create", "confidence": 0.82}},
		{SessionID: "sess-1", Severity: audit.SeveritySuccess, Message: "command executed", Actor: "topu"},
		{SessionID: "sess-2", Severity: audit.SeverityWarning, Message: "session aborted"},
	}
	for _, e := range entries {
		if err := sink.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	trail, err := sink.BySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("trail length = %d, want 2", len(trail))
	}
	if trail[0].Message != "intent matched" || trail[1].Message != "command executed" {
		t.Fatalf("trail order = %q, %q", trail[0].Message, trail[1].Message)
	}
	if trail[0].Payload["intent"] != "sale.create" {
		t.Fatalf("payload = %#v", trail[0].Payload)
	}
	if trail[0].Timestamp.IsZero() {
		t.Fatalf("Append did not stamp the entry")
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	for _, msg := range []string{"first", "second", "third"} {
		if err := sink.Append(ctx, audit.Entry{Severity: audit.SeverityInfo, Message: msg}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recent, err := sink.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Message != "third" || recent[1].Message != "second" {
		t.Fatalf("Recent = %#v", recent)
	}
}

func TestPruneOlderThan(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	old := audit.Entry{Severity: audit.SeverityInfo, Message: "old", Timestamp: base}
	fresh := audit.Entry{Severity: audit.SeverityInfo, Message: "fresh", Timestamp: base.AddDate(0, 2, 0)}
	for _, e := range []audit.Entry{old, fresh} {
		if err := sink.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	n, err := sink.PruneOlderThan(ctx, base.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}

	recent, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Message != "fresh" {
		t.Fatalf("Recent after prune = %#v", recent)
	}
}
