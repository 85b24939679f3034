package intent_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/avasile/komando/internal/komando/intent"
)

func TestLoadFileAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(validCatalog), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	l, err := intent.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if l.Snapshot().Len() != 2 {
		t.Fatalf("expected 2 intents, got %d", l.Snapshot().Len())
	}

	// Operations that took a snapshot keep it across reloads.
	before := l.Snapshot()

	smaller := `
apiVersion: komando/v1
intents:
  - key: sale_create
    risk: medium
    phrases: [sell something]
`
	if err := os.WriteFile(path, []byte(smaller), 0o600); err != nil {
		t.Fatalf("rewrite catalog: %v", err)
	}
	if err := l.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if before.Len() != 2 {
		t.Errorf("pre-reload snapshot mutated: len=%d", before.Len())
	}
	if l.Snapshot().Len() != 1 {
		t.Errorf("post-reload snapshot: got %d intents, want 1", l.Snapshot().Len())
	}
}

func TestReload_KeepsOldSnapshotOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(validCatalog), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	l, err := intent.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if err := os.WriteFile(path, []byte("apiVersion: wrong"), 0o600); err != nil {
		t.Fatalf("rewrite catalog: %v", err)
	}
	if err := l.Reload(); err == nil {
		t.Fatal("expected reload error for invalid catalog")
	}
	if l.Snapshot().Len() != 2 {
		t.Errorf("snapshot should be unchanged after failed reload, got %d", l.Snapshot().Len())
	}
}

func TestUsageCounters(t *testing.T) {
	c, err := intent.Parse([]byte(validCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	l := intent.NewLoader(c)

	l.RecordMatch("sale_create")
	l.RecordMatch("sale_create")
	l.RecordExecution("sale_create")

	u := l.UsageFor("sale_create")
	if u.Matched != 2 || u.Executed != 1 {
		t.Errorf("usage: got %+v, want Matched=2 Executed=1", u)
	}
	if u := l.UsageFor("inventory_adjust"); u.Matched != 0 {
		t.Errorf("untouched intent should have zero usage, got %+v", u)
	}
}
