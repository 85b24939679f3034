package registry_test

import (
	"context"
	"testing"

	"github.com/avasile/komando/internal/komando/registry"
)

func TestScore_ExactName(t *testing.T) {
	if got := registry.Score("Topu Rahman", "Topu Rahman"); got != 1.0 {
		t.Errorf("exact match: got %v, want 1.0", got)
	}
	if got := registry.Score("topu rahman", "Topu Rahman"); got != 1.0 {
		t.Errorf("case-folded match: got %v, want 1.0", got)
	}
}

func TestScore_SingleTokenOfMultiWordName(t *testing.T) {
	got := registry.Score("topu", "Topu Rahman")
	if got < 0.8 {
		t.Errorf("token hit should clear the default 0.8 threshold, got %v", got)
	}
	if got >= 0.95 {
		t.Errorf("partial match must stay below a strict 0.95 threshold, got %v", got)
	}
}

func TestScore_Plural(t *testing.T) {
	if got := registry.Score("chocolates", "Chocolate"); got < 0.8 {
		t.Errorf("plural form should match singular name, got %v", got)
	}
}

func TestScore_Unrelated(t *testing.T) {
	if got := registry.Score("invoice", "Topu Rahman"); got >= 0.5 {
		t.Errorf("unrelated strings should score low, got %v", got)
	}
}

func newPartnerRegistry() *registry.Static {
	return registry.NewStatic(map[string][]registry.Entity{
		"partner": {
			{ID: "p1", DisplayName: "Topu Rahman"},
			{ID: "p2", DisplayName: "Anika Chowdhury"},
		},
		"product": {
			{ID: "pr1", DisplayName: "Chocolate"},
			{ID: "pr2", DisplayName: "Dark Chocolate"},
			{ID: "pr3", DisplayName: "Chocolate Cake"},
		},
	})
}

func TestStatic_LookupResolves(t *testing.T) {
	reg := newPartnerRegistry()

	hits, err := reg.Lookup(context.Background(), "partner", "topu", 0.8)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(hits))
	}
	if hits[0].ID != "p1" {
		t.Errorf("expected p1, got %q", hits[0].ID)
	}
}

func TestStatic_LookupStrictThresholdEmpty(t *testing.T) {
	reg := newPartnerRegistry()

	hits, err := reg.Lookup(context.Background(), "partner", "topu", 0.95)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no candidates at threshold 0.95, got %d", len(hits))
	}
}

func TestStatic_LookupRanked(t *testing.T) {
	reg := newPartnerRegistry()

	hits, err := reg.Lookup(context.Background(), "product", "chocolate", 0.8)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(hits))
	}
	// Exact name first, then ties in stable display-name order.
	if hits[0].ID != "pr1" {
		t.Errorf("expected exact match pr1 first, got %q", hits[0].ID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("candidates not ranked by score: %v", hits)
		}
	}
}

func TestStatic_LookupUnknownKind(t *testing.T) {
	reg := newPartnerRegistry()

	hits, err := reg.Lookup(context.Background(), "warehouse", "main", 0.5)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no candidates for unknown kind, got %d", len(hits))
	}
}

func TestStatic_Create(t *testing.T) {
	reg := newPartnerRegistry()
	ctx := context.Background()

	created, err := reg.Create(ctx, "partner", "Rahim Uddin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated ID")
	}

	hits, err := reg.Lookup(ctx, "partner", "rahim uddin", 0.95)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != created.ID {
		t.Errorf("expected created entity to be found, got %v", hits)
	}
}

func TestStatic_CreateEmptyName(t *testing.T) {
	reg := newPartnerRegistry()
	if _, err := reg.Create(context.Background(), "partner", ""); err == nil {
		t.Fatal("expected error for empty display name")
	}
}
