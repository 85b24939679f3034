package intent_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/avasile/komando/internal/komando/intent"
)

func testCatalog(t *testing.T) *intent.Catalog {
	t.Helper()
	c, err := intent.Parse([]byte(validCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return c
}

func TestMatch_ExactPhrase(t *testing.T) {
	c := testCatalog(t)
	m := intent.Matcher{}

	got, err := m.Match("sell 5 chocolates to topu", c)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got.Key != "sale_create" {
		t.Errorf("key: got %q, want sale_create", got.Key)
	}
	if got.Confidence < 0.8 {
		t.Errorf("confidence for near-exact phrase too low: %v", got.Confidence)
	}
}

func TestMatch_Variation(t *testing.T) {
	c := testCatalog(t)
	m := intent.Matcher{}

	got, err := m.Match("sell a chocolate to topu", c)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got.Key != "sale_create" {
		t.Errorf("key: got %q, want sale_create", got.Key)
	}
}

func TestMatch_UnknownEntityStillMatches(t *testing.T) {
	// A transcript that differs from a training phrase only in the partner
	// mention must still clear the default threshold, so slot filling gets a
	// chance to offer creating the unknown entity.
	c := testCatalog(t)
	m := intent.Matcher{}

	got, err := m.Match("sell 5 chocolates to walid", c)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got.Key != "sale_create" {
		t.Errorf("key: got %q, want sale_create", got.Key)
	}
	if got.Confidence < intent.DefaultConfidenceThreshold {
		t.Errorf("confidence %v below default threshold", got.Confidence)
	}
}

func TestMatch_KeywordBoostAccumulates(t *testing.T) {
	// Same text and phrases, one extra keyword hit: the score rises by
	// exactly one boost step.
	one := `
apiVersion: komando/v1
intents:
  - key: shipment_create
    risk: low
    phrases: [send chocolates to topu]
    keywords: [urgent]
`
	two := strings.Replace(one, "keywords: [urgent]", "keywords: [urgent, rush]", 1)
	text := "urgent rush please send chocolate"
	m := intent.Matcher{Threshold: 0.4}

	c1, err := intent.Parse([]byte(one))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c2, err := intent.Parse([]byte(two))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got1, err := m.Match(text, c1)
	if err != nil {
		t.Fatalf("Match (one keyword): %v", err)
	}
	got2, err := m.Match(text, c2)
	if err != nil {
		t.Fatalf("Match (two keywords): %v", err)
	}
	if diff := got2.Confidence - got1.Confidence; math.Abs(diff-0.1) > 1e-9 {
		t.Errorf("second keyword hit should add 0.1, added %v", diff)
	}
}

func TestMatch_SecondIntent(t *testing.T) {
	c := testCatalog(t)
	m := intent.Matcher{}

	got, err := m.Match("update stock of chocolate to 50", c)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got.Key != "inventory_adjust" {
		t.Errorf("key: got %q, want inventory_adjust", got.Key)
	}
}

func TestMatch_NoMatchBelowThreshold(t *testing.T) {
	c := testCatalog(t)
	m := intent.Matcher{}

	_, err := m.Match("what is the weather like in dhaka", c)
	if !errors.Is(err, intent.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestMatch_EmptyText(t *testing.T) {
	c := testCatalog(t)
	m := intent.Matcher{}

	if _, err := m.Match("   ", c); !errors.Is(err, intent.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch for blank input, got %v", err)
	}
}

func TestMatch_Deterministic(t *testing.T) {
	c := testCatalog(t)
	m := intent.Matcher{}

	first, err := m.Match("sell 5 chocolates to topu", c)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := m.Match("sell 5 chocolates to topu", c)
		if err != nil {
			t.Fatalf("Match (run %d): %v", i, err)
		}
		if again != first {
			t.Fatalf("non-deterministic result: %+v vs %+v", again, first)
		}
	}
}

func TestMatch_TieBrokenByDeclarationOrder(t *testing.T) {
	// Two intents with identical phrases: the first declared must win.
	doc := `
apiVersion: komando/v1
intents:
  - key: first_intent
    risk: low
    phrases: [do the thing]
  - key: second_intent
    risk: low
    phrases: [do the thing]
`
	c, err := intent.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got, err := intent.Matcher{}.Match("do the thing", c)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got.Key != "first_intent" {
		t.Errorf("tie should go to the first declared intent, got %q", got.Key)
	}
}

func TestMatch_CustomThreshold(t *testing.T) {
	c := testCatalog(t)

	// A loose paraphrase that clears the default threshold but not a strict one.
	text := "sell a chocolate to topu"
	if _, err := (intent.Matcher{}).Match(text, c); err != nil {
		t.Fatalf("expected match at default threshold: %v", err)
	}
	if _, err := (intent.Matcher{Threshold: 0.99}).Match(text, c); !errors.Is(err, intent.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch at threshold 0.99, got %v", err)
	}
}
