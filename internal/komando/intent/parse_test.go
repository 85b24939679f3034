package intent_test

import (
	"strings"
	"testing"

	"github.com/avasile/komando/internal/komando/intent"
)

const validCatalog = `
apiVersion: komando/v1
intents:
  - key: sale_create
    name: Create sale order
    risk: medium
    phrases:
      - sell 5 chocolates to topu
      - create a sale order for acme
    keywords: [sell, sale, invoice]
    slots:
      - name: partner
        type: entity
        kind: partner
        required: true
        question: Who is the customer?
      - name: product
        type: entity
        kind: product
        required: true
      - name: quantity
        type: number
        required: true
        question: How many units?
  - key: inventory_adjust
    risk: high
    phrases:
      - update stock of chocolate to 100
    keywords: [stock, inventory, adjust]
    slots:
      - name: product
        type: entity
        kind: product
        required: true
      - name: quantity
        type: number
        required: true
`

func TestParse_ValidCatalog(t *testing.T) {
	c, err := intent.Parse([]byte(validCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 intents, got %d", c.Len())
	}

	def, ok := c.Get("sale_create")
	if !ok {
		t.Fatal("sale_create not found")
	}
	if def.Risk != intent.RiskMedium {
		t.Errorf("risk: got %q, want medium", def.Risk)
	}
	if len(def.Slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(def.Slots))
	}
	if def.Slots[0].Name != "partner" || def.Slots[2].Name != "quantity" {
		t.Errorf("slot order not preserved: %+v", def.Slots)
	}

	slot, ok := def.Slot("quantity")
	if !ok {
		t.Fatal("quantity slot not found")
	}
	if slot.ClarifyingQuestion() != "How many units?" {
		t.Errorf("question: got %q", slot.ClarifyingQuestion())
	}

	// Fallback question for a slot without one.
	product, _ := def.Slot("product")
	if got := product.ClarifyingQuestion(); got != "Please provide: product" {
		t.Errorf("fallback question: got %q", got)
	}
}

func TestParse_RejectsWrongVersion(t *testing.T) {
	doc := strings.Replace(validCatalog, "komando/v1", "komando/v2", 1)
	if _, err := intent.Parse([]byte(doc)); err == nil {
		t.Fatal("expected error for wrong apiVersion")
	}
}

func TestParse_RejectsDuplicateKeys(t *testing.T) {
	doc := strings.Replace(validCatalog, "inventory_adjust", "sale_create", 1)
	if _, err := intent.Parse([]byte(doc)); err == nil {
		t.Fatal("expected error for duplicate intent key")
	}
}

func TestParse_RejectsEntitySlotWithoutKind(t *testing.T) {
	doc := `
apiVersion: komando/v1
intents:
  - key: sale_create
    risk: low
    phrases: [sell something]
    slots:
      - name: partner
        type: entity
        required: true
`
	if _, err := intent.Parse([]byte(doc)); err == nil {
		t.Fatal("expected error for entity slot without kind")
	}
}

func TestParse_RejectsUnknownSlotType(t *testing.T) {
	doc := `
apiVersion: komando/v1
intents:
  - key: sale_create
    risk: low
    phrases: [sell something]
    slots:
      - name: partner
        type: blob
`
	if _, err := intent.Parse([]byte(doc)); err == nil {
		t.Fatal("expected error for unknown slot type")
	}
}

func TestParse_RejectsMissingPhrases(t *testing.T) {
	doc := `
apiVersion: komando/v1
intents:
  - key: sale_create
    risk: low
    phrases: []
`
	if _, err := intent.Parse([]byte(doc)); err == nil {
		t.Fatal("expected error for empty phrases")
	}
}

func TestParse_RejectsDuplicateSlotNames(t *testing.T) {
	doc := `
apiVersion: komando/v1
intents:
  - key: sale_create
    risk: low
    phrases: [sell something]
    slots:
      - name: quantity
        type: number
      - name: quantity
        type: number
`
	if _, err := intent.Parse([]byte(doc)); err == nil {
		t.Fatal("expected error for duplicate slot names")
	}
}
