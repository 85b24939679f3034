// Package intent defines the intent catalog and the deterministic matcher
// that scores free text against it.
//
// A catalog is a versioned YAML document (komando/v1) listing intent
// definitions: key, training phrases, trigger keywords, an ordered slot
// schema, and a default risk level. Catalogs are immutable once parsed;
// reloads swap the whole snapshot atomically (see Loader).
package intent

// SpecVersion is the API version string required in every catalog document.
const SpecVersion = "komando/v1"

// SlotType enumerates the value kinds a slot can declare. Every extracted
// value is tagged with its declared type (see the slot package).
type SlotType string

const (
	SlotText    SlotType = "text"
	SlotNumber  SlotType = "number"
	SlotMoney   SlotType = "money"
	SlotDate    SlotType = "date"
	SlotBoolean SlotType = "boolean"
	SlotEntity  SlotType = "entity"
)

// RiskLevel classifies how destructive an intent is. It drives the
// confirmation policy: higher tiers require an explicit user confirmation
// between simulation and execution.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// SlotSpec declares a single named, typed parameter of an intent.
// Declaration order matters: missing required slots are asked for in the
// order they appear here.
type SlotSpec struct {
	// Name is the slot identifier, unique within the intent.
	Name string `yaml:"name" json:"name"`

	// Type selects the extraction rule applied to this slot.
	Type SlotType `yaml:"type" json:"type"`

	// EntityKind is the registry kind queried for entity slots
	// (e.g. "partner", "product"). Required when Type is entity.
	EntityKind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	// Required marks the slot as mandatory before the session can proceed.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Question is the clarifying question asked when the slot is missing.
	Question string `yaml:"question,omitempty" json:"question,omitempty"`

	// Help is an optional hint shown alongside the question.
	Help string `yaml:"help,omitempty" json:"help,omitempty"`
}

// ClarifyingQuestion returns the configured question for this slot, or a
// generated fallback when the catalog author did not provide one.
func (s SlotSpec) ClarifyingQuestion() string {
	if s.Question != "" {
		return s.Question
	}
	return "Please provide: " + s.Name
}

// Definition is one intent in the catalog. Definitions are value types and
// must not be mutated after the catalog is built.
type Definition struct {
	// Key uniquely identifies the intent (e.g. "sale_create").
	Key string `yaml:"key" json:"key"`

	// Name is the human-readable intent name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Description explains what executing the intent does.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Phrases are training examples used for similarity matching.
	Phrases []string `yaml:"phrases" json:"phrases"`

	// Keywords are trigger words that boost the match score when present in
	// the input (e.g. "sell", "invoice" for sale_create).
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`

	// Slots is the ordered slot schema.
	Slots []SlotSpec `yaml:"slots,omitempty" json:"slots,omitempty"`

	// Risk is the default risk level of the intent.
	Risk RiskLevel `yaml:"risk" json:"risk"`
}

// Slot returns the spec for the named slot.
func (d Definition) Slot(name string) (SlotSpec, bool) {
	for _, s := range d.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return SlotSpec{}, false
}

// Catalog is an immutable, ordered set of intent definitions. Declaration
// order is significant: the matcher breaks score ties in favour of the
// earlier definition.
type Catalog struct {
	defs  []Definition
	byKey map[string]int
}

// NewCatalog builds a catalog from already-validated definitions.
func NewCatalog(defs []Definition) *Catalog {
	byKey := make(map[string]int, len(defs))
	for i, d := range defs {
		byKey[d.Key] = i
	}
	return &Catalog{defs: defs, byKey: byKey}
}

// Get returns the definition for key.
func (c *Catalog) Get(key string) (Definition, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Definitions returns the definitions in declaration order. Callers must
// treat the returned slice as read-only.
func (c *Catalog) Definitions() []Definition {
	return c.defs
}

// Len returns the number of intents in the catalog.
func (c *Catalog) Len() int {
	return len(c.defs)
}
