package intent

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.schema.json
var catalogSchemaJSON string

// catalogSchema is compiled once at package init. The schema is embedded, so
// a compile failure is a programming error.
var catalogSchema = jsonschema.MustCompileString("catalog.schema.json", catalogSchemaJSON)

// Document is the root of a catalog YAML file.
type Document struct {
	// APIVersion must be "komando/v1".
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`

	// Intents lists the intent definitions in declaration order.
	Intents []Definition `yaml:"intents" json:"intents"`
}

// Parse decodes a catalog YAML document, validates it (structurally against
// the embedded JSON Schema, then semantically), and returns the immutable
// Catalog. It is the canonical entry point for loading catalogs.
func Parse(data []byte) (*Catalog, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog parse: %w", err)
	}
	if err := validateDocument(&doc); err != nil {
		return nil, err
	}
	return NewCatalog(doc.Intents), nil
}

// validateDocument runs the JSON Schema check followed by the semantic checks
// the schema cannot express (uniqueness, cross-field requirements).
func validateDocument(doc *Document) error {
	// Round-trip through JSON so the schema validator sees plain maps and
	// slices rather than our typed structs.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("catalog validate: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("catalog validate: %w", err)
	}
	if err := catalogSchema.Validate(v); err != nil {
		return fmt.Errorf("catalog validate: %w", err)
	}

	seenKeys := make(map[string]struct{}, len(doc.Intents))
	for i, def := range doc.Intents {
		if _, dup := seenKeys[def.Key]; dup {
			return fmt.Errorf("intents[%d]: duplicate key %q", i, def.Key)
		}
		seenKeys[def.Key] = struct{}{}

		if err := validateDefinition(def); err != nil {
			return fmt.Errorf("intents[%d] (%q): %w", i, def.Key, err)
		}
	}
	return nil
}

func validateDefinition(def Definition) error {
	for _, p := range def.Phrases {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("training phrases must not be blank")
		}
	}

	seenSlots := make(map[string]struct{}, len(def.Slots))
	for i, slot := range def.Slots {
		if _, dup := seenSlots[slot.Name]; dup {
			return fmt.Errorf("slots[%d]: duplicate slot name %q", i, slot.Name)
		}
		seenSlots[slot.Name] = struct{}{}

		if slot.Type == SlotEntity && strings.TrimSpace(slot.EntityKind) == "" {
			return fmt.Errorf("slots[%d] (%q): entity slots must declare a kind", i, slot.Name)
		}
		if slot.Type != SlotEntity && slot.EntityKind != "" {
			return fmt.Errorf("slots[%d] (%q): kind is only valid on entity slots", i, slot.Name)
		}
	}
	return nil
}
