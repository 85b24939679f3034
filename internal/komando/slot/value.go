// Package slot implements typed slot values and the rule-based extractor
// that fills them from free text.
//
// Every stored value carries its variant tag; there is no free-form storage.
// The extractor is deterministic: it never consults anything but the input
// text, the slot schema, the entity registry, and the reference clock.
package slot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind tags a Value's variant.
type Kind string

const (
	KindText    Kind = "text"
	KindNumber  Kind = "number"
	KindMoney   Kind = "money"
	KindDate    Kind = "date"
	KindBoolean Kind = "boolean"
	KindEntity  Kind = "entity"
)

// Money is an amount in a named currency.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (m Money) String() string {
	return strconv.FormatFloat(m.Amount, 'f', 2, 64) + " " + m.Currency
}

// EntityRef is a resolved reference to a registry entity.
type EntityRef struct {
	Kind        string  `json:"kind"`
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	Confidence  float64 `json:"confidence"`
}

// Value is the tagged variant over the slot types. The zero Value is invalid;
// use the constructors.
type Value struct {
	kind    Kind
	text    string
	number  float64
	money   Money
	date    time.Time
	boolean bool
	entity  EntityRef
}

// Text builds a text value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Number builds a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, number: f} }

// Amount builds a money value.
func Amount(m Money) Value { return Value{kind: KindMoney, money: m} }

// Date builds a date value (time-of-day is not significant).
func Date(t time.Time) Value { return Value{kind: KindDate, date: t} }

// Bool builds a boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, boolean: b} }

// Entity builds an entity-reference value.
func Entity(ref EntityRef) Value { return Value{kind: KindEntity, entity: ref} }

// Kind returns the variant tag. Empty for the zero Value.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v carries no value.
func (v Value) IsZero() bool { return v.kind == "" }

// AsText returns the text variant.
func (v Value) AsText() (string, bool) { return v.text, v.kind == KindText }

// AsNumber returns the numeric variant.
func (v Value) AsNumber() (float64, bool) { return v.number, v.kind == KindNumber }

// AsMoney returns the money variant.
func (v Value) AsMoney() (Money, bool) { return v.money, v.kind == KindMoney }

// AsDate returns the date variant.
func (v Value) AsDate() (time.Time, bool) { return v.date, v.kind == KindDate }

// AsBool returns the boolean variant.
func (v Value) AsBool() (bool, bool) { return v.boolean, v.kind == KindBoolean }

// AsEntity returns the entity-reference variant.
func (v Value) AsEntity() (EntityRef, bool) { return v.entity, v.kind == KindEntity }

// String renders the value for plans, questions, and audit payloads.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case KindMoney:
		return v.money.String()
	case KindDate:
		return v.date.Format("2006-01-02")
	case KindBoolean:
		return strconv.FormatBool(v.boolean)
	case KindEntity:
		return v.entity.DisplayName
	default:
		return ""
	}
}

// jsonValue is the wire form of a Value for session snapshots and audit
// payloads.
type jsonValue struct {
	Kind    Kind       `json:"kind"`
	Text    *string    `json:"text,omitempty"`
	Number  *float64   `json:"number,omitempty"`
	Money   *Money     `json:"money,omitempty"`
	Date    *string    `json:"date,omitempty"`
	Boolean *bool      `json:"boolean,omitempty"`
	Entity  *EntityRef `json:"entity,omitempty"`
}

// MarshalJSON encodes the value with its tag.
func (v Value) MarshalJSON() ([]byte, error) {
	jv := jsonValue{Kind: v.kind}
	switch v.kind {
	case KindText:
		jv.Text = &v.text
	case KindNumber:
		jv.Number = &v.number
	case KindMoney:
		jv.Money = &v.money
	case KindDate:
		s := v.date.Format("2006-01-02")
		jv.Date = &s
	case KindBoolean:
		jv.Boolean = &v.boolean
	case KindEntity:
		jv.Entity = &v.entity
	default:
		return nil, fmt.Errorf("slot: cannot marshal zero value")
	}
	return json.Marshal(jv)
}

// UnmarshalJSON decodes a tagged value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return fmt.Errorf("slot: unmarshal value: %w", err)
	}
	switch jv.Kind {
	case KindText:
		if jv.Text == nil {
			return fmt.Errorf("slot: text value missing payload")
		}
		*v = Text(*jv.Text)
	case KindNumber:
		if jv.Number == nil {
			return fmt.Errorf("slot: number value missing payload")
		}
		*v = Number(*jv.Number)
	case KindMoney:
		if jv.Money == nil {
			return fmt.Errorf("slot: money value missing payload")
		}
		*v = Amount(*jv.Money)
	case KindDate:
		if jv.Date == nil {
			return fmt.Errorf("slot: date value missing payload")
		}
		t, err := time.Parse("2006-01-02", *jv.Date)
		if err != nil {
			return fmt.Errorf("slot: parse date: %w", err)
		}
		*v = Date(t)
	case KindBoolean:
		if jv.Boolean == nil {
			return fmt.Errorf("slot: boolean value missing payload")
		}
		*v = Bool(*jv.Boolean)
	case KindEntity:
		if jv.Entity == nil {
			return fmt.Errorf("slot: entity value missing payload")
		}
		*v = Entity(*jv.Entity)
	default:
		return fmt.Errorf("slot: unknown value kind %q", jv.Kind)
	}
	return nil
}
