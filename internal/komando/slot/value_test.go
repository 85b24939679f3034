package slot_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/avasile/komando/internal/komando/slot"
)

func TestValueAccessors(t *testing.T) {
	v := slot.Number(5)
	if got, ok := v.AsNumber(); !ok || got != 5 {
		t.Fatalf("AsNumber() = %v, %v", got, ok)
	}
	if _, ok := v.AsText(); ok {
		t.Fatalf("number value answered AsText")
	}
	if v.Kind() != slot.KindNumber {
		t.Fatalf("Kind() = %q", v.Kind())
	}
	if v.IsZero() {
		t.Fatalf("constructed value reported zero")
	}

	var zero slot.Value
	if !zero.IsZero() {
		t.Fatalf("zero value not reported as zero")
	}
}

func TestValueString(t *testing.T) {
	cases := []struct {
		value slot.Value
		want  string
	}{
		{slot.Text("urgent delivery"), "urgent delivery"},
		{slot.Number(2.5), "2.5"},
		{slot.Amount(slot.Money{Amount: 12.5, Currency: "USD"}), "12.50 USD"},
		{slot.Date(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)), "2026-09-01"},
		{slot.Bool(true), "true"},
		{slot.Entity(slot.EntityRef{Kind: "partner", ID: "p1", DisplayName: "Topu Rahman", Confidence: 0.9}), "Topu Rahman"},
	}
	for _, tc := range cases {
		if got := tc.value.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	values := []slot.Value{
		slot.Amount(slot.Money{Amount: 99.99, Currency: "EUR"}),
		slot.Date(time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC)),
		slot.Entity(slot.EntityRef{Kind: "product", ID: "pr1", DisplayName: "Chocolate", Confidence: 1.0}),
	}
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", v.Kind(), err)
		}
		var back slot.Value
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", v.Kind(), err)
		}
		if back != v {
			t.Errorf("round trip changed value: %#v != %#v", back, v)
		}
	}
}

func TestValueJSONRejectsUnknownKind(t *testing.T) {
	var v slot.Value
	if err := json.Unmarshal([]byte(`{"kind":"vector"}`), &v); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
