package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseCategory_Aliases(t *testing.T) {
	cases := map[string]Category{
		"Temizlik":  CategoryCleaning,
		" repair ":  CategoryRepair,
		"özel ders": CategoryTutoring,
		"nakliye":   CategoryMoving,
		"gardening": CategoryOther,
		"":          CategoryOther,
	}
	for in, want := range cases {
		if got := ParseCategory(in); got != want {
			t.Fatalf("ParseCategory(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestDetails_JSONCarriesKind(t *testing.T) {
	d := Details{Variant: MovingDetails{Route: "Kadikoy > Besiktas", ElevatorNeeded: true}}
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"kind":"moving"`) || !strings.Contains(string(raw), `"route":"Kadikoy > Besiktas"`) {
		t.Fatalf("unexpected encoding: %s", raw)
	}

	var back Details
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Variant != d.Variant {
		t.Fatalf("variant changed: %#v", back.Variant)
	}
	if back.Kind() != CategoryMoving {
		t.Fatalf("kind = %q", back.Kind())
	}
}

func TestDetails_UnknownKindFails(t *testing.T) {
	var d Details
	if err := json.Unmarshal([]byte(`{"kind":"gardening"}`), &d); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestDetails_EmptyIsOther(t *testing.T) {
	var d Details
	if d.Kind() != CategoryOther {
		t.Fatalf("empty details kind = %q", d.Kind())
	}
	raw, _ := json.Marshal(d)
	if !strings.Contains(string(raw), `"kind":"other"`) {
		t.Fatalf("empty details encoding: %s", raw)
	}
}

func TestDecodeDetails(t *testing.T) {
	d, err := DecodeDetails(CategoryRepair, []byte(`{"item":"boiler","started_at":"yesterday"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, ok := d.Variant.(RepairDetails); !ok || got.Item != "boiler" || got.StartedAt != "yesterday" {
		t.Fatalf("unexpected variant %#v", d.Variant)
	}

	if _, err := DecodeDetails(CategoryRepair, []byte(`{"kind":"moving","route":"x"}`)); !errors.Is(err, ErrDetailsKindMismatch) {
		t.Fatalf("expected kind mismatch, got %v", err)
	}

	d, err = DecodeDetails(CategoryCleaning, nil)
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if _, ok := d.Variant.(CleaningDetails); !ok {
		t.Fatalf("empty payload should yield zero CleaningDetails, got %#v", d.Variant)
	}

	if _, err := DecodeDetails(CategoryOther, []byte(`{`)); err == nil {
		t.Fatalf("expected syntax error")
	}
}
