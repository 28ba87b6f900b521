package ingredient

import (
	"testing"

	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/pkg/common"
)

func TestNormalize(t *testing.T) {
	n := NewUnitNormalizer(reference.Default())
	qty := func(v float64) *float64 { return &v }

	tests := []struct {
		name      string
		qty       *float64
		unit      string
		item      string
		wantQty   *float64
		wantUnit  common.Unit
		wantNotes string
		wantRaw   string
	}{
		{"cups of liquid", qty(2), "cups", "milk", qty(480), common.UnitMilliliter, "", ""},
		{"tablespoon synonym", qty(1), "Tablespoon", "coconut milk", qty(15), common.UnitMilliliter, "", ""},
		{"kilograms", qty(1.5), "kg", "chicken", qty(1500), common.UnitGram, "", ""},
		{"pounds", qty(1), "lbs", "mutton", qty(453.6), common.UnitGram, "", ""},
		{"volume to solid", qty(1), "tsp", "salt", qty(5), common.UnitGram, "approx 1 tsp", ""},
		{"mass to liquid", qty(100), "g", "curd", qty(100), common.UnitMilliliter, "approx 100 g", ""},
		{"average weight", qty(2), "", "potatoes", qty(300), common.UnitGram, "2 pcs", ""},
		{"bare count", qty(2), "", "eggs", qty(2), common.UnitNone, "", ""},
		{"count unit", qty(3), "pcs", "chicken", qty(3), common.UnitNone, "", ""},
		{"measure word", qty(2), "sprigs", "curry leaves", qty(2), common.UnitNone, "sprigs", "sprig"},
		{"measure word plural", qty(1), "Bunches", "coriander", qty(1), common.UnitNone, "Bunches", "bunch"},
		{"unknown unit", qty(1), "Glug.", "oil", qty(1), common.UnitNone, "Glug.", "glug"},
		{"no quantity", nil, "", "salt", nil, common.UnitNone, "", ""},
		{"rounding", qty(1.0 / 3), "cup", "water", qty(80), common.UnitMilliliter, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.qty, tt.unit, tt.item)
			switch {
			case tt.wantQty == nil && got.Quantity != nil:
				t.Errorf("Quantity = %v, want nil", *got.Quantity)
			case tt.wantQty != nil && (got.Quantity == nil || *got.Quantity != *tt.wantQty):
				t.Errorf("Quantity = %v, want %v", got.Quantity, *tt.wantQty)
			}
			if got.Unit != tt.wantUnit {
				t.Errorf("Unit = %q, want %q", got.Unit, tt.wantUnit)
			}
			if got.Notes != tt.wantNotes {
				t.Errorf("Notes = %q, want %q", got.Notes, tt.wantNotes)
			}
			if got.RawUnit != tt.wantRaw {
				t.Errorf("RawUnit = %q, want %q", got.RawUnit, tt.wantRaw)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewUnitNormalizer(reference.Default())

	inputs := []struct {
		qty  float64
		unit string
		item string
	}{
		{2, "cups", "milk"},
		{1, "tbsp", "sugar"},
		{2, "", "potato"},
		{2, "", "egg"},
		{0.5, "lb", "paneer"},
	}

	for _, in := range inputs {
		q := in.qty
		first := n.Normalize(&q, in.unit, in.item)
		second := n.Normalize(first.Quantity, string(first.Unit), in.item)
		if *second.Quantity != *first.Quantity || second.Unit != first.Unit {
			t.Errorf("Normalize(%v %s %s) not idempotent: %v %s then %v %s",
				in.qty, in.unit, in.item, *first.Quantity, first.Unit, *second.Quantity, second.Unit)
		}
	}
}

func TestNormalizeTriesNamesInOrder(t *testing.T) {
	n := NewUnitNormalizer(reference.Default())
	q := 2.0

	got := n.Normalize(&q, "", "green chili", "green chillies")
	if got.Quantity == nil || *got.Quantity != 10 || got.Unit != common.UnitGram {
		t.Errorf("canonical name first = %v %q, want 10 g", got.Quantity, got.Unit)
	}

	got = n.Normalize(&q, "", "masala", "onions")
	if got.Quantity == nil || *got.Quantity != 200 || got.Unit != common.UnitGram {
		t.Errorf("fallback to second name = %v %q, want 200 g", got.Quantity, got.Unit)
	}

	got = n.Normalize(&q, "cup", "curry", "coconut milk")
	if got.Unit != common.UnitMilliliter {
		t.Errorf("liquid lookup on second name = %q, want ml", got.Unit)
	}
}
