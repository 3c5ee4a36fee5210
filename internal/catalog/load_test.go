package catalog

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDir(t *testing.T) {
	c, err := LoadDir("testdata/catalog")
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	mill, ok := c.Equipment("manual_mill")
	if !ok {
		t.Fatalf("expected manual_mill in catalog")
	}
	plate, ok := mill.Tag("surface_plate")
	if !ok {
		t.Fatalf("expected surface_plate tag on manual_mill")
	}
	if !plate.Boolean || plate.Value != 1 {
		t.Fatalf("boolean tag should normalize to value 1, got %+v", plate)
	}

	bench, ok := c.Equipment("assembly_bench")
	if !ok {
		t.Fatalf("expected assembly_bench in catalog")
	}
	if bench.Name != "assembly_bench" {
		t.Fatalf("missing name should default to id, got %q", bench.Name)
	}
	bits, _ := bench.Tag("tool_bits")
	if !bits.Consumable {
		t.Fatalf("tool_bits should be consumable")
	}

	if _, ok := c.Item("steel_billet"); !ok {
		t.Fatalf("expected steel_billet in catalog")
	}

	method, ok := c.Method("rifle_machined")
	if !ok {
		t.Fatalf("expected rifle_machined in catalog")
	}
	if len(method.Operations) != 3 {
		t.Fatalf("expected 3 operations, got %d", len(method.Operations))
	}
	first := method.Operations[0]
	if first.BaseDuration.Std() != 45*time.Second {
		t.Fatalf("expected 45s duration, got %s", first.BaseDuration)
	}
	if first.Requires.Target() != 30 {
		t.Fatalf("expected optimal 30 as ratio target, got %v", first.Requires.Target())
	}
	last := method.Operations[2]
	if last.OnFailure != FailScrap {
		t.Fatalf("missing on_failure should default to scrap, got %q", last.OnFailure)
	}
	if last.Requires.Target() != 5 {
		t.Fatalf("missing optimal should fall back to minimum, got %v", last.Requires.Target())
	}

	producers := c.MethodsFor("rifle")
	if len(producers) != 1 || producers[0].ID != "rifle_machined" {
		t.Fatalf("MethodsFor(rifle) = %v", producers)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("items:\n  - id: a\n    flavour: unknown\n"))
	if err == nil {
		t.Fatalf("expected an error for unknown field")
	}
}

func TestParseRejectsEmptyFragment(t *testing.T) {
	if _, err := Parse([]byte("   \n")); err == nil {
		t.Fatalf("expected an error for empty fragment")
	}
}

func validItems() []ItemDef {
	return []ItemDef{{ID: "steel"}, {ID: "plate"}}
}

func validOperation() Operation {
	return Operation{
		ID:           "roll",
		Requires:     Requirement{Category: "rolling", Minimum: 10},
		BaseDuration: Duration(time.Minute),
		Consumes:     []ConsumptionRule{{Item: "steel", Count: 1}},
		Produces:     []ProductionRule{{Item: "plate", Count: 1, Quality: 90}},
	}
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Method)
		wantErr string
	}{
		{
			name:    "unknown product",
			mutate:  func(m *Method) { m.Product = "ghost" },
			wantErr: "unknown product",
		},
		{
			name:    "no operations",
			mutate:  func(m *Method) { m.Operations = nil },
			wantErr: "no operations",
		},
		{
			name: "duplicate operation ids",
			mutate: func(m *Method) {
				m.Operations = append(m.Operations, m.Operations[0])
			},
			wantErr: "duplicate operation",
		},
		{
			name:    "optimal below minimum",
			mutate:  func(m *Method) { m.Operations[0].Requires.Optimal = 5 },
			wantErr: "below minimum",
		},
		{
			name:    "zero duration",
			mutate:  func(m *Method) { m.Operations[0].BaseDuration = 0 },
			wantErr: "duration must be positive",
		},
		{
			name:    "unknown consumed item",
			mutate:  func(m *Method) { m.Operations[0].Consumes[0].Item = "ghost" },
			wantErr: "consumes unknown item",
		},
		{
			name: "quality and inherit both set",
			mutate: func(m *Method) {
				m.Operations[0].Produces[0].InheritQuality = true
			},
			wantErr: "both quality and inherit_quality",
		},
		{
			name:    "failure chance out of range",
			mutate:  func(m *Method) { m.Operations[0].FailureChance = 1.5 },
			wantErr: "failure_chance",
		},
		{
			name:    "unknown failure mode",
			mutate:  func(m *Method) { m.Operations[0].OnFailure = "explode" },
			wantErr: "unknown failure mode",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			method := Method{ID: "m", Product: "plate", Operations: []Operation{validOperation()}}
			tc.mutate(&method)
			_, err := New(nil, validItems(), []Method{method})
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %q", tc.wantErr, err)
			}
		})
	}
}

func TestNewRejectsBadEquipment(t *testing.T) {
	cases := []struct {
		name    string
		def     EquipmentDef
		wantErr string
	}{
		{
			name:    "no tags",
			def:     EquipmentDef{ID: "bare"},
			wantErr: "no capability tags",
		},
		{
			name: "duplicate tag category",
			def: EquipmentDef{ID: "twice", Tags: []Tag{
				{Category: "milling", Value: 10},
				{Category: "milling", Value: 20},
			}},
			wantErr: "duplicate tag",
		},
		{
			name: "boolean consumable",
			def: EquipmentDef{ID: "odd", Tags: []Tag{
				{Category: "surface_plate", Boolean: true, Consumable: true},
			}},
			wantErr: "cannot be consumable",
		},
		{
			name: "zero value numeric tag",
			def: EquipmentDef{ID: "flat", Tags: []Tag{
				{Category: "milling"},
			}},
			wantErr: "positive value",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New([]EquipmentDef{tc.def}, nil, nil)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	_, err := New(nil, []ItemDef{{ID: "steel"}, {ID: "steel"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "duplicate item") {
		t.Fatalf("expected duplicate item error, got %v", err)
	}
}
