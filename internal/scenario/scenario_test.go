package scenario

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/engine"
)

const sampleDoc = `
facilities:
  - id: forge_one
    capacity: 40
    equipment:
      - def: press_10
        count: 2
    stock:
      - item: steel_billet
        quantity: 3
        quality: 60
jobs:
  - facility: forge_one
    product: plate
    method: stamp_plate
    quantity: 1
    priority: 2
  - facility: forge_one
    product: widget
    method: build_widget
    quantity: 1
    at: 30s
`

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(
		[]catalog.EquipmentDef{
			{ID: "press_10", Tags: []catalog.Tag{{Category: "stamping", Value: 10}}},
		},
		[]catalog.ItemDef{{ID: "steel_billet"}, {ID: "plate"}, {ID: "widget"}},
		[]catalog.Method{
			{
				ID:      "stamp_plate",
				Product: "plate",
				Operations: []catalog.Operation{{
					ID:           "press_plate",
					Requires:     catalog.Requirement{Category: "stamping", Minimum: 5, Optimal: 10},
					BaseDuration: catalog.Duration(20 * time.Second),
					Consumes:     []catalog.ConsumptionRule{{Item: "steel_billet", Count: 1}},
					Produces:     []catalog.ProductionRule{{Item: "plate", Count: 1, Quality: 80}},
				}},
			},
			{
				ID:      "build_widget",
				Product: "widget",
				Operations: []catalog.Operation{{
					ID:           "press_widget",
					Requires:     catalog.Requirement{Category: "stamping", Minimum: 5, Optimal: 10},
					BaseDuration: catalog.Duration(10 * time.Second),
					Consumes:     []catalog.ConsumptionRule{{Item: "steel_billet", Count: 1}},
					Produces:     []catalog.ProductionRule{{Item: "widget", Count: 1, Quality: 90}},
				}},
			},
		},
	)
	if err != nil {
		t.Fatalf("test catalog: %v", err)
	}
	return cat
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Config{
		Catalog: testCatalog(t),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestParseSample(t *testing.T) {
	s, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(s.Facilities) != 1 || s.Facilities[0].ID != "forge_one" {
		t.Fatalf("facilities = %+v", s.Facilities)
	}
	if s.Facilities[0].Equipment[0].Count != 2 {
		t.Fatalf("equipment count = %d, want 2", s.Facilities[0].Equipment[0].Count)
	}
	if len(s.Jobs) != 2 || s.Jobs[0].Priority != 2 {
		t.Fatalf("jobs = %+v", s.Jobs)
	}
	if s.Jobs[1].At.Std() != 30*time.Second {
		t.Fatalf("deferred job at = %v, want 30s", s.Jobs[1].At)
	}
}

func TestDueJobs(t *testing.T) {
	s, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if due := s.DueJobs(0, 29*time.Second); len(due) != 0 {
		t.Fatalf("due before 30s = %+v", due)
	}
	due := s.DueJobs(29*time.Second, 30*time.Second)
	if len(due) != 1 || due[0].Product != "widget" {
		t.Fatalf("due at 30s = %+v, want the widget job", due)
	}
	if again := s.DueJobs(30*time.Second, time.Minute); len(again) != 0 {
		t.Fatalf("job due twice: %+v", again)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte("facilites:\n  - id: typo\n")); err == nil {
		t.Fatal("misspelled key parsed without error")
	}
}

func TestParseRejectsEmptyDocument(t *testing.T) {
	if _, err := Parse([]byte("   \n")); err == nil {
		t.Fatal("empty document parsed without error")
	}
}

func validScenario() *Scenario {
	return &Scenario{
		Facilities: []Facility{{
			ID:        "forge_one",
			Equipment: []Machine{{Def: "press_10"}},
			Stock:     []Stack{{Item: "steel_billet", Quantity: 3, Quality: 60}},
		}},
		Jobs: []Job{{Facility: "forge_one", Product: "plate", Method: "stamp_plate", Quantity: 1}},
	}
}

func TestValidate(t *testing.T) {
	cat := testCatalog(t)
	if err := validScenario().Validate(cat); err != nil {
		t.Fatalf("valid scenario rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Scenario)
		want   string
	}{
		{"no facilities", func(s *Scenario) { s.Facilities = nil }, "no facilities"},
		{"duplicate facility", func(s *Scenario) { s.Facilities = append(s.Facilities, s.Facilities[0]) }, "duplicate"},
		{"unknown equipment", func(s *Scenario) { s.Facilities[0].Equipment[0].Def = "ghost_rig" }, "unknown equipment"},
		{"unknown stock item", func(s *Scenario) { s.Facilities[0].Stock[0].Item = "unobtainium" }, "unknown item"},
		{"zero stock quantity", func(s *Scenario) { s.Facilities[0].Stock[0].Quantity = 0 }, "quantity"},
		{"quality out of range", func(s *Scenario) { s.Facilities[0].Stock[0].Quality = 101 }, "quality"},
		{"job undeclared facility", func(s *Scenario) { s.Jobs[0].Facility = "nowhere" }, "undeclared facility"},
		{"job unknown product", func(s *Scenario) { s.Jobs[0].Product = "unobtainium" }, "unknown product"},
		{"job unknown method", func(s *Scenario) { s.Jobs[0].Method = "ghost_method" }, "unknown method"},
		{"job method mismatch", func(s *Scenario) { s.Jobs[0].Method = "build_widget" }, "produces"},
		{"job zero quantity", func(s *Scenario) { s.Jobs[0].Quantity = 0 }, "quantity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validScenario()
			tc.mutate(s)
			err := s.Validate(cat)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestApplyBuildsWorld(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t)
	s, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := s.Apply(e); err != nil {
		t.Fatalf("apply: %v", err)
	}

	rep, err := e.Report("forge_one")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(rep.Machines) != 2 {
		t.Fatalf("placed %d machines, want 2", len(rep.Machines))
	}
	if len(rep.Queue) != 1 {
		t.Fatalf("queued %d jobs, want 1", len(rep.Queue))
	}
	// One billet is already reserved by the admitted job.
	if len(rep.Stock) != 1 || rep.Stock[0].Quantity != 2 {
		t.Fatalf("stock = %+v, want 2 billets left", rep.Stock)
	}

	e.AdvanceAll(ctx, 0)
	e.AdvanceAll(ctx, 20*time.Second)
	evs := e.DrainAllEvents()
	if len(evs) != 1 || evs[0].Product != "plate" {
		t.Fatalf("events = %+v, want one plate completion", evs)
	}
}

func TestApplyValidatesBeforeTouchingEngine(t *testing.T) {
	e := testEngine(t)
	s := validScenario()
	s.Jobs[0].Method = "build_widget"
	if err := s.Apply(e); err == nil {
		t.Fatal("mismatched job applied without error")
	}
	if ids := e.Facilities(); len(ids) != 0 {
		t.Fatalf("engine mutated despite invalid scenario: %v", ids)
	}
}
