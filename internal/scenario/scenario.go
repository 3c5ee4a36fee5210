// Package scenario loads the declarative bootstrap document for a daemon run:
// which facilities exist, what stands on their floors, what stock they hold
// and which jobs are admitted before the clock starts.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/engine"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/inventory"
)

// Stack seeds one stock deposit.
type Stack struct {
	Item     string   `yaml:"item"`
	Quantity int      `yaml:"quantity"`
	Quality  float64  `yaml:"quality"`
	Tags     []string `yaml:"tags,omitempty"`
}

// Machine places instances of an equipment definition. Count zero means one.
type Machine struct {
	Def   string `yaml:"def"`
	Count int    `yaml:"count,omitempty"`
}

// Facility declares one workspace.
type Facility struct {
	ID        string    `yaml:"id"`
	Capacity  int       `yaml:"capacity,omitempty"`
	Equipment []Machine `yaml:"equipment,omitempty"`
	Stock     []Stack   `yaml:"stock,omitempty"`
}

// Job is admitted during bootstrap, or once the facility clock reaches At.
type Job struct {
	Facility string           `yaml:"facility"`
	Product  string           `yaml:"product"`
	Method   string           `yaml:"method"`
	Quantity int              `yaml:"quantity"`
	Priority int              `yaml:"priority,omitempty"`
	Rush     bool             `yaml:"rush,omitempty"`
	At       catalog.Duration `yaml:"at,omitempty"`
}

// Scenario is the whole bootstrap document.
type Scenario struct {
	Facilities []Facility `yaml:"facilities"`
	Jobs       []Job      `yaml:"jobs,omitempty"`
}

// Parse decodes a scenario document. Unknown fields are rejected so typos
// fail loudly instead of silently dropping config.
func Parse(data []byte) (*Scenario, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("scenario: document is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("scenario: decode: %w", err)
	}
	return &s, nil
}

// Load reads and parses a scenario from disk. Validation happens separately,
// once the caller has a catalog to check against.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}
	return s, nil
}

// Validate cross-checks the document against reference data: every id must
// resolve and every job must name a declared facility and a method that
// actually produces its product.
func (s *Scenario) Validate(cat *catalog.Catalog) error {
	if len(s.Facilities) == 0 {
		return fmt.Errorf("scenario: no facilities declared")
	}
	seen := make(map[string]bool, len(s.Facilities))
	for _, f := range s.Facilities {
		if f.ID == "" {
			return fmt.Errorf("scenario: facility is missing an id")
		}
		if seen[f.ID] {
			return fmt.Errorf("scenario: duplicate facility %q", f.ID)
		}
		seen[f.ID] = true
		if f.Capacity < 0 {
			return fmt.Errorf("scenario: facility %q has negative capacity", f.ID)
		}
		for _, m := range f.Equipment {
			if _, ok := cat.Equipment(m.Def); !ok {
				return fmt.Errorf("scenario: facility %q places unknown equipment %q", f.ID, m.Def)
			}
			if m.Count < 0 {
				return fmt.Errorf("scenario: facility %q places negative count of %q", f.ID, m.Def)
			}
		}
		for _, st := range f.Stock {
			if _, ok := cat.Item(st.Item); !ok {
				return fmt.Errorf("scenario: facility %q stocks unknown item %q", f.ID, st.Item)
			}
			if st.Quantity < 1 {
				return fmt.Errorf("scenario: facility %q stocks %q with quantity %d", f.ID, st.Item, st.Quantity)
			}
			if st.Quality < 0 || st.Quality > 100 {
				return fmt.Errorf("scenario: facility %q stocks %q with quality %v", f.ID, st.Item, st.Quality)
			}
		}
	}
	for i, j := range s.Jobs {
		if !seen[j.Facility] {
			return fmt.Errorf("scenario: job %d targets undeclared facility %q", i, j.Facility)
		}
		if _, ok := cat.Item(j.Product); !ok {
			return fmt.Errorf("scenario: job %d orders unknown product %q", i, j.Product)
		}
		method, ok := cat.Method(j.Method)
		if !ok {
			return fmt.Errorf("scenario: job %d uses unknown method %q", i, j.Method)
		}
		if method.Product != j.Product {
			return fmt.Errorf("scenario: job %d method %q produces %q, not %q", i, j.Method, method.Product, j.Product)
		}
		if j.Quantity < 1 {
			return fmt.Errorf("scenario: job %d has quantity %d", i, j.Quantity)
		}
	}
	return nil
}

// DueJobs lists deferred admissions falling in (prev, now]. Tick loops call
// this after every advance; Apply already admitted everything at zero.
func (s *Scenario) DueJobs(prev, now time.Duration) []Job {
	var out []Job
	for _, j := range s.Jobs {
		at := j.At.Std()
		if at > prev && at <= now {
			out = append(out, j)
		}
	}
	return out
}

// Apply builds the declared world inside an engine: facilities first, then
// floors and stock, then immediate job admissions in document order.
func (s *Scenario) Apply(e *engine.Engine) error {
	if err := s.Validate(e.Catalog()); err != nil {
		return err
	}
	for _, f := range s.Facilities {
		if err := e.AddFacility(f.ID, f.Capacity); err != nil {
			return err
		}
		for _, m := range f.Equipment {
			count := m.Count
			if count == 0 {
				count = 1
			}
			for i := 0; i < count; i++ {
				if _, err := e.AddEquipment(f.ID, m.Def); err != nil {
					return err
				}
			}
		}
		for _, st := range f.Stock {
			it := inventory.NewItem(st.Item, st.Quantity, st.Quality, st.Tags)
			if err := e.DepositStock(f.ID, it); err != nil {
				return err
			}
		}
	}
	for _, j := range s.Jobs {
		if j.At > 0 {
			continue
		}
		if _, err := e.StartJob(j.Facility, j.Product, j.Method, j.Quantity, j.Priority, j.Rush); err != nil {
			return err
		}
	}
	return nil
}
