package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Failure modes for operations whose failure roll comes up.
const (
	FailScrap     = "scrap"     // job ends failed, inputs lost
	FailDowngrade = "downgrade" // outputs produced at reduced quality, job advances
	FailRework    = "rework"    // operation restarts from zero on the same machine
)

// ConsumptionRule takes count units of an item per unit of job quantity from
// the job inventory when the operation completes. RequiredTags narrows the
// match; MaxQuality caps it (zero means uncapped).
type ConsumptionRule struct {
	Item         string   `yaml:"item" json:"item"`
	Count        int      `yaml:"count" json:"count"`
	RequiredTags []string `yaml:"required_tags,omitempty" json:"required_tags,omitempty"`
	MaxQuality   float64  `yaml:"max_quality,omitempty" json:"max_quality,omitempty"`
}

// ProductionRule emits count units of an item per unit of job quantity.
// Quality is either fixed or inherited from the consumed inputs.
type ProductionRule struct {
	Item           string   `yaml:"item" json:"item"`
	Count          int      `yaml:"count" json:"count"`
	Tags           []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Quality        float64  `yaml:"quality,omitempty" json:"quality,omitempty"`
	InheritQuality bool     `yaml:"inherit_quality,omitempty" json:"inherit_quality,omitempty"`
}

// Operation is one step of a method: a single capability requirement, a base
// duration, and the material transform applied when the step completes.
type Operation struct {
	ID            string            `yaml:"id" json:"id"`
	Name          string            `yaml:"name,omitempty" json:"name"`
	Requires      Requirement       `yaml:"requires" json:"requires"`
	BaseDuration  Duration          `yaml:"duration" json:"duration"`
	Consumes      []ConsumptionRule `yaml:"consumes,omitempty" json:"consumes,omitempty"`
	Produces      []ProductionRule  `yaml:"produces,omitempty" json:"produces,omitempty"`
	FailureChance float64           `yaml:"failure_chance,omitempty" json:"failure_chance,omitempty"`
	OnFailure     string            `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
}

// Method is a named, ordered list of operations that manufactures a product.
type Method struct {
	ID         string      `yaml:"id" json:"id"`
	Name       string      `yaml:"name,omitempty" json:"name"`
	Product    string      `yaml:"product" json:"product"`
	Operations []Operation `yaml:"operations" json:"operations"`
}

func (m *Method) validate(items map[string]*ItemDef) error {
	if m.ID == "" {
		return fmt.Errorf("catalog: method is missing an id")
	}
	if m.Product == "" {
		return fmt.Errorf("catalog: method %q is missing a product", m.ID)
	}
	if _, ok := items[m.Product]; !ok {
		return fmt.Errorf("catalog: method %q: unknown product item %q", m.ID, m.Product)
	}
	if len(m.Operations) == 0 {
		return fmt.Errorf("catalog: method %q has no operations", m.ID)
	}
	seen := make(map[string]bool, len(m.Operations))
	for i := range m.Operations {
		op := &m.Operations[i]
		if err := op.validate(items); err != nil {
			return fmt.Errorf("catalog: method %q: %w", m.ID, err)
		}
		if seen[op.ID] {
			return fmt.Errorf("catalog: method %q: duplicate operation %q", m.ID, op.ID)
		}
		seen[op.ID] = true
	}
	return nil
}

func (m *Method) normalize() {
	if m.Name == "" {
		m.Name = m.ID
	}
	for i := range m.Operations {
		m.Operations[i].normalize()
	}
}

func (o *Operation) validate(items map[string]*ItemDef) error {
	if o.ID == "" {
		return fmt.Errorf("operation is missing an id")
	}
	if err := o.Requires.validate(); err != nil {
		return fmt.Errorf("operation %q: %w", o.ID, err)
	}
	if o.BaseDuration <= 0 {
		return fmt.Errorf("operation %q: duration must be positive", o.ID)
	}
	for _, rule := range o.Consumes {
		if _, ok := items[rule.Item]; !ok {
			return fmt.Errorf("operation %q consumes unknown item %q", o.ID, rule.Item)
		}
		if rule.Count <= 0 {
			return fmt.Errorf("operation %q: consumption of %q needs a positive count", o.ID, rule.Item)
		}
		if rule.MaxQuality < 0 || rule.MaxQuality > 100 {
			return fmt.Errorf("operation %q: max_quality %v out of range", o.ID, rule.MaxQuality)
		}
	}
	for _, rule := range o.Produces {
		if _, ok := items[rule.Item]; !ok {
			return fmt.Errorf("operation %q produces unknown item %q", o.ID, rule.Item)
		}
		if rule.Count <= 0 {
			return fmt.Errorf("operation %q: production of %q needs a positive count", o.ID, rule.Item)
		}
		if rule.InheritQuality && rule.Quality != 0 {
			return fmt.Errorf("operation %q: production of %q sets both quality and inherit_quality", o.ID, rule.Item)
		}
		if !rule.InheritQuality && (rule.Quality <= 0 || rule.Quality > 100) {
			return fmt.Errorf("operation %q: production of %q needs quality in (0,100] or inherit_quality", o.ID, rule.Item)
		}
	}
	if o.FailureChance < 0 || o.FailureChance > 1 {
		return fmt.Errorf("operation %q: failure_chance %v out of range", o.ID, o.FailureChance)
	}
	switch o.OnFailure {
	case "", FailScrap, FailDowngrade, FailRework:
	default:
		return fmt.Errorf("operation %q: unknown failure mode %q", o.ID, o.OnFailure)
	}
	return nil
}

func (o *Operation) normalize() {
	if o.Name == "" {
		o.Name = o.ID
	}
	if o.OnFailure == "" {
		o.OnFailure = FailScrap
	}
	for i := range o.Consumes {
		sort.Strings(o.Consumes[i].RequiredTags)
	}
	for i := range o.Produces {
		sort.Strings(o.Produces[i].Tags)
	}
}

// BillMaterial is one net external input of a method: units the facility must
// supply because no earlier operation produces them.
type BillMaterial struct {
	Item         string   `json:"item"`
	Count        int      `json:"count"`
	RequiredTags []string `json:"required_tags,omitempty"`
	MaxQuality   float64  `json:"max_quality,omitempty"`
}

// BillOfMaterials walks the operations in order and nets each consumption
// against the outputs of earlier operations (matched by item and tags, blind
// to quality). What remains is the stock a job of the given quantity needs
// from the facility up front.
func (m *Method) BillOfMaterials(quantity int) []BillMaterial {
	if quantity <= 0 {
		return nil
	}
	type pooled struct {
		item  string
		tags  []string
		count int
	}
	var pool []pooled
	var bill []BillMaterial
	index := make(map[string]int)

	for _, op := range m.Operations {
		for _, rule := range op.Consumes {
			need := rule.Count * quantity
			for i := range pool {
				if need == 0 {
					break
				}
				if pool[i].count == 0 || pool[i].item != rule.Item {
					continue
				}
				if !tagsCover(pool[i].tags, rule.RequiredTags) {
					continue
				}
				taken := min(need, pool[i].count)
				pool[i].count -= taken
				need -= taken
			}
			if need == 0 {
				continue
			}
			key := rule.Item + "|" + strings.Join(rule.RequiredTags, ",") + "|" + fmt.Sprint(rule.MaxQuality)
			if at, ok := index[key]; ok {
				bill[at].Count += need
				continue
			}
			index[key] = len(bill)
			bill = append(bill, BillMaterial{
				Item:         rule.Item,
				Count:        need,
				RequiredTags: rule.RequiredTags,
				MaxQuality:   rule.MaxQuality,
			})
		}
		for _, rule := range op.Produces {
			pool = append(pool, pooled{item: rule.Item, tags: rule.Tags, count: rule.Count * quantity})
		}
	}
	return bill
}

// tagsCover reports whether every required tag appears in have.
func tagsCover(have, required []string) bool {
	for _, want := range required {
		found := false
		for _, tag := range have {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
