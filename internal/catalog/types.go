package catalog

import "fmt"

// Category names a capability axis, e.g. "milling" or "surface_plate".
type Category string

// Tag is one capability an equipment definition provides. Boolean tags are
// yes/no capabilities and always carry value 1; consumable numeric tags pool
// additively across instances instead of taking the best single machine.
type Tag struct {
	Category   Category `yaml:"category" json:"category"`
	Value      float64  `yaml:"value,omitempty" json:"value"`
	Boolean    bool     `yaml:"boolean,omitempty" json:"boolean,omitempty"`
	Consumable bool     `yaml:"consumable,omitempty" json:"consumable,omitempty"`
}

func (t Tag) validate() error {
	if t.Category == "" {
		return fmt.Errorf("catalog: tag is missing a category")
	}
	if t.Boolean && t.Consumable {
		return fmt.Errorf("catalog: tag %q: boolean tags cannot be consumable", t.Category)
	}
	if !t.Boolean && t.Value <= 0 {
		return fmt.Errorf("catalog: tag %q: numeric tags need a positive value", t.Category)
	}
	return nil
}

// Requirement is the single capability an operation demands. Optimal is the
// value at which the operation runs penalty-free; zero means "minimum is
// already optimal".
type Requirement struct {
	Category Category `yaml:"category" json:"category"`
	Minimum  float64  `yaml:"minimum" json:"minimum"`
	Optimal  float64  `yaml:"optimal,omitempty" json:"optimal,omitempty"`
}

// Target is the denominator of the efficiency ratio.
func (r Requirement) Target() float64 {
	if r.Optimal > 0 {
		return r.Optimal
	}
	return r.Minimum
}

func (r Requirement) validate() error {
	if r.Category == "" {
		return fmt.Errorf("catalog: requirement is missing a category")
	}
	if r.Minimum <= 0 {
		return fmt.Errorf("catalog: requirement %q: minimum must be positive", r.Category)
	}
	if r.Optimal != 0 && r.Optimal < r.Minimum {
		return fmt.Errorf("catalog: requirement %q: optimal %v below minimum %v", r.Category, r.Optimal, r.Minimum)
	}
	return nil
}

// EquipmentDef is the immutable blueprint for a machine. Decay is the number
// of condition points one completed run costs an instance.
type EquipmentDef struct {
	ID        string  `yaml:"id" json:"id"`
	Name      string  `yaml:"name,omitempty" json:"name"`
	Tags      []Tag   `yaml:"tags" json:"tags"`
	Footprint float64 `yaml:"footprint,omitempty" json:"footprint,omitempty"`
	Cost      float64 `yaml:"cost,omitempty" json:"cost,omitempty"`
	Decay     float64 `yaml:"decay,omitempty" json:"decay,omitempty"`
}

// Tag returns the definition's tag for a category, if present.
func (d *EquipmentDef) Tag(category Category) (Tag, bool) {
	for _, tag := range d.Tags {
		if tag.Category == category {
			return tag, true
		}
	}
	return Tag{}, false
}

func (d *EquipmentDef) validate() error {
	if d.ID == "" {
		return fmt.Errorf("catalog: equipment definition is missing an id")
	}
	if len(d.Tags) == 0 {
		return fmt.Errorf("catalog: equipment %q has no capability tags", d.ID)
	}
	seen := make(map[Category]bool, len(d.Tags))
	for _, tag := range d.Tags {
		if err := tag.validate(); err != nil {
			return fmt.Errorf("catalog: equipment %q: %w", d.ID, err)
		}
		if seen[tag.Category] {
			return fmt.Errorf("catalog: equipment %q: duplicate tag %q", d.ID, tag.Category)
		}
		seen[tag.Category] = true
	}
	if d.Decay < 0 || d.Decay > 100 {
		return fmt.Errorf("catalog: equipment %q: decay %v out of range", d.ID, d.Decay)
	}
	return nil
}

func (d *EquipmentDef) normalize() {
	if d.Name == "" {
		d.Name = d.ID
	}
	for i := range d.Tags {
		if d.Tags[i].Boolean {
			d.Tags[i].Value = 1
		}
	}
}

// ItemDef names a base item type referenced by consumption and production
// rules.
type ItemDef struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name"`
}

func (d *ItemDef) validate() error {
	if d.ID == "" {
		return fmt.Errorf("catalog: item definition is missing an id")
	}
	return nil
}

func (d *ItemDef) normalize() {
	if d.Name == "" {
		d.Name = d.ID
	}
}
