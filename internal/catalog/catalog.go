// Package catalog holds the immutable reference data of the manufacturing
// engine: equipment and item definitions and the methods that turn one into
// the other. A Catalog is built once at startup and passed by handle; nothing
// in it changes after New returns.
package catalog

import (
	"fmt"
	"sort"
)

// Catalog is the validated, immutable registry of definitions.
type Catalog struct {
	equipment map[string]*EquipmentDef
	items     map[string]*ItemDef
	methods   map[string]*Method
}

// New validates and indexes the given definitions. Every cross reference is
// checked here so the rest of the engine can trust lookups.
func New(equipment []EquipmentDef, items []ItemDef, methods []Method) (*Catalog, error) {
	c := &Catalog{
		equipment: make(map[string]*EquipmentDef, len(equipment)),
		items:     make(map[string]*ItemDef, len(items)),
		methods:   make(map[string]*Method, len(methods)),
	}
	for i := range items {
		def := items[i]
		if err := def.validate(); err != nil {
			return nil, err
		}
		def.normalize()
		if _, dup := c.items[def.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate item %q", def.ID)
		}
		c.items[def.ID] = &def
	}
	for i := range equipment {
		def := equipment[i]
		if err := def.validate(); err != nil {
			return nil, err
		}
		def.normalize()
		if _, dup := c.equipment[def.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate equipment %q", def.ID)
		}
		c.equipment[def.ID] = &def
	}
	for i := range methods {
		def := methods[i]
		if err := def.validate(c.items); err != nil {
			return nil, err
		}
		def.normalize()
		if _, dup := c.methods[def.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate method %q", def.ID)
		}
		c.methods[def.ID] = &def
	}
	return c, nil
}

// Equipment looks up an equipment definition.
func (c *Catalog) Equipment(id string) (*EquipmentDef, bool) {
	def, ok := c.equipment[id]
	return def, ok
}

// Item looks up an item definition.
func (c *Catalog) Item(id string) (*ItemDef, bool) {
	def, ok := c.items[id]
	return def, ok
}

// Method looks up a method definition.
func (c *Catalog) Method(id string) (*Method, bool) {
	def, ok := c.methods[id]
	return def, ok
}

// MethodsFor lists the methods producing an item, sorted by id.
func (c *Catalog) MethodsFor(product string) []*Method {
	var out []*Method
	for _, m := range c.methods {
		if m.Product == product {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EquipmentIDs returns all equipment definition ids, sorted.
func (c *Catalog) EquipmentIDs() []string {
	out := make([]string, 0, len(c.equipment))
	for id := range c.equipment {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ItemIDs returns all item definition ids, sorted.
func (c *Catalog) ItemIDs() []string {
	out := make([]string, 0, len(c.items))
	for id := range c.items {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MethodIDs returns all method ids, sorted.
func (c *Catalog) MethodIDs() []string {
	out := make([]string, 0, len(c.methods))
	for id := range c.methods {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
