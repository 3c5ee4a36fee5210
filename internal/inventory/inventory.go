package inventory

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCapacity is returned when a deposit would push an inventory past its
// unit capacity.
var ErrCapacity = errors.New("inventory: capacity exceeded")

// Request selects units of a base type out of an inventory. RequiredTags
// narrows the match, MaxQuality caps it (0 = uncapped).
type Request struct {
	Type         string
	Count        int
	RequiredTags []string
	MaxQuality   float64
}

// Inventory is an owner-scoped collection of item stacks grouped by type.
// Capacity counts total units; zero means unbounded. Host deposits respect
// the capacity, engine-internal moves (reservation, terminal flush-back) do
// not, so a finishing job can never strand material.
type Inventory struct {
	owner    string
	capacity int
	stacks   map[string][]*Item
	units    int
}

// New creates an empty inventory.
func New(owner string, capacity int) *Inventory {
	return &Inventory{
		owner:    owner,
		capacity: capacity,
		stacks:   make(map[string][]*Item),
	}
}

// Owner returns the owning scope, a facility or job id.
func (inv *Inventory) Owner() string { return inv.owner }

// Capacity returns the unit capacity, 0 when unbounded.
func (inv *Inventory) Capacity() int { return inv.capacity }

// TotalUnits is the number of units across all stacks.
func (inv *Inventory) TotalUnits() int { return inv.units }

// Deposit adds a stack, enforcing capacity.
func (inv *Inventory) Deposit(it *Item) error {
	if it.Quantity <= 0 {
		return fmt.Errorf("inventory: deposit of %q needs a positive quantity", it.Type)
	}
	if inv.capacity > 0 && inv.units+it.Quantity > inv.capacity {
		return fmt.Errorf("%w: %s holds %d/%d units", ErrCapacity, inv.owner, inv.units, inv.capacity)
	}
	inv.add(it)
	return nil
}

// Accept adds a stack without a capacity check.
func (inv *Inventory) Accept(it *Item) {
	if it.Quantity <= 0 {
		return
	}
	inv.add(it)
}

func (inv *Inventory) add(it *Item) {
	for _, have := range inv.stacks[it.Type] {
		if sameStack(have, it) {
			have.Quantity += it.Quantity
			inv.units += it.Quantity
			return
		}
	}
	inv.stacks[it.Type] = append(inv.stacks[it.Type], it)
	inv.units += it.Quantity
}

// Available counts the units that match a request's filters.
func (inv *Inventory) Available(req Request) int {
	total := 0
	for _, it := range inv.stacks[req.Type] {
		if it.Matches(req) {
			total += it.Quantity
		}
	}
	return total
}

// CanSupply reports whether a request could be taken in full.
func (inv *Inventory) CanSupply(req Request) bool {
	return inv.Available(req) >= req.Count
}

// Count returns the units of a type, any tags, any quality.
func (inv *Inventory) Count(itemType string) int {
	total := 0
	for _, it := range inv.stacks[itemType] {
		total += it.Quantity
	}
	return total
}

// Take removes exactly req.Count matching units, best quality first, and
// returns the moved stacks. It is all-or-nothing: on shortfall nothing moves.
func (inv *Inventory) Take(req Request) ([]*Item, bool) {
	if !inv.CanSupply(req) {
		return nil, false
	}
	return inv.TakeUpTo(req), true
}

// TakeUpTo removes as many matching units as it can, up to req.Count, best
// quality first. Used by reservation, where partial progress is fine.
func (inv *Inventory) TakeUpTo(req Request) []*Item {
	if req.Count <= 0 {
		return nil
	}
	var candidates []*Item
	for _, it := range inv.stacks[req.Type] {
		if it.Matches(req) {
			candidates = append(candidates, it)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Quality > candidates[j].Quality
	})

	need := req.Count
	var moved []*Item
	for _, it := range candidates {
		if need == 0 {
			break
		}
		if it.Quantity > need {
			moved = append(moved, it.split(need))
			inv.units -= need
			need = 0
			break
		}
		inv.remove(it)
		moved = append(moved, it)
		need -= it.Quantity
	}
	return moved
}

// MoveTo takes up to req.Count matching units and accepts them into dst,
// returning the units moved.
func (inv *Inventory) MoveTo(dst *Inventory, req Request) int {
	moved := inv.TakeUpTo(req)
	units := 0
	for _, it := range moved {
		units += it.Quantity
		dst.Accept(it)
	}
	return units
}

// FlushTo moves every stack into dst and returns the flushed stacks. The
// receiver ends up empty.
func (inv *Inventory) FlushTo(dst *Inventory) []*Item {
	flushed := inv.Items()
	for _, it := range flushed {
		dst.Accept(it)
	}
	inv.stacks = make(map[string][]*Item)
	inv.units = 0
	return flushed
}

// Items returns all stacks in deterministic order: types sorted, stacks in
// insertion order.
func (inv *Inventory) Items() []*Item {
	types := make([]string, 0, len(inv.stacks))
	for t, stacks := range inv.stacks {
		if len(stacks) > 0 {
			types = append(types, t)
		}
	}
	sort.Strings(types)
	var out []*Item
	for _, t := range types {
		out = append(out, inv.stacks[t]...)
	}
	return out
}

func (inv *Inventory) remove(target *Item) {
	stacks := inv.stacks[target.Type]
	for i, it := range stacks {
		if it.ID == target.ID {
			inv.stacks[target.Type] = append(stacks[:i], stacks[i+1:]...)
			inv.units -= it.Quantity
			return
		}
	}
}
