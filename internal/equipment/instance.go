// Package equipment tracks the runtime state of machines on a facility
// floor. Definitions stay in the catalog; an Instance adds the mutable parts:
// condition and status.
package equipment

import (
	"github.com/google/uuid"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
)

// Statuses an instance moves through.
const (
	StatusAvailable   = "available"
	StatusReserved    = "reserved"
	StatusInUse       = "in_use"
	StatusMaintenance = "maintenance"
	StatusBroken      = "broken"
)

// Instance is one physical machine. Condition runs 0-100 and scales every
// numeric capability the definition provides.
type Instance struct {
	ID        string  `json:"id"`
	DefID     string  `json:"def_id"`
	Condition float64 `json:"condition"`
	Status    string  `json:"status"`

	def *catalog.EquipmentDef
}

// New creates a factory-fresh instance of a definition.
func New(def *catalog.EquipmentDef) *Instance {
	return &Instance{
		ID:        uuid.NewString(),
		DefID:     def.ID,
		Condition: 100,
		Status:    StatusAvailable,
		def:       def,
	}
}

// Restore rebuilds an instance from persisted fields.
func Restore(id string, def *catalog.EquipmentDef, condition float64, status string) *Instance {
	return &Instance{ID: id, DefID: def.ID, Condition: condition, Status: status, def: def}
}

// Def returns the immutable definition.
func (in *Instance) Def() *catalog.EquipmentDef { return in.def }

// EffectiveValue is the capability this machine contributes for a category
// right now. Numeric tags scale with condition; boolean tags are all-or-
// nothing and only need the machine to be in working order.
func (in *Instance) EffectiveValue(category catalog.Category) float64 {
	tag, ok := in.def.Tag(category)
	if !ok || in.Condition <= 0 {
		return 0
	}
	if tag.Boolean {
		return 1
	}
	return tag.Value * in.Condition / 100
}

// Satisfies reports whether the machine meets a requirement's minimum at its
// current condition.
func (in *Instance) Satisfies(req catalog.Requirement) bool {
	return in.EffectiveValue(req.Category) >= req.Minimum
}

// Assignable reports whether the scheduler may hand this machine a job.
func (in *Instance) Assignable() bool { return in.Status == StatusAvailable }

// Occupy marks the machine busy with a job.
func (in *Instance) Occupy() { in.Status = StatusInUse }

// Free returns a busy machine to the pool. Broken or maintenance states are
// left alone.
func (in *Instance) Free() {
	if in.Status == StatusInUse {
		in.Status = StatusAvailable
	}
}

// ApplyWear charges one completed run's worth of condition decay. A machine
// worn to zero breaks in place.
func (in *Instance) ApplyWear() {
	in.Condition -= in.def.Decay
	if in.Condition <= 0 {
		in.Condition = 0
		in.Status = StatusBroken
	}
}

// Reserve excludes an idle machine from scheduling, e.g. ahead of a sale.
func (in *Instance) Reserve() bool {
	if in.Status != StatusAvailable {
		return false
	}
	in.Status = StatusReserved
	return true
}

// Unreserve returns a reserved machine to the pool.
func (in *Instance) Unreserve() bool {
	if in.Status != StatusReserved {
		return false
	}
	in.Status = StatusAvailable
	return true
}

// StartMaintenance takes the machine off the floor. The scheduler displaces
// any bound job before calling this.
func (in *Instance) StartMaintenance() { in.Status = StatusMaintenance }

// FinishMaintenance restores full condition and returns the machine to the
// pool. Broken machines come back through here too.
func (in *Instance) FinishMaintenance() {
	in.Condition = 100
	in.Status = StatusAvailable
}
