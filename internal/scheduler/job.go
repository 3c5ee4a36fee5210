package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/inventory"
)

// Job lifecycle states. A job re-enters queued after every finished
// operation until the method runs out of steps.
const (
	StateQueued     = "queued"
	StateInProgress = "in_progress"
	StateCompleted  = "completed"
	StateFailed     = "failed"
	StateCancelled  = "cancelled"
)

// Job is one order moving through a workspace: a method applied quantity
// times, with its own private inventory.
type Job struct {
	ID            string
	Facility      string
	Product       string
	MethodID      string
	Quantity      int
	Priority      int
	Rush          bool
	State         string
	OpIndex       int
	CompletedOps  []string
	Consumed      map[string]int
	QualityFactor float64
	MachineID     string
	CreatedAt     time.Duration
	Inventory     *inventory.Inventory

	method      *catalog.Method
	produced    map[int][]*inventory.Item
	outstanding []catalog.BillMaterial
	seq         uint64
}

func newJob(facility string, method *catalog.Method, quantity, priority int, rush bool, seq uint64, now time.Duration) *Job {
	id := uuid.NewString()
	return &Job{
		ID:            id,
		Facility:      facility,
		Product:       method.Product,
		MethodID:      method.ID,
		Quantity:      quantity,
		Priority:      priority,
		Rush:          rush,
		State:         StateQueued,
		Consumed:      make(map[string]int),
		QualityFactor: 1,
		CreatedAt:     now,
		Inventory:     inventory.New(id, 0),
		method:        method,
		produced:      make(map[int][]*inventory.Item),
		outstanding:   method.BillOfMaterials(quantity),
		seq:           seq,
	}
}

// Method returns the job's immutable method definition.
func (j *Job) Method() *catalog.Method { return j.method }

// CurrentOp is the operation the job runs next, nil once all steps finished.
func (j *Job) CurrentOp() *catalog.Operation {
	if j.OpIndex >= len(j.method.Operations) {
		return nil
	}
	return &j.method.Operations[j.OpIndex]
}

// Terminal reports whether the job reached an end state.
func (j *Job) Terminal() bool {
	switch j.State {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Reserved reports whether the admission-time reservation is fully moved in.
func (j *Job) Reserved() bool { return len(j.outstanding) == 0 }

// Outstanding lists the still-unreserved bill lines.
func (j *Job) Outstanding() []catalog.BillMaterial {
	out := make([]catalog.BillMaterial, len(j.outstanding))
	copy(out, j.outstanding)
	return out
}

// advance records a finished operation. The index only ever moves forward.
func (j *Job) advance(opID string) {
	j.CompletedOps = append(j.CompletedOps, opID)
	j.OpIndex++
}

func (j *Job) recordConsumed(totals map[string]int) {
	for item, units := range totals {
		j.Consumed[item] += units
	}
}

// recordProduced logs an operation's outputs. The log holds clones so later
// consumption cannot rewrite history.
func (j *Job) recordProduced(opIndex int, items []*inventory.Item) {
	for _, it := range items {
		j.produced[opIndex] = append(j.produced[opIndex], it.Clone())
	}
}

// finalQuality is the weighted mean quality of the last operation's outputs,
// used for the completion event.
func (j *Job) finalQuality() float64 {
	items := j.produced[len(j.method.Operations)-1]
	units := 0
	weighted := 0.0
	for _, it := range items {
		units += it.Quantity
		weighted += it.Quality * float64(it.Quantity)
	}
	if units == 0 {
		return 0
	}
	return weighted / float64(units)
}

// topUp moves still-outstanding bill lines from the facility stock into the
// job inventory, best quality first, and keeps whatever remains owed.
func (j *Job) topUp(stock *inventory.Inventory) {
	if len(j.outstanding) == 0 {
		return
	}
	var left []catalog.BillMaterial
	for _, line := range j.outstanding {
		moved := stock.MoveTo(j.Inventory, inventory.Request{
			Type:         line.Item,
			Count:        line.Count,
			RequiredTags: line.RequiredTags,
			MaxQuality:   line.MaxQuality,
		})
		line.Count -= moved
		if line.Count > 0 {
			left = append(left, line)
		}
	}
	j.outstanding = left
}

// View is the host-facing read model of a job.
type View struct {
	ID            string                 `json:"id"`
	Facility      string                 `json:"facility"`
	Product       string                 `json:"product"`
	Method        string                 `json:"method"`
	Quantity      int                    `json:"quantity"`
	Priority      int                    `json:"priority"`
	Rush          bool                   `json:"rush,omitempty"`
	State         string                 `json:"state"`
	OpIndex       int                    `json:"op_index"`
	OpCount       int                    `json:"op_count"`
	CurrentOp     string                 `json:"current_op,omitempty"`
	CompletedOps  []string               `json:"completed_ops,omitempty"`
	QualityFactor float64                `json:"quality_factor"`
	MachineID     string                 `json:"machine_id,omitempty"`
	Inventory     []*inventory.Item      `json:"inventory,omitempty"`
	Outstanding   []catalog.BillMaterial `json:"outstanding,omitempty"`
}

// View snapshots the job for reporting. The copy is detached: mutating the
// job after the fact does not reach a View already handed out.
func (j *Job) View() View {
	v := View{
		ID:            j.ID,
		Facility:      j.Facility,
		Product:       j.Product,
		Method:        j.MethodID,
		Quantity:      j.Quantity,
		Priority:      j.Priority,
		Rush:          j.Rush,
		State:         j.State,
		OpIndex:       j.OpIndex,
		OpCount:       len(j.method.Operations),
		CompletedOps:  append([]string(nil), j.CompletedOps...),
		QualityFactor: j.QualityFactor,
		MachineID:     j.MachineID,
		Inventory:     cloneItems(j.Inventory.Items()),
		Outstanding:   j.Outstanding(),
	}
	if op := j.CurrentOp(); op != nil {
		v.CurrentOp = op.ID
	}
	return v
}
