package scheduler

import (
	"time"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/inventory"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/operation"
)

// StackSummary describes material returned to facility stock when a job
// reached a terminal state.
type StackSummary struct {
	Type     string   `json:"type"`
	Quantity int      `json:"quantity"`
	Quality  float64  `json:"quality"`
	Tags     []string `json:"tags,omitempty"`
}

// ArchiveEntry is the bounded record of a terminal job.
type ArchiveEntry struct {
	JobID        string         `json:"job_id"`
	Method       string         `json:"method"`
	Product      string         `json:"product"`
	Quantity     int            `json:"quantity"`
	State        string         `json:"state"`
	CompletedOps []string       `json:"completed_ops,omitempty"`
	Consumed     map[string]int `json:"consumed,omitempty"`
	Returned     []StackSummary `json:"returned,omitempty"`
	ArchivedAt   time.Duration  `json:"archived_at_ns"`
}

// MachineReport is one slot in a status report.
type MachineReport struct {
	ID        string        `json:"id"`
	Def       string        `json:"def"`
	Name      string        `json:"name"`
	Condition float64       `json:"condition"`
	Status    string        `json:"status"`
	JobID     string        `json:"job_id,omitempty"`
	Op        string        `json:"op,omitempty"`
	Percent   float64       `json:"percent,omitempty"`
	DoneAt    time.Duration `json:"done_at_ns,omitempty"`
}

// StallReport flags a queued job the workspace cannot serve right now. Jobs
// never expire on their own; surfacing the reason is the host's hook for
// fixing the shortfall.
type StallReport struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

// Stall reasons.
const (
	StallNoEquipment = "no capable equipment"
	StallMaterials   = "awaiting materials"
)

// StatusReport is the full host-facing view of a workspace.
type StatusReport struct {
	Facility string            `json:"facility"`
	Clock    time.Duration     `json:"clock_ns"`
	Machines []MachineReport   `json:"machines"`
	Active   []View            `json:"active,omitempty"`
	Queue    []View            `json:"queue,omitempty"`
	Stock    []*inventory.Item `json:"stock,omitempty"`
	Stalled  []StallReport     `json:"stalled,omitempty"`
	Archived int               `json:"archived"`
	Pending  int               `json:"pending_events"`
}

// StalledJobs lists queued jobs that cannot start: either no machine on the
// floor reaches the operation's minimum at its current condition, or the
// consumption preconditions are still unmet.
func (w *Workspace) StalledJobs() []StallReport {
	var out []StallReport
	for _, job := range w.queue.Jobs() {
		op := job.CurrentOp()
		if op == nil {
			continue
		}
		capable := false
		for _, s := range w.slots {
			if s.Machine.Satisfies(op.Requires) {
				capable = true
				break
			}
		}
		if !capable {
			out = append(out, StallReport{JobID: job.ID, Reason: StallNoEquipment})
			continue
		}
		if !operation.CanStart(op, job.Inventory, job.Quantity) {
			out = append(out, StallReport{JobID: job.ID, Reason: StallMaterials})
		}
	}
	return out
}

// Archive returns the terminal-job log, oldest first.
func (w *Workspace) Archive() []ArchiveEntry {
	out := make([]ArchiveEntry, len(w.archive))
	copy(out, w.archive)
	return out
}

// ArchivedJob finds a terminal job's record.
func (w *Workspace) ArchivedJob(id string) (ArchiveEntry, bool) {
	for i := len(w.archive) - 1; i >= 0; i-- {
		if w.archive[i].JobID == id {
			return w.archive[i], true
		}
	}
	return ArchiveEntry{}, false
}

// Report assembles the status view. Like View, it holds no live pointers, so
// callers may keep it past the next tick.
func (w *Workspace) Report() StatusReport {
	rep := StatusReport{
		Facility: w.facility,
		Clock:    w.clock,
		Stock:    cloneItems(w.stock.Items()),
		Stalled:  w.StalledJobs(),
		Archived: len(w.archive),
		Pending:  len(w.events),
	}
	for _, s := range w.slots {
		m := MachineReport{
			ID:        s.Machine.ID,
			Def:       s.Machine.DefID,
			Name:      s.Machine.Def().Name,
			Condition: s.Machine.Condition,
			Status:    s.Machine.Status,
		}
		if s.Run != nil {
			m.JobID = s.Run.JobID
			m.Op = s.Run.OpID
			m.Percent = s.percent(w.clock)
			m.DoneAt = s.Run.Estimate
			if job, ok := w.jobs[s.Run.JobID]; ok {
				rep.Active = append(rep.Active, job.View())
			}
		}
		rep.Machines = append(rep.Machines, m)
	}
	for _, job := range w.queue.Jobs() {
		rep.Queue = append(rep.Queue, job.View())
	}
	return rep
}
