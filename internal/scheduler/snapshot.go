package scheduler

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/equipment"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/inventory"
)

// Snapshot is the full persistable state of a workspace mid-simulation.
// Reference data is never persisted: only ids, which Restore revalidates
// against the catalog.
type Snapshot struct {
	Facility     string            `json:"facility"`
	TakenAt      time.Time         `json:"taken_at"`
	Clock        time.Duration     `json:"clock_ns"`
	Seq          uint64            `json:"seq"`
	RNG          []byte            `json:"rng"`
	Capacity     int               `json:"capacity,omitempty"`
	ArchiveLimit int               `json:"archive_limit"`
	Machines     []MachineSnapshot `json:"machines,omitempty"`
	Queue        []string          `json:"queue,omitempty"`
	Jobs         []JobSnapshot     `json:"jobs,omitempty"`
	Stock        []*inventory.Item `json:"stock,omitempty"`
	Archive      []ArchiveEntry    `json:"archive,omitempty"`
	Events       []CompletionEvent `json:"events,omitempty"`
}

// MachineSnapshot persists one slot.
type MachineSnapshot struct {
	ID        string            `json:"id"`
	Def       string            `json:"def"`
	Condition float64           `json:"condition"`
	Status    string            `json:"status"`
	Run       *ProgressSnapshot `json:"run,omitempty"`
}

// ProgressSnapshot persists a live run.
type ProgressSnapshot struct {
	JobID     string        `json:"job_id"`
	OpID      string        `json:"op_id"`
	Ratio     float64       `json:"ratio"`
	StartedAt time.Duration `json:"started_at_ns"`
	Estimate  time.Duration `json:"estimate_ns"`
}

// OpProduction persists the produced-by-operation record.
type OpProduction struct {
	OpIndex int               `json:"op_index"`
	Items   []*inventory.Item `json:"items"`
}

// JobSnapshot persists one active job.
type JobSnapshot struct {
	ID            string                 `json:"id"`
	Method        string                 `json:"method"`
	Product       string                 `json:"product"`
	Quantity      int                    `json:"quantity"`
	Priority      int                    `json:"priority"`
	Rush          bool                   `json:"rush,omitempty"`
	State         string                 `json:"state"`
	OpIndex       int                    `json:"op_index"`
	CompletedOps  []string               `json:"completed_ops,omitempty"`
	Consumed      map[string]int         `json:"consumed,omitempty"`
	QualityFactor float64                `json:"quality_factor"`
	MachineID     string                 `json:"machine_id,omitempty"`
	CreatedAt     time.Duration          `json:"created_at_ns"`
	Seq           uint64                 `json:"seq"`
	Inventory     []*inventory.Item      `json:"inventory,omitempty"`
	Produced      []OpProduction         `json:"produced,omitempty"`
	Outstanding   []catalog.BillMaterial `json:"outstanding,omitempty"`
}

func cloneItems(items []*inventory.Item) []*inventory.Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]*inventory.Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

func cloneCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}

// Snapshot captures the workspace. The result is detached plain data: nothing
// in it aliases live state, so it stays valid however long the host sits on
// it before encoding.
func (w *Workspace) Snapshot() *Snapshot {
	snap := &Snapshot{
		Facility:     w.facility,
		TakenAt:      time.Now().UTC(),
		Clock:        w.clock,
		Seq:          w.seq,
		Capacity:     w.stock.Capacity(),
		ArchiveLimit: w.archiveLimit,
		Stock:        cloneItems(w.stock.Items()),
		Archive:      w.Archive(),
		Events:       append([]CompletionEvent(nil), w.events...),
	}
	snap.RNG, _ = w.pcg.MarshalBinary()

	for _, s := range w.slots {
		m := MachineSnapshot{
			ID:        s.Machine.ID,
			Def:       s.Machine.DefID,
			Condition: s.Machine.Condition,
			Status:    s.Machine.Status,
		}
		if s.Run != nil {
			m.Run = &ProgressSnapshot{
				JobID:     s.Run.JobID,
				OpID:      s.Run.OpID,
				Ratio:     s.Run.Ratio,
				StartedAt: s.Run.StartedAt,
				Estimate:  s.Run.Estimate,
			}
		}
		snap.Machines = append(snap.Machines, m)
	}

	for _, job := range w.queue.Jobs() {
		snap.Queue = append(snap.Queue, job.ID)
	}

	for _, job := range w.jobs {
		js := JobSnapshot{
			ID:            job.ID,
			Method:        job.MethodID,
			Product:       job.Product,
			Quantity:      job.Quantity,
			Priority:      job.Priority,
			Rush:          job.Rush,
			State:         job.State,
			OpIndex:       job.OpIndex,
			CompletedOps:  append([]string(nil), job.CompletedOps...),
			Consumed:      cloneCounts(job.Consumed),
			QualityFactor: job.QualityFactor,
			MachineID:     job.MachineID,
			CreatedAt:     job.CreatedAt,
			Seq:           job.seq,
			Inventory:     cloneItems(job.Inventory.Items()),
			Outstanding:   job.Outstanding(),
		}
		for opIndex, items := range job.produced {
			js.Produced = append(js.Produced, OpProduction{OpIndex: opIndex, Items: cloneItems(items)})
		}
		sort.Slice(js.Produced, func(i, j int) bool { return js.Produced[i].OpIndex < js.Produced[j].OpIndex })
		snap.Jobs = append(snap.Jobs, js)
	}
	sort.Slice(snap.Jobs, func(i, j int) bool { return snap.Jobs[i].Seq < snap.Jobs[j].Seq })
	return snap
}

// Restore rebuilds a workspace from a snapshot against a catalog handle.
// Facility, capacity, archive bound and rng state come from the snapshot;
// every persisted id must resolve or restore fails loudly.
func Restore(cat *catalog.Catalog, logger *slog.Logger, snap *Snapshot) (*Workspace, error) {
	w, err := New(Config{
		Facility:     snap.Facility,
		Catalog:      cat,
		Capacity:     snap.Capacity,
		ArchiveLimit: snap.ArchiveLimit,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	w.clock = snap.Clock
	w.seq = snap.Seq
	if len(snap.RNG) > 0 {
		if err := w.pcg.UnmarshalBinary(snap.RNG); err != nil {
			return nil, fmt.Errorf("scheduler: restore rng: %w", err)
		}
	}

	for _, it := range snap.Stock {
		if _, ok := cat.Item(it.Type); !ok {
			return nil, fmt.Errorf("scheduler: snapshot stock references unknown item %q", it.Type)
		}
		w.stock.Accept(it.Clone())
	}

	for _, m := range snap.Machines {
		def, ok := cat.Equipment(m.Def)
		if !ok {
			return nil, fmt.Errorf("scheduler: snapshot references unknown equipment %q", m.Def)
		}
		in := equipment.Restore(m.ID, def, m.Condition, m.Status)
		w.slots = append(w.slots, &slot{Machine: in})
	}

	for _, js := range snap.Jobs {
		method, ok := cat.Method(js.Method)
		if !ok {
			return nil, fmt.Errorf("scheduler: snapshot references unknown method %q", js.Method)
		}
		job := &Job{
			ID:            js.ID,
			Facility:      snap.Facility,
			Product:       js.Product,
			MethodID:      js.Method,
			Quantity:      js.Quantity,
			Priority:      js.Priority,
			Rush:          js.Rush,
			State:         js.State,
			OpIndex:       js.OpIndex,
			CompletedOps:  append([]string(nil), js.CompletedOps...),
			Consumed:      cloneCounts(js.Consumed),
			QualityFactor: js.QualityFactor,
			MachineID:     js.MachineID,
			CreatedAt:     js.CreatedAt,
			Inventory:     inventory.New(js.ID, 0),
			method:        method,
			produced:      make(map[int][]*inventory.Item),
			outstanding:   append([]catalog.BillMaterial(nil), js.Outstanding...),
			seq:           js.Seq,
		}
		for _, it := range js.Inventory {
			if _, ok := cat.Item(it.Type); !ok {
				return nil, fmt.Errorf("scheduler: snapshot job %s references unknown item %q", js.ID, it.Type)
			}
			job.Inventory.Accept(it.Clone())
		}
		for _, prod := range js.Produced {
			job.produced[prod.OpIndex] = cloneItems(prod.Items)
		}
		w.jobs[job.ID] = job
	}

	for _, id := range snap.Queue {
		job, ok := w.jobs[id]
		if !ok {
			return nil, fmt.Errorf("scheduler: snapshot queue references unknown job %q", id)
		}
		w.queue.jobs = append(w.queue.jobs, job)
	}

	for i, m := range snap.Machines {
		if m.Run == nil {
			continue
		}
		job, ok := w.jobs[m.Run.JobID]
		if !ok {
			return nil, fmt.Errorf("scheduler: snapshot run references unknown job %q", m.Run.JobID)
		}
		op := job.CurrentOp()
		if op == nil || op.ID != m.Run.OpID {
			return nil, fmt.Errorf("scheduler: snapshot run op %q does not match job %s", m.Run.OpID, job.ID)
		}
		w.slots[i].Run = &progress{
			JobID:     m.Run.JobID,
			OpID:      m.Run.OpID,
			Ratio:     m.Run.Ratio,
			StartedAt: m.Run.StartedAt,
			Estimate:  m.Run.Estimate,
		}
	}

	w.archive = append(w.archive, snap.Archive...)
	w.events = append(w.events, snap.Events...)
	return w, nil
}
