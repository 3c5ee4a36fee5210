// Package scheduler runs one facility's workspace: machine slots, the job
// queue, and the tick loop that moves material through methods. Everything is
// single-threaded and cooperative; the host owns time and calls Advance.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/capability"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/equipment"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/inventory"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/operation"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/telemetry"
)

// Configuration mistakes fail loudly; material shortfalls never do.
var (
	ErrUnknownMethod    = errors.New("scheduler: unknown method")
	ErrUnknownEquipment = errors.New("scheduler: unknown equipment definition")
	ErrUnknownMachine   = errors.New("scheduler: unknown machine")
	ErrBadQuantity      = errors.New("scheduler: quantity must be positive")
)

// DefaultArchiveLimit bounds the terminal-job log when the config leaves it
// unset.
const DefaultArchiveLimit = 64

// CompletionEvent is queued when a job completes and drained by the host
// strictly after the tick that produced it.
type CompletionEvent struct {
	JobID    string        `json:"job_id"`
	Facility string        `json:"facility"`
	Product  string        `json:"product"`
	Method   string        `json:"method"`
	Quantity int           `json:"quantity"`
	Quality  float64       `json:"quality"`
	At       time.Duration `json:"at_ns"`
}

// Config wires a workspace. Facility and Catalog are required.
type Config struct {
	Facility     string
	Catalog      *catalog.Catalog
	Capacity     int // facility inventory units, 0 = unbounded
	ArchiveLimit int
	Seed         uint64
	Logger       *slog.Logger

	// ArchiveSink, if set, observes every terminal job as it is archived.
	// Called synchronously from the tick; keep it cheap.
	ArchiveSink func(ArchiveEntry)
}

// Workspace is one facility's scheduler state.
type Workspace struct {
	facility     string
	cat          *catalog.Catalog
	clock        time.Duration
	seq          uint64
	slots        []*slot
	queue        queue
	jobs         map[string]*Job
	stock        *inventory.Inventory
	archive      []ArchiveEntry
	archiveLimit int
	archiveSink  func(ArchiveEntry)
	events       []CompletionEvent
	pcg          *rand.PCG
	rng          *rand.Rand
	log          *slog.Logger
}

// New builds an empty workspace around a catalog handle.
func New(cfg Config) (*Workspace, error) {
	if cfg.Facility == "" {
		return nil, errors.New("scheduler: facility id is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("scheduler: catalog handle is required")
	}
	limit := cfg.ArchiveLimit
	if limit <= 0 {
		limit = DefaultArchiveLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pcg := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	return &Workspace{
		facility:     cfg.Facility,
		cat:          cfg.Catalog,
		jobs:         make(map[string]*Job),
		stock:        inventory.New(cfg.Facility, cfg.Capacity),
		archiveLimit: limit,
		archiveSink:  cfg.ArchiveSink,
		pcg:          pcg,
		rng:          rand.New(pcg),
		log:          logger.With("facility", cfg.Facility),
	}, nil
}

// SetArchiveSink installs the terminal-job observer, e.g. after a restore.
func (w *Workspace) SetArchiveSink(fn func(ArchiveEntry)) { w.archiveSink = fn }

// Facility returns the owning facility id.
func (w *Workspace) Facility() string { return w.facility }

// Clock is the workspace's simulated time.
func (w *Workspace) Clock() time.Duration { return w.clock }

// Stock is the facility inventory.
func (w *Workspace) Stock() *inventory.Inventory { return w.stock }

// Job looks up an active (non-terminal) job.
func (w *Workspace) Job(id string) (*Job, bool) {
	j, ok := w.jobs[id]
	return j, ok
}

// Queued returns the queue in assignment order.
func (w *Workspace) Queued() []*Job { return w.queue.Jobs() }

// Machines lists the floor in slot order.
func (w *Workspace) Machines() []*equipment.Instance {
	out := make([]*equipment.Instance, len(w.slots))
	for i, s := range w.slots {
		out[i] = s.Machine
	}
	return out
}

// Deposit adds host-supplied stock to the facility inventory, respecting its
// capacity.
func (w *Workspace) Deposit(it *inventory.Item) error {
	if err := w.stock.Deposit(it); err != nil {
		return err
	}
	w.log.Info("stock deposited", "item", it.Type, "quantity", it.Quantity, "quality", it.Quality)
	return nil
}

// AddMachine puts a new instance of an equipment definition on the floor.
// Machines can arrive mid-run; the next tick may assign them.
func (w *Workspace) AddMachine(defID string) (*equipment.Instance, error) {
	def, ok := w.cat.Equipment(defID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEquipment, defID)
	}
	in := equipment.New(def)
	w.slots = append(w.slots, &slot{Machine: in})
	w.log.Info("machine added", "machine", in.ID, "def", defID)
	return in, nil
}

// RemoveMachine takes a machine off the floor. A job running on it returns to
// the head of the queue with its completed operations intact.
func (w *Workspace) RemoveMachine(id string) (*equipment.Instance, error) {
	for i, s := range w.slots {
		if s.Machine.ID != id {
			continue
		}
		if !s.Idle() {
			w.displace(s, "machine removed")
		}
		s.Machine.Free()
		w.slots = append(w.slots[:i], w.slots[i+1:]...)
		w.log.Info("machine removed", "machine", id)
		return s.Machine, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMachine, id)
}

// StartMaintenance pulls a machine off scheduling; a bound job is displaced
// to the queue head first.
func (w *Workspace) StartMaintenance(id string) error {
	s := w.slotByMachine(id)
	if s == nil {
		return fmt.Errorf("%w: %q", ErrUnknownMachine, id)
	}
	if !s.Idle() {
		w.displace(s, "maintenance")
	}
	s.Machine.StartMaintenance()
	w.log.Info("maintenance started", "machine", id)
	return nil
}

// FinishMaintenance restores the machine to full condition and returns it to
// the pool.
func (w *Workspace) FinishMaintenance(id string) error {
	s := w.slotByMachine(id)
	if s == nil {
		return fmt.Errorf("%w: %q", ErrUnknownMachine, id)
	}
	s.Machine.FinishMaintenance()
	w.log.Info("maintenance finished", "machine", id)
	return nil
}

// ReserveMachine excludes an idle machine from scheduling.
func (w *Workspace) ReserveMachine(id string) (bool, error) {
	s := w.slotByMachine(id)
	if s == nil {
		return false, fmt.Errorf("%w: %q", ErrUnknownMachine, id)
	}
	return s.Machine.Reserve(), nil
}

// UnreserveMachine returns a reserved machine to the pool.
func (w *Workspace) UnreserveMachine(id string) (bool, error) {
	s := w.slotByMachine(id)
	if s == nil {
		return false, fmt.Errorf("%w: %q", ErrUnknownMachine, id)
	}
	return s.Machine.Unreserve(), nil
}

// StartJob admits a job. Unknown methods are configuration errors and fail
// loudly; missing materials are not. The net bill of materials is reserved
// into the job inventory immediately, best quality first, and any shortfall
// stays outstanding for the per-tick top-up, so the job simply waits in the
// queue until the facility can feed it.
func (w *Workspace) StartJob(methodID string, quantity, priority int, rush bool) (*Job, error) {
	method, ok := w.cat.Method(methodID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, methodID)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBadQuantity, quantity)
	}
	w.seq++
	job := newJob(w.facility, method, quantity, priority, rush, w.seq, w.clock)
	job.topUp(w.stock)
	w.jobs[job.ID] = job
	w.queue.Insert(job)
	telemetry.JobsStarted.Inc()
	w.log.Info("job admitted",
		"job_id", job.ID, "method", methodID, "quantity", quantity,
		"priority", priority, "rush", rush, "reserved", job.Reserved())
	return job, nil
}

// CancelJob synchronously tears a job down: the machine (if any) frees, the
// job inventory flushes back to the facility, and the job is archived.
// Returns false for unknown or already-terminal jobs.
func (w *Workspace) CancelJob(id string) bool {
	job, ok := w.jobs[id]
	if !ok || job.Terminal() {
		return false
	}
	if job.State == StateInProgress {
		if s := w.slotByJob(id); s != nil {
			s.clear()
			s.Machine.Free()
		}
	}
	w.queue.Remove(id)
	job.State = StateCancelled
	job.MachineID = ""
	returned := w.flushBack(job)
	w.archiveJob(job, returned)
	delete(w.jobs, id)
	telemetry.JobsCancelled.Inc()
	w.log.Info("job cancelled", "job_id", id, "completed_ops", len(job.CompletedOps))
	return true
}

// Advance moves the clock and runs one tick: everything due completes first,
// then freed and idle machines pick up queued work. A zero delta is a valid
// "re-schedule now" nudge.
func (w *Workspace) Advance(delta time.Duration) {
	if delta < 0 {
		delta = 0
	}
	w.clock += delta
	w.completeDue()
	w.assign()

	telemetry.QueueDepth.WithLabelValues(w.facility).Set(float64(w.queue.Len()))
	busy := 0
	for _, s := range w.slots {
		if !s.Idle() {
			busy++
		}
	}
	telemetry.MachinesBusy.WithLabelValues(w.facility).Set(float64(busy))
}

// DrainEvents hands pending completion events to the host and clears them.
func (w *Workspace) DrainEvents() []CompletionEvent {
	out := w.events
	w.events = nil
	return out
}

func (w *Workspace) completeDue() {
	for _, s := range w.slots {
		if s.Run == nil || s.Run.Estimate > w.clock {
			continue
		}
		w.finish(s)
	}
}

// finish resolves the run on a slot: the failure roll, the material
// transform, machine wear, and the job's next state.
func (w *Workspace) finish(s *slot) {
	job := w.jobs[s.Run.JobID]
	op := job.CurrentOp()
	res, err := operation.Execute(op, job.Inventory, job.Quantity, s.Run.Ratio, job.QualityFactor, w.rng)
	if err != nil {
		// Job inventory out of sync with the run; requeue instead of guessing.
		w.log.Error("operation execute failed", "job_id", job.ID, "op", op.ID, "err", err)
		s.clear()
		s.Machine.Free()
		job.State = StateQueued
		job.MachineID = ""
		w.queue.Insert(job)
		return
	}
	s.Machine.ApplyWear()

	switch res.Outcome {
	case operation.OutcomeRework:
		telemetry.OperationFailures.Inc()
		m := s.Machine
		if m.Status == equipment.StatusBroken || !m.Satisfies(op.Requires) {
			w.displace(s, "machine unfit after wear")
			m.Free()
			return
		}
		ratio := capability.Ratio(m.EffectiveValue(op.Requires.Category), op.Requires)
		s.Run.Ratio = ratio
		s.Run.StartedAt = w.clock
		s.Run.Estimate = w.clock + operation.RunDuration(op, ratio)
		w.log.Info("operation rework", "job_id", job.ID, "op", op.ID, "machine", m.ID)
		return

	case operation.OutcomeScrap:
		telemetry.OperationFailures.Inc()
		job.recordConsumed(res.Consumed)
		s.clear()
		s.Machine.Free()
		job.State = StateFailed
		job.MachineID = ""
		returned := w.flushBack(job)
		w.archiveJob(job, returned)
		delete(w.jobs, job.ID)
		telemetry.JobsFailed.Inc()
		w.log.Warn("job scrapped", "job_id", job.ID, "op", op.ID)
		return

	case operation.OutcomeDowngrade:
		telemetry.OperationFailures.Inc()
		job.QualityFactor *= res.QualityPenalty
		w.log.Warn("operation downgraded", "job_id", job.ID, "op", op.ID, "quality_factor", job.QualityFactor)
	}

	job.recordConsumed(res.Consumed)
	job.recordProduced(job.OpIndex, res.Produced)
	job.advance(op.ID)
	s.clear()
	s.Machine.Free()
	job.MachineID = ""
	telemetry.OperationsCompleted.Inc()

	if job.CurrentOp() == nil {
		job.State = StateCompleted
		quality := job.finalQuality()
		returned := w.flushBack(job)
		w.archiveJob(job, returned)
		delete(w.jobs, job.ID)
		w.events = append(w.events, CompletionEvent{
			JobID:    job.ID,
			Facility: w.facility,
			Product:  job.Product,
			Method:   job.MethodID,
			Quantity: job.Quantity,
			Quality:  quality,
			At:       w.clock,
		})
		telemetry.JobsCompleted.Inc()
		w.log.Info("job completed", "job_id", job.ID, "product", job.Product, "quality", quality)
		return
	}

	job.State = StateQueued
	w.queue.Insert(job)
	w.log.Debug("operation completed", "job_id", job.ID, "op", op.ID, "next", job.CurrentOp().ID)
}

// assign tops up reservations and hands queued work to idle machines. The
// queue is walked in priority order; each ready job takes the fitting machine
// with the least capability to spare.
func (w *Workspace) assign() {
	for _, job := range w.queue.Jobs() {
		job.topUp(w.stock)
	}
	for _, job := range w.queue.Jobs() {
		op := job.CurrentOp()
		if op == nil {
			continue
		}
		if !operation.CanStart(op, job.Inventory, job.Quantity) {
			continue
		}
		s := w.bestSlot(op.Requires)
		if s == nil {
			continue
		}
		eff := s.Machine.EffectiveValue(op.Requires.Category)
		ratio := capability.Ratio(eff, op.Requires)
		w.queue.Remove(job.ID)
		s.assign(job, op.ID, ratio, w.clock, operation.RunDuration(op, ratio))
		w.log.Info("operation started",
			"job_id", job.ID, "op", op.ID, "machine", s.Machine.ID,
			"ratio", ratio, "done_at", s.Run.Estimate)
	}
}

// bestSlot picks the idle machine that satisfies the requirement with the
// smallest capability margin, breaking ties on instance id.
func (w *Workspace) bestSlot(req catalog.Requirement) *slot {
	var best *slot
	var bestMargin float64
	for _, s := range w.slots {
		if !s.Idle() || !s.Machine.Assignable() || !s.Machine.Satisfies(req) {
			continue
		}
		margin := s.Machine.EffectiveValue(req.Category) - req.Minimum
		if best == nil || margin < bestMargin ||
			(margin == bestMargin && s.Machine.ID < best.Machine.ID) {
			best = s
			bestMargin = margin
		}
	}
	return best
}

// displace pushes a slot's job back to the queue head, keeping its history.
func (w *Workspace) displace(s *slot, reason string) {
	job := w.jobs[s.Run.JobID]
	s.clear()
	job.State = StateQueued
	job.MachineID = ""
	w.queue.PushFront(job)
	w.log.Info("job displaced", "job_id", job.ID, "reason", reason)
}

func (w *Workspace) slotByMachine(id string) *slot {
	for _, s := range w.slots {
		if s.Machine.ID == id {
			return s
		}
	}
	return nil
}

func (w *Workspace) slotByJob(id string) *slot {
	for _, s := range w.slots {
		if s.Run != nil && s.Run.JobID == id {
			return s
		}
	}
	return nil
}

// flushBack empties the job inventory into facility stock, bypassing the
// capacity check so a terminal job can never strand material.
func (w *Workspace) flushBack(job *Job) []StackSummary {
	items := job.Inventory.FlushTo(w.stock)
	out := make([]StackSummary, 0, len(items))
	for _, it := range items {
		out = append(out, StackSummary{
			Type:     it.Type,
			Quantity: it.Quantity,
			Quality:  it.Quality,
			Tags:     it.Tags,
		})
	}
	return out
}

func (w *Workspace) archiveJob(job *Job, returned []StackSummary) {
	entry := ArchiveEntry{
		JobID:        job.ID,
		Method:       job.MethodID,
		Product:      job.Product,
		Quantity:     job.Quantity,
		State:        job.State,
		CompletedOps: append([]string(nil), job.CompletedOps...),
		Consumed:     cloneCounts(job.Consumed),
		Returned:     returned,
		ArchivedAt:   w.clock,
	}
	w.archive = append(w.archive, entry)
	if over := len(w.archive) - w.archiveLimit; over > 0 {
		w.archive = append([]ArchiveEntry(nil), w.archive[over:]...)
	}
	if w.archiveSink != nil {
		w.archiveSink(entry)
	}
}
