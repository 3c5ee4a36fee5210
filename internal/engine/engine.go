// Package engine fronts a fleet of facility workspaces behind one mutex and
// wires them to persistence. Workspaces are single-threaded by design; the
// engine is the only concurrency boundary in the process, so HTTP handlers
// and the tick loop can share it freely.
package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/equipment"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/inventory"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scheduler"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/store"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/telemetry"
)

var (
	ErrUnknownFacility   = errors.New("engine: unknown facility")
	ErrDuplicateFacility = errors.New("engine: facility already exists")
	ErrUnknownProduct    = errors.New("engine: unknown product")
	ErrUnknownItem       = errors.New("engine: unknown item type")
	ErrProductMismatch   = errors.New("engine: method does not produce the requested product")
	ErrUnknownJob        = errors.New("engine: unknown job")
	ErrNoStore           = errors.New("engine: no snapshot store configured")
)

// Config wires an engine. Catalog is required; Store is optional and enables
// snapshots plus the durable job archive.
type Config struct {
	Catalog      *catalog.Catalog
	Store        store.Store
	ArchiveLimit int
	Seed         uint64
	Logger       *slog.Logger
}

type archiveRecord struct {
	facility string
	entry    scheduler.ArchiveEntry
}

// Engine is the multi-facility front door.
type Engine struct {
	mu     sync.Mutex
	spaces map[string]*scheduler.Workspace
	// pending accumulates terminal jobs during workspace calls (always under
	// mu) and drains to the store after the lock releases.
	pending []archiveRecord

	cat          *catalog.Catalog
	store        store.Store
	archiveLimit int
	seed         uint64
	log          *slog.Logger
}

// New builds an empty engine around a catalog handle.
func New(cfg Config) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("engine: catalog handle is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		spaces:       make(map[string]*scheduler.Workspace),
		cat:          cfg.Catalog,
		store:        cfg.Store,
		archiveLimit: cfg.ArchiveLimit,
		seed:         cfg.Seed,
		log:          logger,
	}, nil
}

// Catalog returns the shared reference data handle.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// facilitySeed derives a stable per-facility rng seed so fleets don't run in
// lockstep.
func (e *Engine) facilitySeed(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return e.seed ^ h.Sum64()
}

func (e *Engine) archiveSink(facility string) func(scheduler.ArchiveEntry) {
	return func(entry scheduler.ArchiveEntry) {
		e.pending = append(e.pending, archiveRecord{facility: facility, entry: entry})
	}
}

// flushArchive drains buffered terminal jobs to the store. Failures are
// logged, not returned: the in-memory archive already has the entry and a
// lost audit row must not wedge the simulation.
func (e *Engine) flushArchive(ctx context.Context) {
	if e.store == nil {
		return
	}
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, rec := range pending {
		if err := e.store.AppendArchive(ctx, rec.facility, rec.entry); err != nil {
			e.log.Warn("archive append failed",
				"facility", rec.facility, "job_id", rec.entry.JobID, "err", err)
		}
	}
}

// workspace resolves a facility id. Caller holds mu.
func (e *Engine) workspace(id string) (*scheduler.Workspace, error) {
	ws, ok := e.spaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFacility, id)
	}
	return ws, nil
}

// AddFacility registers an empty facility.
func (e *Engine) AddFacility(id string, capacity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.spaces[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateFacility, id)
	}
	cfg := scheduler.Config{
		Facility:     id,
		Catalog:      e.cat,
		Capacity:     capacity,
		ArchiveLimit: e.archiveLimit,
		Seed:         e.facilitySeed(id),
		Logger:       e.log,
	}
	if e.store != nil {
		cfg.ArchiveSink = e.archiveSink(id)
	}
	ws, err := scheduler.New(cfg)
	if err != nil {
		return err
	}
	e.spaces[id] = ws
	e.log.Info("facility added", "facility", id, "capacity", capacity)
	return nil
}

// Facilities lists registered facility ids, sorted.
func (e *Engine) Facilities() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortedIDs()
}

func (e *Engine) sortedIDs() []string {
	ids := make([]string, 0, len(e.spaces))
	for id := range e.spaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Report returns the full status view of one facility.
func (e *Engine) Report(facility string) (scheduler.StatusReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return scheduler.StatusReport{}, err
	}
	return ws.Report(), nil
}

// AddEquipment puts a new machine on a facility's floor.
func (e *Engine) AddEquipment(facility, defID string) (*equipment.Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return nil, err
	}
	return ws.AddMachine(defID)
}

// RemoveEquipment takes a machine off the floor, displacing any bound job.
func (e *Engine) RemoveEquipment(facility, machineID string) (*equipment.Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return nil, err
	}
	return ws.RemoveMachine(machineID)
}

// StartMaintenance pulls a machine out of scheduling.
func (e *Engine) StartMaintenance(facility, machineID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return err
	}
	return ws.StartMaintenance(machineID)
}

// FinishMaintenance restores a machine to full condition.
func (e *Engine) FinishMaintenance(facility, machineID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return err
	}
	return ws.FinishMaintenance(machineID)
}

// ReserveEquipment excludes an idle machine from scheduling.
func (e *Engine) ReserveEquipment(facility, machineID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return false, err
	}
	return ws.ReserveMachine(machineID)
}

// ReleaseEquipment returns a reserved machine to the pool.
func (e *Engine) ReleaseEquipment(facility, machineID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return false, err
	}
	return ws.UnreserveMachine(machineID)
}

// DepositStock adds material to a facility's inventory, respecting capacity.
// The item type must exist in the catalog.
func (e *Engine) DepositStock(facility string, it *inventory.Item) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return err
	}
	if _, ok := e.cat.Item(it.Type); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, it.Type)
	}
	return ws.Deposit(it)
}

// StartJob admits a job for a product. The method must exist and actually
// produce the product; material shortfall is not an error, the job waits.
func (e *Engine) StartJob(facility, product, methodID string, quantity, priority int, rush bool) (scheduler.View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return scheduler.View{}, err
	}
	if _, ok := e.cat.Item(product); !ok {
		return scheduler.View{}, fmt.Errorf("%w: %q", ErrUnknownProduct, product)
	}
	method, ok := e.cat.Method(methodID)
	if !ok {
		return scheduler.View{}, fmt.Errorf("%w: %q", scheduler.ErrUnknownMethod, methodID)
	}
	if method.Product != product {
		return scheduler.View{}, fmt.Errorf("%w: method %q produces %q, not %q",
			ErrProductMismatch, methodID, method.Product, product)
	}
	job, err := ws.StartJob(methodID, quantity, priority, rush)
	if err != nil {
		return scheduler.View{}, err
	}
	return job.View(), nil
}

// CancelJob tears a job down. False means unknown or already terminal.
func (e *Engine) CancelJob(ctx context.Context, facility, jobID string) (bool, error) {
	e.mu.Lock()
	ws, err := e.workspace(facility)
	if err != nil {
		e.mu.Unlock()
		return false, err
	}
	ok := ws.CancelJob(jobID)
	e.mu.Unlock()
	e.flushArchive(ctx)
	return ok, nil
}

// Job returns the read model of an active job.
func (e *Engine) Job(facility, jobID string) (scheduler.View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return scheduler.View{}, err
	}
	job, ok := ws.Job(jobID)
	if !ok {
		return scheduler.View{}, fmt.Errorf("%w: %q", ErrUnknownJob, jobID)
	}
	return job.View(), nil
}

// ArchivedJob returns a terminal job's record.
func (e *Engine) ArchivedJob(facility, jobID string) (scheduler.ArchiveEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return scheduler.ArchiveEntry{}, err
	}
	entry, ok := ws.ArchivedJob(jobID)
	if !ok {
		return scheduler.ArchiveEntry{}, fmt.Errorf("%w: %q", ErrUnknownJob, jobID)
	}
	return entry, nil
}

// Archive lists a facility's terminal-job records, oldest first.
func (e *Engine) Archive(facility string) ([]scheduler.ArchiveEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return nil, err
	}
	return ws.Archive(), nil
}

// Advance moves one facility's clock by delta and runs its tick.
func (e *Engine) Advance(ctx context.Context, facility string, delta time.Duration) error {
	e.mu.Lock()
	ws, err := e.workspace(facility)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	ws.Advance(delta)
	e.mu.Unlock()
	e.flushArchive(ctx)
	return nil
}

// AdvanceAll ticks every facility by the same delta, in sorted id order.
func (e *Engine) AdvanceAll(ctx context.Context, delta time.Duration) {
	e.mu.Lock()
	for _, id := range e.sortedIDs() {
		e.spaces[id].Advance(delta)
	}
	e.mu.Unlock()
	e.flushArchive(ctx)
}

// DrainEvents hands one facility's pending completion events to the caller.
// Each completed job is reported exactly once.
func (e *Engine) DrainEvents(facility string) ([]scheduler.CompletionEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, err := e.workspace(facility)
	if err != nil {
		return nil, err
	}
	return ws.DrainEvents(), nil
}

// DrainAllEvents drains every facility, in sorted id order.
func (e *Engine) DrainAllEvents() []scheduler.CompletionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []scheduler.CompletionEvent
	for _, id := range e.sortedIDs() {
		out = append(out, e.spaces[id].DrainEvents()...)
	}
	return out
}

// SaveSnapshot persists one facility through the configured store.
func (e *Engine) SaveSnapshot(ctx context.Context, facility string) error {
	if e.store == nil {
		return ErrNoStore
	}
	e.mu.Lock()
	ws, err := e.workspace(facility)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	snap := ws.Snapshot()
	e.mu.Unlock()

	if err := e.store.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	telemetry.SnapshotSaves.Inc()
	e.log.Info("snapshot saved", "facility", facility, "clock", snap.Clock)
	return nil
}

// SaveAll snapshots every facility, stopping at the first failure.
func (e *Engine) SaveAll(ctx context.Context) error {
	for _, id := range e.Facilities() {
		if err := e.SaveSnapshot(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// RestoreSnapshot loads a facility from the store, replacing any live state
// under that id.
func (e *Engine) RestoreSnapshot(ctx context.Context, facility string) error {
	if e.store == nil {
		return ErrNoStore
	}
	snap, err := e.store.LoadSnapshot(ctx, facility)
	if err != nil {
		return err
	}
	ws, err := scheduler.Restore(e.cat, e.log, snap)
	if err != nil {
		return err
	}
	e.mu.Lock()
	ws.SetArchiveSink(e.archiveSink(facility))
	e.spaces[facility] = ws
	e.mu.Unlock()
	telemetry.SnapshotRestores.Inc()
	e.log.Info("snapshot restored", "facility", facility, "clock", snap.Clock)
	return nil
}

// RestoreAll loads every facility the store knows about. Returns how many
// came back.
func (e *Engine) RestoreAll(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, ErrNoStore
	}
	ids, err := e.store.ListFacilities(ctx)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := e.RestoreSnapshot(ctx, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}
