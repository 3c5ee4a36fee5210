package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/equipment"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/inventory"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scheduler"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/store"
)

// memStore keeps snapshots as marshalled JSON so tests exercise the same
// serialization path a real backend would.
type memStore struct {
	mu      sync.Mutex
	snaps   map[string][]byte
	entries map[string][]scheduler.ArchiveEntry
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		snaps:   make(map[string][]byte),
		entries: make(map[string][]scheduler.ArchiveEntry),
	}
}

func (m *memStore) SaveSnapshot(ctx context.Context, snap *scheduler.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.Facility] = data
	return nil
}

func (m *memStore) LoadSnapshot(ctx context.Context, facility string) (*scheduler.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.snaps[facility]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNoSnapshot, facility)
	}
	var snap scheduler.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (m *memStore) ListFacilities(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.snaps))
	for id := range m.snaps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) AppendArchive(ctx context.Context, facility string, entry scheduler.ArchiveEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[facility] = append(m.entries[facility], entry)
	return nil
}

func (m *memStore) archived(facility string) []scheduler.ArchiveEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]scheduler.ArchiveEntry(nil), m.entries[facility]...)
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	equipmentDefs := []catalog.EquipmentDef{
		{ID: "press_10", Tags: []catalog.Tag{{Category: "stamping", Value: 10}}},
	}
	items := []catalog.ItemDef{
		{ID: "steel_billet"},
		{ID: "plate"},
		{ID: "widget"},
	}
	methods := []catalog.Method{
		{
			ID:      "stamp_plate",
			Product: "plate",
			Operations: []catalog.Operation{{
				ID:           "press_plate",
				Requires:     catalog.Requirement{Category: "stamping", Minimum: 5, Optimal: 10},
				BaseDuration: catalog.Duration(20 * time.Second),
				Consumes:     []catalog.ConsumptionRule{{Item: "steel_billet", Count: 1}},
				Produces:     []catalog.ProductionRule{{Item: "plate", Count: 1, Quality: 80}},
			}},
		},
		{
			ID:      "build_widget",
			Product: "widget",
			Operations: []catalog.Operation{{
				ID:           "press_widget",
				Requires:     catalog.Requirement{Category: "stamping", Minimum: 5, Optimal: 10},
				BaseDuration: catalog.Duration(10 * time.Second),
				Consumes:     []catalog.ConsumptionRule{{Item: "steel_billet", Count: 1}},
				Produces:     []catalog.ProductionRule{{Item: "widget", Count: 1, Quality: 90}},
			}},
		},
	}
	cat, err := catalog.New(equipmentDefs, items, methods)
	if err != nil {
		t.Fatalf("test catalog: %v", err)
	}
	return cat
}

func newTestEngine(t *testing.T, st store.Store) *Engine {
	t.Helper()
	e, err := New(Config{
		Catalog: testCatalog(t),
		Store:   st,
		Seed:    7,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

// rigFacility registers a facility with one press and n billets on hand.
func rigFacility(t *testing.T, e *Engine, id string, billets int) *equipment.Instance {
	t.Helper()
	if err := e.AddFacility(id, 0); err != nil {
		t.Fatalf("add facility %s: %v", id, err)
	}
	inst, err := e.AddEquipment(id, "press_10")
	if err != nil {
		t.Fatalf("add equipment: %v", err)
	}
	if billets > 0 {
		if err := e.DepositStock(id, inventory.NewItem("steel_billet", billets, 60, nil)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	return inst
}

func TestEngineLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	e := newTestEngine(t, st)
	inst := rigFacility(t, e, "forge_one", 2)

	if err := e.AddFacility("forge_one", 0); !errors.Is(err, ErrDuplicateFacility) {
		t.Fatalf("duplicate facility = %v, want ErrDuplicateFacility", err)
	}

	view, err := e.StartJob("forge_one", "plate", "stamp_plate", 1, 0, false)
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	if view.State != scheduler.StateQueued {
		t.Fatalf("fresh job state = %s, want queued", view.State)
	}

	if err := e.Advance(ctx, "forge_one", 0); err != nil {
		t.Fatalf("advance: %v", err)
	}
	running, err := e.Job("forge_one", view.ID)
	if err != nil {
		t.Fatalf("job lookup: %v", err)
	}
	if running.State != scheduler.StateInProgress || running.MachineID != inst.ID {
		t.Fatalf("after first tick: state=%s machine=%s, want in_progress on %s",
			running.State, running.MachineID, inst.ID)
	}

	rep, err := e.Report("forge_one")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(rep.Machines) != 1 || rep.Machines[0].JobID != view.ID {
		t.Fatalf("report machines = %+v, want job %s bound", rep.Machines, view.ID)
	}

	if err := e.Advance(ctx, "forge_one", 20*time.Second); err != nil {
		t.Fatalf("advance to completion: %v", err)
	}
	if _, err := e.Job("forge_one", view.ID); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("terminal job lookup = %v, want ErrUnknownJob", err)
	}

	events, err := e.DrainEvents("forge_one")
	if err != nil {
		t.Fatalf("drain events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("drained %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.JobID != view.ID || ev.Product != "plate" || ev.Quality != 80 || ev.At != 20*time.Second {
		t.Fatalf("completion event = %+v", ev)
	}

	entry, err := e.ArchivedJob("forge_one", view.ID)
	if err != nil {
		t.Fatalf("archived job: %v", err)
	}
	if entry.State != scheduler.StateCompleted {
		t.Fatalf("archive state = %s, want completed", entry.State)
	}
	arch, err := e.Archive("forge_one")
	if err != nil || len(arch) != 1 {
		t.Fatalf("archive list = %v (err %v), want one entry", arch, err)
	}

	stored := st.archived("forge_one")
	if len(stored) != 1 || stored[0].JobID != view.ID || stored[0].State != scheduler.StateCompleted {
		t.Fatalf("store archive = %+v, want the completed job", stored)
	}
}

func TestEngineStartJobValidation(t *testing.T) {
	e := newTestEngine(t, nil)
	rigFacility(t, e, "forge_one", 1)

	if _, err := e.StartJob("ghost", "plate", "stamp_plate", 1, 0, false); !errors.Is(err, ErrUnknownFacility) {
		t.Fatalf("unknown facility = %v, want ErrUnknownFacility", err)
	}
	if _, err := e.StartJob("forge_one", "unobtainium", "stamp_plate", 1, 0, false); !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("unknown product = %v, want ErrUnknownProduct", err)
	}
	if _, err := e.StartJob("forge_one", "plate", "ghost_method", 1, 0, false); !errors.Is(err, scheduler.ErrUnknownMethod) {
		t.Fatalf("unknown method = %v, want ErrUnknownMethod", err)
	}
	if _, err := e.StartJob("forge_one", "plate", "build_widget", 1, 0, false); !errors.Is(err, ErrProductMismatch) {
		t.Fatalf("mismatched method = %v, want ErrProductMismatch", err)
	}

	if _, err := e.AddEquipment("forge_one", "ghost_rig"); !errors.Is(err, scheduler.ErrUnknownEquipment) {
		t.Fatalf("unknown equipment = %v, want ErrUnknownEquipment", err)
	}
	if err := e.DepositStock("ghost", inventory.NewItem("steel_billet", 1, 50, nil)); !errors.Is(err, ErrUnknownFacility) {
		t.Fatalf("deposit to unknown facility = %v, want ErrUnknownFacility", err)
	}
	if err := e.DepositStock("forge_one", inventory.NewItem("unobtainium", 1, 50, nil)); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("deposit of unknown item = %v, want ErrUnknownItem", err)
	}
	if _, err := e.Job("forge_one", "nope"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("unknown job = %v, want ErrUnknownJob", err)
	}
	if _, err := e.ArchivedJob("forge_one", "nope"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("unknown archived job = %v, want ErrUnknownJob", err)
	}
}

func TestEngineCancelStreamsToStore(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	e := newTestEngine(t, st)
	rigFacility(t, e, "forge_one", 1)

	view, err := e.StartJob("forge_one", "plate", "stamp_plate", 1, 0, false)
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	ok, err := e.CancelJob(ctx, "forge_one", view.ID)
	if err != nil || !ok {
		t.Fatalf("cancel = %v, %v, want true", ok, err)
	}
	if ok, _ := e.CancelJob(ctx, "forge_one", view.ID); ok {
		t.Fatal("second cancel reported true")
	}

	stored := st.archived("forge_one")
	if len(stored) != 1 || stored[0].State != scheduler.StateCancelled {
		t.Fatalf("store archive = %+v, want one cancelled entry", stored)
	}
}

func TestEngineSnapshotRoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	e := newTestEngine(t, st)
	rigFacility(t, e, "forge_one", 1)

	view, err := e.StartJob("forge_one", "plate", "stamp_plate", 1, 0, false)
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	// Assign on the zero tick so the run spans 0s-20s, then park mid-run.
	if err := e.Advance(ctx, "forge_one", 0); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := e.Advance(ctx, "forge_one", 5*time.Second); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := e.SaveSnapshot(ctx, "forge_one"); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	// Run the original world to completion, then rewind.
	if err := e.Advance(ctx, "forge_one", 15*time.Second); err != nil {
		t.Fatalf("advance to completion: %v", err)
	}
	if evs, _ := e.DrainEvents("forge_one"); len(evs) != 1 {
		t.Fatalf("drained %d events before restore, want 1", len(evs))
	}

	if err := e.RestoreSnapshot(ctx, "forge_one"); err != nil {
		t.Fatalf("restore snapshot: %v", err)
	}
	rep, err := e.Report("forge_one")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.Clock != 5*time.Second || len(rep.Active) != 1 || rep.Active[0].ID != view.ID {
		t.Fatalf("restored report clock=%v active=%+v, want job %s mid-run at 5s",
			rep.Clock, rep.Active, view.ID)
	}

	if err := e.Advance(ctx, "forge_one", 15*time.Second); err != nil {
		t.Fatalf("advance after restore: %v", err)
	}
	evs, err := e.DrainEvents("forge_one")
	if err != nil || len(evs) != 1 {
		t.Fatalf("drained %d events after restore (err %v), want 1", len(evs), err)
	}
	if evs[0].JobID != view.ID || evs[0].At != 20*time.Second {
		t.Fatalf("post-restore event = %+v, want job %s at 20s", evs[0], view.ID)
	}

	// The restored workspace streams terminal jobs again: one entry per
	// completion, two completions total.
	if stored := st.archived("forge_one"); len(stored) != 2 {
		t.Fatalf("store archive has %d entries, want 2", len(stored))
	}

	if err := e.SaveSnapshot(ctx, "ghost"); !errors.Is(err, ErrUnknownFacility) {
		t.Fatalf("snapshot of unknown facility = %v, want ErrUnknownFacility", err)
	}
	if err := e.RestoreSnapshot(ctx, "never_saved"); !errors.Is(err, store.ErrNoSnapshot) {
		t.Fatalf("restore without snapshot = %v, want ErrNoSnapshot", err)
	}
}

func TestEngineSaveAllRestoreAll(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	e := newTestEngine(t, st)
	rigFacility(t, e, "alpha", 1)
	rigFacility(t, e, "beta", 1)
	if err := e.Advance(ctx, "alpha", 3*time.Second); err != nil {
		t.Fatalf("advance alpha: %v", err)
	}
	if err := e.SaveAll(ctx); err != nil {
		t.Fatalf("save all: %v", err)
	}

	fresh := newTestEngine(t, st)
	n, err := fresh.RestoreAll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("restore all = %d, %v, want 2", n, err)
	}
	ids := fresh.Facilities()
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "beta" {
		t.Fatalf("facilities = %v, want [alpha beta]", ids)
	}
	repA, _ := fresh.Report("alpha")
	repB, _ := fresh.Report("beta")
	if repA.Clock != 3*time.Second || repB.Clock != 0 {
		t.Fatalf("restored clocks alpha=%v beta=%v, want 3s and 0", repA.Clock, repB.Clock)
	}
}

func TestEngineWithoutStore(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	rigFacility(t, e, "forge_one", 1)

	if err := e.SaveSnapshot(ctx, "forge_one"); !errors.Is(err, ErrNoStore) {
		t.Fatalf("save without store = %v, want ErrNoStore", err)
	}
	if err := e.RestoreSnapshot(ctx, "forge_one"); !errors.Is(err, ErrNoStore) {
		t.Fatalf("restore without store = %v, want ErrNoStore", err)
	}
	if _, err := e.RestoreAll(ctx); !errors.Is(err, ErrNoStore) {
		t.Fatalf("restore all without store = %v, want ErrNoStore", err)
	}

	// Simulation still runs; terminal jobs just stay in the in-memory archive.
	view, err := e.StartJob("forge_one", "plate", "stamp_plate", 1, 0, false)
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	if err := e.Advance(ctx, "forge_one", 20*time.Second); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := e.ArchivedJob("forge_one", view.ID); err != nil {
		t.Fatalf("archived job: %v", err)
	}
}

func TestEngineAdvanceAllDrainsInFacilityOrder(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	rigFacility(t, e, "beta", 1)
	rigFacility(t, e, "alpha", 1)
	for _, id := range []string{"alpha", "beta"} {
		if _, err := e.StartJob(id, "plate", "stamp_plate", 1, 0, false); err != nil {
			t.Fatalf("start job on %s: %v", id, err)
		}
	}

	e.AdvanceAll(ctx, 0)
	e.AdvanceAll(ctx, 20*time.Second)
	evs := e.DrainAllEvents()
	if len(evs) != 2 {
		t.Fatalf("drained %d events, want 2", len(evs))
	}
	if evs[0].Facility != "alpha" || evs[1].Facility != "beta" {
		t.Fatalf("event order = %s, %s, want alpha then beta", evs[0].Facility, evs[1].Facility)
	}
	if e.DrainAllEvents() != nil {
		t.Fatal("second drain returned events")
	}
}

func TestEngineEquipmentControls(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	inst := rigFacility(t, e, "forge_one", 1)

	ok, err := e.ReserveEquipment("forge_one", inst.ID)
	if err != nil || !ok {
		t.Fatalf("reserve = %v, %v, want true", ok, err)
	}
	rep, _ := e.Report("forge_one")
	if rep.Machines[0].Status != equipment.StatusReserved {
		t.Fatalf("status after reserve = %s", rep.Machines[0].Status)
	}
	ok, err = e.ReleaseEquipment("forge_one", inst.ID)
	if err != nil || !ok {
		t.Fatalf("release = %v, %v, want true", ok, err)
	}

	if err := e.StartMaintenance("forge_one", inst.ID); err != nil {
		t.Fatalf("start maintenance: %v", err)
	}
	view, err := e.StartJob("forge_one", "plate", "stamp_plate", 1, 0, false)
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	if err := e.Advance(ctx, "forge_one", 0); err != nil {
		t.Fatalf("advance: %v", err)
	}
	queued, _ := e.Job("forge_one", view.ID)
	if queued.State != scheduler.StateQueued {
		t.Fatalf("job state with machine down = %s, want queued", queued.State)
	}

	if err := e.FinishMaintenance("forge_one", inst.ID); err != nil {
		t.Fatalf("finish maintenance: %v", err)
	}
	if err := e.Advance(ctx, "forge_one", 0); err != nil {
		t.Fatalf("advance: %v", err)
	}
	running, _ := e.Job("forge_one", view.ID)
	if running.State != scheduler.StateInProgress {
		t.Fatalf("job state after maintenance = %s, want in_progress", running.State)
	}

	if _, err := e.RemoveEquipment("forge_one", "nope"); !errors.Is(err, scheduler.ErrUnknownMachine) {
		t.Fatalf("remove unknown machine = %v, want ErrUnknownMachine", err)
	}
	removed, err := e.RemoveEquipment("forge_one", inst.ID)
	if err != nil || removed.ID != inst.ID {
		t.Fatalf("remove = %+v, %v, want instance %s", removed, err, inst.ID)
	}
}
