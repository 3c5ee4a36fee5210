package inventory

import (
	"errors"
	"testing"
)

func TestAddMergesEqualStacks(t *testing.T) {
	inv := New("fac-1", 0)
	inv.Accept(NewItem("steel_billet", 2, 70, []string{"rolled"}))
	inv.Accept(NewItem("steel_billet", 3, 70, []string{"rolled"}))
	inv.Accept(NewItem("steel_billet", 1, 90, []string{"rolled"}))

	if inv.Count("steel_billet") != 6 {
		t.Fatalf("expected 6 units, got %d", inv.Count("steel_billet"))
	}
	if stacks := inv.Items(); len(stacks) != 2 {
		t.Fatalf("equal stacks should merge, got %d stacks", len(stacks))
	}
}

func TestDepositHonorsCapacity(t *testing.T) {
	inv := New("fac-1", 5)
	if err := inv.Deposit(NewItem("steel_billet", 4, 70, nil)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	err := inv.Deposit(NewItem("steel_billet", 2, 70, nil))
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	// Internal flows ignore the cap so flush-back can never strand material.
	inv.Accept(NewItem("steel_billet", 2, 70, nil))
	if inv.TotalUnits() != 6 {
		t.Fatalf("expected 6 units after accept, got %d", inv.TotalUnits())
	}
}

func TestTakePrefersHighestQuality(t *testing.T) {
	inv := New("fac-1", 0)
	inv.Accept(NewItem("steel_billet", 1, 60, nil))
	inv.Accept(NewItem("steel_billet", 1, 90, nil))

	taken, ok := inv.Take(Request{Type: "steel_billet", Count: 1})
	if !ok || len(taken) != 1 {
		t.Fatalf("expected one stack, got %v ok=%v", taken, ok)
	}
	if taken[0].Quality != 90 {
		t.Fatalf("expected the 90-quality stack first, got %v", taken[0].Quality)
	}
	if inv.Count("steel_billet") != 1 {
		t.Fatalf("expected 1 unit left, got %d", inv.Count("steel_billet"))
	}
}

func TestTakeRespectsMaxQuality(t *testing.T) {
	inv := New("fac-1", 0)
	inv.Accept(NewItem("scrap", 1, 95, nil))
	inv.Accept(NewItem("scrap", 1, 40, nil))
	inv.Accept(NewItem("scrap", 1, 20, nil))

	taken, ok := inv.Take(Request{Type: "scrap", Count: 1, MaxQuality: 50})
	if !ok || taken[0].Quality != 40 {
		t.Fatalf("expected best stack under the cap, got %v ok=%v", taken, ok)
	}
}

func TestTakeFiltersByTags(t *testing.T) {
	inv := New("fac-1", 0)
	inv.Accept(NewItem("receiver", 2, 70, []string{"rough"}))
	inv.Accept(NewItem("receiver", 2, 70, []string{"milled", "deburred"}))

	if inv.CanSupply(Request{Type: "receiver", Count: 3, RequiredTags: []string{"milled"}}) {
		t.Fatalf("only 2 milled receivers exist")
	}
	taken, ok := inv.Take(Request{Type: "receiver", Count: 2, RequiredTags: []string{"milled"}})
	if !ok || len(taken) != 1 || !taken[0].HasTags([]string{"milled", "deburred"}) {
		t.Fatalf("expected the milled stack, got %v ok=%v", taken, ok)
	}
}

func TestTakeIsAllOrNothing(t *testing.T) {
	inv := New("fac-1", 0)
	inv.Accept(NewItem("steel_billet", 2, 70, nil))

	if _, ok := inv.Take(Request{Type: "steel_billet", Count: 3}); ok {
		t.Fatalf("short take must fail")
	}
	if inv.Count("steel_billet") != 2 {
		t.Fatalf("failed take must not move anything, got %d", inv.Count("steel_billet"))
	}
}

func TestTakeSplitsStacks(t *testing.T) {
	inv := New("fac-1", 0)
	inv.Accept(NewItem("steel_billet", 5, 70, nil))

	taken, ok := inv.Take(Request{Type: "steel_billet", Count: 2})
	if !ok || len(taken) != 1 || taken[0].Quantity != 2 {
		t.Fatalf("expected a 2-unit split, got %v", taken)
	}
	if inv.Count("steel_billet") != 3 || inv.TotalUnits() != 3 {
		t.Fatalf("expected 3 units left, got %d", inv.Count("steel_billet"))
	}
}

func TestTakeUpToIsPartial(t *testing.T) {
	inv := New("fac-1", 0)
	inv.Accept(NewItem("steel_billet", 2, 70, nil))

	moved := inv.TakeUpTo(Request{Type: "steel_billet", Count: 5})
	units := 0
	for _, it := range moved {
		units += it.Quantity
	}
	if units != 2 || inv.TotalUnits() != 0 {
		t.Fatalf("expected everything moved, got %d moved / %d left", units, inv.TotalUnits())
	}
}

func TestMoveAndFlushConserveUnits(t *testing.T) {
	src := New("job-1", 0)
	dst := New("fac-1", 3)
	src.Accept(NewItem("rough_receiver", 2, 70, []string{"rough"}))
	src.Accept(NewItem("steel_billet", 4, 70, nil))

	moved := src.MoveTo(dst, Request{Type: "steel_billet", Count: 1})
	if moved != 1 {
		t.Fatalf("expected 1 unit moved, got %d", moved)
	}

	flushed := src.FlushTo(dst)
	if len(flushed) == 0 || src.TotalUnits() != 0 {
		t.Fatalf("flush should empty the source")
	}
	// 2 + 4 + nothing created, nothing lost; dst capacity never blocks a flush.
	if dst.TotalUnits() != 6 {
		t.Fatalf("expected 6 units in destination, got %d", dst.TotalUnits())
	}
}
