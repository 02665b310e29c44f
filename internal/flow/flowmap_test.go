package flow

import (
	"testing"

	"github.com/talgya/freightworld/internal/cargo"
)

func TestMapInsertFindErase(t *testing.T) {
	fm := NewMap()
	fm.Insert(New(1, 10, 5, false))
	fm.Insert(New(2, 10, 5, false))
	fm.Insert(New(3, 10, 5, false))

	if fm.Len() != 3 {
		t.Fatalf("map holds %d tables, want 3", fm.Len())
	}

	// Erasing the first origin swaps the last into its slot; lookups for
	// the survivors must still work.
	if !fm.Erase(1) {
		t.Fatal("erase of a present origin failed")
	}
	if fm.Erase(1) {
		t.Error("second erase of the same origin succeeded")
	}
	if fm.Len() != 2 {
		t.Errorf("map holds %d tables after erase, want 2", fm.Len())
	}
	for _, origin := range []cargo.StationID{2, 3} {
		fs := fm.Find(origin)
		if fs == nil || fs.Origin() != origin {
			t.Errorf("origin %d lost after swap-erase", origin)
		}
	}
	if fm.Find(1) != nil {
		t.Error("erased origin still findable")
	}
}

func TestMapInsertRejectsDuplicateOrigin(t *testing.T) {
	fm := NewMap()
	fm.Insert(New(1, 10, 5, false))
	mustPanic(t, "duplicate insert", func() { fm.Insert(New(1, 11, 5, false)) })
}

func TestAddFlowCreatesAndExtends(t *testing.T) {
	fm := NewMap()
	fm.AddFlow(1, 10, 30)
	fm.AddFlow(1, 10, 20)
	fm.AddFlow(1, 11, 50)
	fm.AddFlow(1, 12, 0) // no-op

	fs := fm.Find(1)
	if fs == nil {
		t.Fatal("AddFlow did not create the table")
	}
	if fs.GetShare(10) != 50 || fs.GetShare(11) != 50 {
		t.Errorf("shares %d/%d, want 50/50", fs.GetShare(10), fs.GetShare(11))
	}
	if fs.HasVia(12) {
		t.Error("zero-amount flow created a share")
	}
}

func TestDeleteFlowsReturnsAffectedOrigins(t *testing.T) {
	fm := NewMap()
	fm.AddFlow(1, 10, 30) // only share: table dies
	fm.AddFlow(2, 10, 30)
	fm.AddFlow(2, 11, 30) // survives with via 11
	fm.AddFlow(3, 12, 30) // untouched

	affected := fm.DeleteFlows(10)

	if len(affected) != 2 {
		t.Fatalf("affected origins %v, want two entries", affected)
	}
	seen := map[cargo.StationID]bool{}
	for _, o := range affected {
		seen[o] = true
	}
	if !seen[1] || !seen[2] {
		t.Errorf("affected origins %v, want 1 and 2", affected)
	}
	if fm.Find(1) != nil {
		t.Error("emptied table not erased")
	}
	if fs := fm.Find(2); fs == nil || fs.HasVia(10) || !fs.HasVia(11) {
		t.Error("surviving table lost the wrong share")
	}
	if fm.Find(3) == nil {
		t.Error("unrelated table erased")
	}
}

func TestRestrictAndReleaseFlows(t *testing.T) {
	fm := NewMap()
	fm.AddFlow(1, 10, 30)
	fm.AddFlow(2, 10, 40)

	fm.RestrictFlows(10)
	for _, origin := range []cargo.StationID{1, 2} {
		if fm.Find(origin).Unrestricted() != 0 {
			t.Errorf("origin %d still has unrestricted range after restriction", origin)
		}
	}

	fm.ReleaseFlows(10)
	if fm.Find(1).Unrestricted() != 30 || fm.Find(2).Unrestricted() != 40 {
		t.Error("release did not restore the unrestricted ranges")
	}
}

func TestFinalizeLocalConsumption(t *testing.T) {
	fm := NewMap()
	fm.AddFlow(1, 5, 30) // share back to the station itself
	fm.AddFlow(1, 10, 20)
	fm.AddFlow(2, 5, 30) // only share: table dies

	fm.FinalizeLocalConsumption(5)

	if fs := fm.Find(1); fs == nil || fs.HasVia(5) || fs.GetShare(10) != 20 {
		t.Error("self share not removed from origin 1")
	}
	if fm.Find(2) != nil {
		t.Error("table emptied by local consumption not erased")
	}
}

func TestInvalidateAllErasesSaturatedTables(t *testing.T) {
	fm := NewMap()
	fm.AddFlow(1, 10, 30)
	fm.AddFlow(2, 11, 30)

	for i := 0; i < 30; i++ {
		if deleted := fm.InvalidateAll(); len(deleted) != 0 {
			t.Fatalf("tables deleted after %d passes: %v", i+1, deleted)
		}
	}
	// Fresh data on origin 1 resets its counter; origin 2 saturates.
	fm.AddFlow(1, 10, 1)
	deleted := fm.InvalidateAll()

	if len(deleted) != 1 || deleted[0] != 2 {
		t.Fatalf("deleted origins %v, want [2]", deleted)
	}
	if fm.Find(1) == nil {
		t.Error("refreshed table erased")
	}
	if fm.Find(2) != nil {
		t.Error("saturated table survived")
	}
}

func TestAppendShareRestoresRestriction(t *testing.T) {
	fm := NewMap()
	fm.AppendShare(1, 10, 30, false)
	fm.AppendShare(1, 11, 20, true)

	fs := fm.Find(1)
	if fs.Total() != 50 || fs.Unrestricted() != 30 {
		t.Errorf("restored totals %d/%d, want 50/30", fs.Total(), fs.Unrestricted())
	}
}
