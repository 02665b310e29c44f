package flow

import (
	"testing"

	"github.com/iti/rngstream"

	"github.com/talgya/freightworld/internal/cargo"
)

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	fn()
}

func TestAppendShareKeepsBoundary(t *testing.T) {
	fs := New(1, 10, 30, false)
	fs.AppendShare(11, 20, true)
	fs.AppendShare(12, 50, false)

	if fs.Total() != 100 {
		t.Errorf("total %d, want 100", fs.Total())
	}
	if fs.Unrestricted() != 80 {
		t.Errorf("unrestricted boundary %d, want 80", fs.Unrestricted())
	}
	if got := fs.GetShare(10); got != 30 {
		t.Errorf("share of 10 is %d, want 30", got)
	}
	if got := fs.GetShare(11); got != 20 {
		t.Errorf("share of 11 is %d, want 20", got)
	}
	if got := fs.GetShare(12); got != 50 {
		t.Errorf("share of 12 is %d, want 50", got)
	}

	// Storage order must be unrestricted first, restricted last.
	views := fs.Shares()
	if len(views) != 3 {
		t.Fatalf("have %d shares, want 3", len(views))
	}
	if views[0].Restricted || views[1].Restricted || !views[2].Restricted {
		t.Errorf("restriction layout wrong: %+v", views)
	}
	if views[2].Via != 11 {
		t.Errorf("restricted share is via %d, want 11", views[2].Via)
	}
}

func TestAppendShareRejectsDuplicatesAndZero(t *testing.T) {
	fs := New(1, 10, 30, false)
	mustPanic(t, "duplicate via", func() { fs.AppendShare(10, 5, false) })
	mustPanic(t, "zero amount", func() { fs.AppendShare(11, 0, false) })
}

func TestChangeShareErasesAtZero(t *testing.T) {
	fs := New(1, 10, 30, false)
	fs.AppendShare(11, 20, false)

	if !fs.ChangeShare(10, -30) {
		t.Fatal("change on a present via reported absent")
	}
	if fs.HasVia(10) {
		t.Error("share driven to zero still present")
	}
	if fs.Total() != 20 || fs.Unrestricted() != 20 {
		t.Errorf("totals after erase %d/%d, want 20/20", fs.Total(), fs.Unrestricted())
	}

	if fs.ChangeShare(99, -5) {
		t.Error("negative change on an absent via reported success")
	}
	if !fs.ChangeShare(99, 5) {
		t.Error("positive change on an absent via failed to append")
	}
	if fs.GetShare(99) != 5 {
		t.Errorf("appended share %d, want 5", fs.GetShare(99))
	}
}

func TestRestrictReleaseRoundTrip(t *testing.T) {
	fs := New(1, 10, 30, false)
	fs.AppendShare(11, 70, false)

	fs.RestrictShare(10)
	if fs.Total() != 100 {
		t.Errorf("total changed by restriction: %d", fs.Total())
	}
	if fs.Unrestricted() != 70 {
		t.Errorf("unrestricted %d after restriction, want 70", fs.Unrestricted())
	}

	fs.ReleaseShare(10)
	if fs.Unrestricted() != 100 {
		t.Errorf("unrestricted %d after release, want 100", fs.Unrestricted())
	}
	if fs.GetShare(10) != 30 {
		t.Errorf("share width %d survived the round trip, want 30", fs.GetShare(10))
	}
}

func TestGetViaWeightedDistribution(t *testing.T) {
	fs := New(1, 10, 30, false)
	fs.AppendShare(11, 70, false)

	rng := rngstream.New("flow-dist-test")
	const draws = 10000
	hits := 0
	for i := 0; i < draws; i++ {
		switch fs.GetVia(rng) {
		case 10:
			hits++
		case 11:
		default:
			t.Fatal("draw returned a via with no share")
		}
	}
	// 30% of 10000 with generous slack.
	if hits < 2500 || hits > 3500 {
		t.Errorf("via 10 drawn %d/%d times, want about 3000", hits, draws)
	}
}

func TestGetViaSkipsRestricted(t *testing.T) {
	fs := New(1, 10, 30, false)
	fs.AppendShare(11, 70, true)

	rng := rngstream.New("flow-restricted-test")
	for i := 0; i < 200; i++ {
		if got := fs.GetVia(rng); got != 10 {
			t.Fatalf("restricted draw returned %d, want 10", got)
		}
	}
}

func TestGetViaNoUnrestrictedShares(t *testing.T) {
	fs := New(1, 10, 30, true)
	rng := rngstream.New("flow-empty-test")
	if got := fs.GetVia(rng); got != cargo.InvalidStation {
		t.Errorf("draw over a fully restricted table returned %d", got)
	}
}

func TestGetViaWithRestrictedFlagsRegion(t *testing.T) {
	fs := New(1, 10, 1, false)
	fs.AppendShare(11, 1000000, true)

	rng := rngstream.New("flow-full-range-test")
	sawRestricted := false
	for i := 0; i < 100; i++ {
		via, restricted := fs.GetViaWithRestricted(rng)
		if via == 11 && !restricted {
			t.Fatal("restricted share drawn without the restricted flag")
		}
		if via == 10 && restricted {
			t.Fatal("unrestricted share drawn with the restricted flag")
		}
		sawRestricted = sawRestricted || restricted
	}
	if !sawRestricted {
		t.Error("dominant restricted share never drawn over the full range")
	}
}

func TestGetViaExcludingNeverReturnsExcluded(t *testing.T) {
	fs := New(1, 10, 30, false)
	fs.AppendShare(11, 30, false)
	fs.AppendShare(12, 40, false)

	rng := rngstream.New("flow-exclusion-test")
	for i := 0; i < 500; i++ {
		if got := fs.GetViaExcluding(rng, 10, 11); got != 12 {
			t.Fatalf("exclusion draw returned %d, want 12", got)
		}
	}
}

func TestGetViaExcludingNothingLeft(t *testing.T) {
	fs := New(1, 10, 30, false)
	fs.AppendShare(11, 30, false)

	rng := rngstream.New("flow-exclusion-empty-test")
	if got := fs.GetViaExcluding(rng, 10, 11); got != cargo.InvalidStation {
		t.Errorf("exhausted exclusion draw returned %d", got)
	}
}

func TestInvalidationSaturates(t *testing.T) {
	fs := New(1, 10, 30, false)
	for i := 0; i < 30; i++ {
		if fs.Invalidate() {
			t.Fatalf("table reported invalid after %d passes", i+1)
		}
	}
	if !fs.Invalidate() {
		t.Error("table not invalid after 31 passes")
	}
	if !fs.IsInvalid() {
		t.Error("IsInvalid disagrees with the saturated counter")
	}
	// Saturated counter stays saturated.
	if !fs.Invalidate() {
		t.Error("saturated counter lost its state")
	}
}

func TestFreshDataClearsInvalidation(t *testing.T) {
	fs := New(1, 10, 30, false)
	for i := 0; i < 31; i++ {
		fs.Invalidate()
	}
	fs.ChangeShare(10, 5)
	if fs.IsInvalid() {
		t.Error("fresh flow data did not clear the invalidation counter")
	}
}
