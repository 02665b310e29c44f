package cargo

import "testing"

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	fn()
}

func TestSplitMovesProportionalFeederShare(t *testing.T) {
	pool := NewPool()
	p := pool.New(100, 1, Source{Kind: SourceIndustry, ID: 1})
	p.AddFeederShare(10)

	sp := p.Split(pool, 30)

	if sp.Count() != 30 || p.Count() != 70 {
		t.Fatalf("split counts: got %d/%d, want 30/70", sp.Count(), p.Count())
	}
	if sp.FeederShare() != 3 || p.FeederShare() != 7 {
		t.Errorf("split feeder shares: got %d/%d, want 3/7", sp.FeederShare(), p.FeederShare())
	}
	if sp.ID() == p.ID() {
		t.Errorf("split packet reused ID %d", sp.ID())
	}
	if pool.Len() != 2 {
		t.Errorf("pool has %d packets, want 2", pool.Len())
	}
}

func TestSplitKeepsDeferredWithOriginal(t *testing.T) {
	pool := NewPool()
	p := pool.New(50, 1, Source{})
	p.RegisterDeferredPayment()

	sp := p.Split(pool, 20)

	if sp.HasDeferredPayment() {
		t.Error("deferred flag moved to the split-off packet")
	}
	if !p.HasDeferredPayment() {
		t.Error("deferred flag lost from the original")
	}
}

func TestSplitBounds(t *testing.T) {
	pool := NewPool()
	p := pool.New(10, 1, Source{})
	mustPanic(t, "Split(0)", func() { p.Split(pool, 0) })
	mustPanic(t, "Split(count)", func() { p.Split(pool, 10) })
}

func TestMergeDestroysDonor(t *testing.T) {
	pool := NewPool()
	a := pool.New(40, 1, Source{})
	b := pool.New(60, 1, Source{})
	b.AddFeederShare(9)

	a.Merge(pool, b)

	if a.Count() != 100 {
		t.Errorf("merged count %d, want 100", a.Count())
	}
	if a.FeederShare() != 9 {
		t.Errorf("merged feeder share %d, want 9", a.FeederShare())
	}
	if pool.Len() != 1 {
		t.Errorf("pool has %d packets after merge, want 1", pool.Len())
	}
}

func TestMergeable(t *testing.T) {
	pool := NewPool()
	a := pool.New(10, 1, Source{Kind: SourceIndustry, ID: 3})
	b := pool.New(10, 1, Source{Kind: SourceIndustry, ID: 3})
	if !Mergeable(a, b) {
		t.Fatal("identical packets not mergeable")
	}

	b.periods = 1
	if Mergeable(a, b) {
		t.Error("mergeable across different transit ages")
	}
	b.periods = 0

	b.firstStation = 2
	if Mergeable(a, b) {
		t.Error("mergeable across different first stations")
	}
	b.firstStation = 1

	b.source.ID = 4
	if Mergeable(a, b) {
		t.Error("mergeable across different sources")
	}
	b.source.ID = 3

	b.UpdateLoadingTile(TileXY{X: 5, Y: 5})
	if Mergeable(a, b) {
		t.Error("mergeable across different source tiles")
	}
}

func TestDistanceCappedByStraightLine(t *testing.T) {
	pool := NewPool()
	p := pool.New(10, 1, Source{})

	// Out and back: 20 tiles travelled, zero net displacement.
	p.UpdateLoadingTile(TileXY{X: 0, Y: 0})
	p.UpdateUnloadingTile(TileXY{X: 10, Y: 0})
	p.UpdateLoadingTile(TileXY{X: 10, Y: 0})
	p.UpdateUnloadingTile(TileXY{X: 0, Y: 0})

	if d := p.GetDistance(TileXY{X: 0, Y: 0}); d != 0 {
		t.Errorf("round trip distance %d, want 0", d)
	}
	if d := p.GetDistance(TileXY{X: 10, Y: 0}); d != 10 {
		t.Errorf("distance at the far stop %d, want 10", d)
	}
}

func TestDistanceIncludesCurrentLeg(t *testing.T) {
	pool := NewPool()
	p := pool.New(10, 1, Source{})
	p.UpdateLoadingTile(TileXY{X: 0, Y: 0})

	if d := p.GetDistance(TileXY{X: 3, Y: 4}); d != 7 {
		t.Errorf("in-vehicle distance %d, want 7", d)
	}
}

func TestDistanceIgnoresStationShuffle(t *testing.T) {
	pool := NewPool()
	p := pool.New(10, 1, Source{})
	p.UpdateLoadingTile(TileXY{X: 0, Y: 0})
	p.UpdateUnloadingTile(TileXY{X: 8, Y: 0})

	// Unloading again without a loading event must not move the packet.
	p.UpdateUnloadingTile(TileXY{X: 20, Y: 0})

	if d := p.GetDistance(TileXY{X: 8, Y: 0}); d != 8 {
		t.Errorf("distance %d, want 8", d)
	}
}

func TestDistancePanicsBeforeFirstLoad(t *testing.T) {
	pool := NewPool()
	p := pool.New(10, 1, Source{})
	mustPanic(t, "GetDistance", func() { p.GetDistance(TileXY{}) })
}

type recordingSettler struct {
	settled []PacketID
}

func (rs *recordingSettler) SettleDeferred(p *Packet) {
	rs.settled = append(rs.settled, p.ID())
}

func TestPoolSettlesDeferredBeforeDestroy(t *testing.T) {
	pool := NewPool()
	rs := &recordingSettler{}
	pool.SetDeferredSettler(rs)

	p := pool.New(10, 1, Source{})
	p.RegisterDeferredPayment()
	id := p.ID()
	pool.Delete(p)

	if len(rs.settled) != 1 || rs.settled[0] != id {
		t.Fatalf("settled %v, want [%d]", rs.settled, id)
	}
	if p.HasDeferredPayment() {
		t.Error("deferred flag survived destruction")
	}
}

func TestPoolReusesFreedIDs(t *testing.T) {
	pool := NewPool()
	p := pool.New(10, 1, Source{})
	id := p.ID()
	pool.Delete(p)

	q := pool.New(20, 2, Source{})
	if q.ID() != id {
		t.Errorf("fresh packet got ID %d, want reused %d", q.ID(), id)
	}
	if pool.Len() != 1 {
		t.Errorf("pool has %d packets, want 1", pool.Len())
	}
}

func TestStateRestoreRoundTrip(t *testing.T) {
	pool := NewPool()
	p := pool.New(42, 3, Source{Kind: SourceTown, ID: 8})
	p.AddFeederShare(17)
	p.UpdateLoadingTile(TileXY{X: 2, Y: 3})
	p.UpdateUnloadingTile(TileXY{X: 12, Y: 3})
	p.periods = 5
	p.RegisterDeferredPayment()

	s := p.State()

	fresh := NewPool()
	r := fresh.Restore(s)

	if r.ID() != p.ID() || r.Count() != p.Count() || r.PeriodsInTransit() != p.PeriodsInTransit() {
		t.Fatalf("restored identity mismatch: %+v", r.State())
	}
	if r.FeederShare() != 17 || !r.HasDeferredPayment() {
		t.Error("restored payment state mismatch")
	}
	if r.FirstStation() != 3 || r.Source() != (Source{Kind: SourceTown, ID: 8}) {
		t.Error("restored origin mismatch")
	}
	if d := r.GetDistance(TileXY{X: 12, Y: 3}); d != 10 {
		t.Errorf("restored distance %d, want 10", d)
	}
	if fresh.Get(r.ID()) != r {
		t.Error("restored packet not registered in the pool")
	}

	mustPanic(t, "Restore over a live slot", func() { fresh.Restore(s) })
}
