package persistence

import (
	"path/filepath"
	"testing"

	"github.com/talgya/freightworld/internal/cargo"
	"github.com/talgya/freightworld/internal/economy"
	"github.com/talgya/freightworld/internal/engine"
	"github.com/talgya/freightworld/internal/station"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// buildWorld creates a small two-station network. Both snapshot sides
// construct the same empty world; only the cargo state differs.
func buildWorld() *engine.World {
	w := engine.NewWorld([]economy.CargoClass{{Type: 0, Name: "coal", Rate: 16}})
	mine := station.NewStation(w.Pool, 1, "Mine", cargo.TileXY{}, 1)
	plant := station.NewStation(w.Pool, 2, "Plant", cargo.TileXY{X: 10}, 1)
	plant.Goods[0].SetAcceptance(true)
	w.AddStation(mine)
	w.AddStation(plant)
	w.Vehicles = append(w.Vehicles,
		engine.NewVehicle(w.Pool, 0, "Runner", 0, 100, 5,
			[]engine.Order{{Station: 1}, {Station: 2, Flags: cargo.UnloadFlagUnload}}))
	return w
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)

	w := buildWorld()
	mine := w.Stations[1]

	// Cargo aboard the vehicle, loaded through the regular path.
	mine.Goods[0].Cargo.Append(w.Pool.New(30, 1, cargo.Source{}), 2)
	hold := w.Vehicles[0].Hold
	mine.Goods[0].Cargo.Load(30, hold, []cargo.StationID{2}, cargo.TileXY{})

	// Waiting cargo with payment state worth preserving.
	waiting := w.Pool.New(70, 1, cargo.Source{Kind: cargo.SourceIndustry, ID: 1})
	waiting.AddFeederShare(12)
	mine.Goods[0].Cargo.Append(waiting, 2)

	// Flow tables with a restricted share.
	mine.Goods[0].Flows.AddFlow(1, 2, 100)
	mine.Goods[0].Flows.AppendShare(1, 3, 40, true)

	runID, err := db.SaveSnapshot(w, "test", 4242)
	if err != nil {
		t.Fatal(err)
	}
	if runID == "" {
		t.Fatal("empty run ID")
	}

	// Restore into a freshly built world of the same shape.
	fresh := buildWorld()
	tick, err := db.LoadSnapshot(fresh, runID)
	if err != nil {
		t.Fatal(err)
	}
	if tick != 4242 {
		t.Errorf("restored tick %d, want 4242", tick)
	}
	if fresh.Pool.Len() != w.Pool.Len() {
		t.Errorf("restored %d packets, want %d", fresh.Pool.Len(), w.Pool.Len())
	}

	sc := fresh.Stations[1].Goods[0].Cargo
	if sc.StoredCount() != 70 {
		t.Errorf("restored station cargo %d, want 70", sc.StoredCount())
	}
	if sc.AvailableViaCount(2) != 70 {
		t.Errorf("restored bucket 2 holds %d, want 70", sc.AvailableViaCount(2))
	}
	sc.CheckBucketInvariant()

	restored := sc.PacketsFor(2)[0]
	if restored.FeederShare() != 12 {
		t.Errorf("restored feeder share %d, want 12", restored.FeederShare())
	}
	if restored.Source() != (cargo.Source{Kind: cargo.SourceIndustry, ID: 1}) {
		t.Errorf("restored source %+v", restored.Source())
	}

	freshHold := fresh.Vehicles[0].Hold
	if freshHold.TotalCount() != 30 {
		t.Errorf("restored hold %d units, want 30", freshHold.TotalCount())
	}
	// The action partition is not serialized; everything restages as Keep.
	if freshHold.ActionCount(cargo.ActionKeep) != 30 {
		t.Error("restored hold not recategorized as Keep")
	}
	freshHold.CheckConsistency()

	fs := fresh.Stations[1].Goods[0].Flows.Find(1)
	if fs == nil {
		t.Fatal("flow table not restored")
	}
	if fs.GetShare(2) != 100 || fs.GetShare(3) != 40 {
		t.Errorf("restored shares %d/%d, want 100/40", fs.GetShare(2), fs.GetShare(3))
	}
	if fs.Unrestricted() != 100 {
		t.Errorf("restored unrestricted boundary %d, want 100", fs.Unrestricted())
	}
}

func TestSnapshotPreservesReservation(t *testing.T) {
	db := openTestDB(t)

	w := buildWorld()
	mine := w.Stations[1]
	mine.Goods[0].Cargo.Append(w.Pool.New(50, 1, cargo.Source{}), 2)
	mine.Goods[0].Cargo.Reserve(20, w.Vehicles[0].Hold, []cargo.StationID{2}, cargo.TileXY{})

	runID, err := db.SaveSnapshot(w, "test", 1)
	if err != nil {
		t.Fatal(err)
	}

	fresh := buildWorld()
	if _, err := db.LoadSnapshot(fresh, runID); err != nil {
		t.Fatal(err)
	}

	sc := fresh.Stations[1].Goods[0].Cargo
	if sc.ReservedCount() != 20 {
		t.Errorf("restored reservation %d, want 20", sc.ReservedCount())
	}
	if sc.StoredCount() != 30 {
		t.Errorf("restored stored count %d, want 30", sc.StoredCount())
	}
	if fresh.Vehicles[0].Hold.TotalCount() != 20 {
		t.Errorf("restored hold %d, want the 20 reserved units", fresh.Vehicles[0].Hold.TotalCount())
	}
}

func TestLoadUnknownRun(t *testing.T) {
	db := openTestDB(t)
	w := buildWorld()
	if _, err := db.LoadSnapshot(w, "no-such-run"); err == nil {
		t.Fatal("loading a missing run succeeded")
	}
}
