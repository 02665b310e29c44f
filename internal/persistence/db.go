// Package persistence provides SQLite-based snapshot storage for the
// cargo distribution state: packets, station buckets, vehicle holds,
// reservations and flow tables.
package persistence

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/freightworld/internal/cargo"
	"github.com/talgya/freightworld/internal/engine"
)

// DB wraps a SQLite connection for snapshot persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		tick INTEGER NOT NULL,
		saved_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS packets (
		run_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		count INTEGER NOT NULL,
		periods INTEGER NOT NULL,
		feeder_share INTEGER NOT NULL,
		source_x INTEGER NOT NULL,
		source_y INTEGER NOT NULL,
		has_source INTEGER NOT NULL,
		leg_x INTEGER NOT NULL,
		leg_y INTEGER NOT NULL,
		in_vehicle INTEGER NOT NULL,
		travelled_x INTEGER NOT NULL,
		travelled_y INTEGER NOT NULL,
		first_station INTEGER NOT NULL,
		next_hop INTEGER NOT NULL,
		source_kind INTEGER NOT NULL,
		source_id INTEGER NOT NULL,
		deferred INTEGER NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS station_cargo (
		run_id TEXT NOT NULL,
		station INTEGER NOT NULL,
		cargo INTEGER NOT NULL,
		next_hop INTEGER NOT NULL,
		position INTEGER NOT NULL,
		packet_id INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vehicle_cargo (
		run_id TEXT NOT NULL,
		vehicle INTEGER NOT NULL,
		position INTEGER NOT NULL,
		packet_id INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reservations (
		run_id TEXT NOT NULL,
		station INTEGER NOT NULL,
		cargo INTEGER NOT NULL,
		reserved INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS flows (
		run_id TEXT NOT NULL,
		station INTEGER NOT NULL,
		cargo INTEGER NOT NULL,
		origin INTEGER NOT NULL,
		via INTEGER NOT NULL,
		share INTEGER NOT NULL,
		restricted INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_station_cargo_run ON station_cargo(run_id);
	CREATE INDEX IF NOT EXISTS idx_flows_run ON flows(run_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveSnapshot writes the complete cargo state of the world under a
// fresh run ID (full replace within one transaction) and returns it.
func (db *DB) SaveSnapshot(w *engine.World, scenario string, tick uint64) (string, error) {
	runID := uuid.NewString()

	tx, err := db.conn.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO runs (run_id, scenario, tick) VALUES (?, ?, ?)`,
		runID, scenario, tick); err != nil {
		return "", err
	}

	savePacket := func(p *cargo.Packet) error {
		s := p.State()
		_, err := tx.Exec(`INSERT INTO packets
			(run_id, id, count, periods, feeder_share, source_x, source_y,
			 has_source, leg_x, leg_y, in_vehicle, travelled_x, travelled_y,
			 first_station, next_hop, source_kind, source_id, deferred)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, s.ID, s.Count, s.Periods, s.FeederShare, s.SourceX, s.SourceY,
			s.HasSourceXY, s.LegX, s.LegY, s.InVehicle, s.TravelledX, s.TravelledY,
			s.FirstStation, s.NextHop, s.SourceKind, s.SourceID, s.Deferred)
		return err
	}
	var packetErr error
	w.Pool.Range(func(p *cargo.Packet) bool {
		packetErr = savePacket(p)
		return packetErr == nil
	})
	if packetErr != nil {
		return "", packetErr
	}

	for _, st := range w.Stations {
		for c, ge := range st.Goods {
			for _, next := range ge.Cargo.NextHops() {
				for pos, p := range ge.Cargo.PacketsFor(next) {
					if _, err := tx.Exec(`INSERT INTO station_cargo
						(run_id, station, cargo, next_hop, position, packet_id)
						VALUES (?, ?, ?, ?, ?, ?)`,
						runID, st.ID, c, next, pos, p.ID()); err != nil {
						return "", err
					}
				}
			}
			if reserved := ge.Cargo.ReservedCount(); reserved > 0 {
				if _, err := tx.Exec(`INSERT INTO reservations
					(run_id, station, cargo, reserved) VALUES (?, ?, ?, ?)`,
					runID, st.ID, c, reserved); err != nil {
					return "", err
				}
			}
			for _, fs := range ge.Flows.Stats() {
				for _, sh := range fs.Shares() {
					if _, err := tx.Exec(`INSERT INTO flows
						(run_id, station, cargo, origin, via, share, restricted)
						VALUES (?, ?, ?, ?, ?, ?, ?)`,
						runID, st.ID, c, fs.Origin(), sh.Via, sh.Amount, sh.Restricted); err != nil {
						return "", err
					}
				}
			}
		}
	}

	for _, v := range w.Vehicles {
		for pos, p := range v.Hold.Packets() {
			if _, err := tx.Exec(`INSERT INTO vehicle_cargo
				(run_id, vehicle, position, packet_id) VALUES (?, ?, ?, ?)`,
				runID, v.ID, pos, p.ID()); err != nil {
				return "", err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	slog.Info("snapshot saved", "run", runID, "tick", tick, "packets", w.Pool.Len())
	return runID, nil
}

type packetRow struct {
	ID           cargo.PacketID `db:"id"`
	Count        uint16         `db:"count"`
	Periods      uint16         `db:"periods"`
	FeederShare  int64          `db:"feeder_share"`
	SourceX      int32          `db:"source_x"`
	SourceY      int32          `db:"source_y"`
	HasSource    bool           `db:"has_source"`
	LegX         int32          `db:"leg_x"`
	LegY         int32          `db:"leg_y"`
	InVehicle    bool           `db:"in_vehicle"`
	TravelledX   int32          `db:"travelled_x"`
	TravelledY   int32          `db:"travelled_y"`
	FirstStation uint16         `db:"first_station"`
	NextHop      uint16         `db:"next_hop"`
	SourceKind   uint8          `db:"source_kind"`
	SourceID     uint16         `db:"source_id"`
	Deferred     bool           `db:"deferred"`
}

// LoadSnapshot restores a saved run into a freshly built world (same
// scenario, empty pool). After the raw rows are in place it runs the
// load-repair sequence in its required order: cache rebuild, vehicle
// restaging, then reservation counters.
func (db *DB) LoadSnapshot(w *engine.World, runID string) (uint64, error) {
	var tick uint64
	if err := db.conn.Get(&tick,
		`SELECT tick FROM runs WHERE run_id = ?`, runID); err != nil {
		return 0, fmt.Errorf("load run %s: %w", runID, err)
	}

	var rows []packetRow
	if err := db.conn.Select(&rows,
		`SELECT id, count, periods, feeder_share, source_x, source_y,
		        has_source, leg_x, leg_y, in_vehicle, travelled_x, travelled_y,
		        first_station, next_hop, source_kind, source_id, deferred
		 FROM packets WHERE run_id = ? ORDER BY id`, runID); err != nil {
		return 0, fmt.Errorf("load packets: %w", err)
	}
	for _, r := range rows {
		w.Pool.Restore(cargo.PacketState{
			ID:           r.ID,
			Count:        r.Count,
			Periods:      r.Periods,
			FeederShare:  cargo.Money(r.FeederShare),
			SourceX:      r.SourceX,
			SourceY:      r.SourceY,
			HasSourceXY:  r.HasSource,
			LegX:         r.LegX,
			LegY:         r.LegY,
			InVehicle:    r.InVehicle,
			TravelledX:   r.TravelledX,
			TravelledY:   r.TravelledY,
			FirstStation: cargo.StationID(r.FirstStation),
			NextHop:      cargo.StationID(r.NextHop),
			SourceKind:   cargo.SourceKind(r.SourceKind),
			SourceID:     r.SourceID,
			Deferred:     r.Deferred,
		})
	}

	type placementRow struct {
		Station  uint16         `db:"station"`
		Cargo    int            `db:"cargo"`
		NextHop  uint16         `db:"next_hop"`
		PacketID cargo.PacketID `db:"packet_id"`
	}
	var placements []placementRow
	if err := db.conn.Select(&placements,
		`SELECT station, cargo, next_hop, packet_id FROM station_cargo
		 WHERE run_id = ? ORDER BY station, cargo, next_hop, position`, runID); err != nil {
		return 0, fmt.Errorf("load station cargo: %w", err)
	}
	for _, r := range placements {
		st := w.Stations[cargo.StationID(r.Station)]
		if st == nil {
			return 0, fmt.Errorf("snapshot references unknown station %d", r.Station)
		}
		p := w.Pool.Get(r.PacketID)
		st.Goods[r.Cargo].Cargo.LoadAppend(p, cargo.StationID(r.NextHop))
	}

	type holdRow struct {
		Vehicle  int            `db:"vehicle"`
		PacketID cargo.PacketID `db:"packet_id"`
	}
	var holds []holdRow
	if err := db.conn.Select(&holds,
		`SELECT vehicle, packet_id FROM vehicle_cargo
		 WHERE run_id = ? ORDER BY vehicle, position`, runID); err != nil {
		return 0, fmt.Errorf("load vehicle cargo: %w", err)
	}
	byID := make(map[engine.VehicleID]*engine.Vehicle, len(w.Vehicles))
	for _, v := range w.Vehicles {
		byID[v.ID] = v
	}
	for _, r := range holds {
		v := byID[engine.VehicleID(r.Vehicle)]
		if v == nil {
			return 0, fmt.Errorf("snapshot references unknown vehicle %d", r.Vehicle)
		}
		v.Hold.Append(w.Pool.Get(r.PacketID), cargo.ActionKeep)
	}

	type flowRow struct {
		Station    uint16 `db:"station"`
		Cargo      int    `db:"cargo"`
		Origin     uint16 `db:"origin"`
		Via        uint16 `db:"via"`
		Share      uint32 `db:"share"`
		Restricted bool   `db:"restricted"`
	}
	var flowRows []flowRow
	if err := db.conn.Select(&flowRows,
		`SELECT station, cargo, origin, via, share, restricted FROM flows
		 WHERE run_id = ? ORDER BY station, cargo, origin, rowid`, runID); err != nil {
		return 0, fmt.Errorf("load flows: %w", err)
	}
	for _, r := range flowRows {
		st := w.Stations[cargo.StationID(r.Station)]
		st.Goods[r.Cargo].Flows.AppendShare(
			cargo.StationID(r.Origin), cargo.StationID(r.Via), r.Share, r.Restricted)
	}

	type reservationRow struct {
		Station  uint16 `db:"station"`
		Cargo    int    `db:"cargo"`
		Reserved uint   `db:"reserved"`
	}
	var reservations []reservationRow
	if err := db.conn.Select(&reservations,
		`SELECT station, cargo, reserved FROM reservations WHERE run_id = ?`, runID); err != nil {
		return 0, fmt.Errorf("load reservations: %w", err)
	}

	// Load-repair sequence; the relative order is mandatory.
	afterLoad(w)
	postVehiclesAfterLoad(w)
	for _, r := range reservations {
		w.Stations[cargo.StationID(r.Station)].Goods[r.Cargo].Cargo.LoadSetReservedCount(r.Reserved)
	}

	slog.Info("snapshot loaded", "run", runID, "tick", tick, "packets", w.Pool.Len())
	return tick, nil
}

// afterLoad rebuilds every list's aggregate caches from the raw packet
// rows.
func afterLoad(w *engine.World) {
	for _, st := range w.Stations {
		for _, ge := range st.Goods {
			ge.Cargo.InvalidateCache()
			ge.Cargo.CheckBucketInvariant()
		}
	}
	for _, v := range w.Vehicles {
		v.Hold.InvalidateCache()
	}
}

// postVehiclesAfterLoad restages vehicle holds: the action partition is
// not serialized, so everything aboard is recategorized as Keep and the
// next stop re-runs Stage.
func postVehiclesAfterLoad(w *engine.World) {
	for _, v := range w.Vehicles {
		v.Hold.KeepAll()
		v.Hold.CheckConsistency()
	}
}
