package engine

import (
	"log/slog"

	"github.com/talgya/freightworld/internal/cargo"
	"github.com/talgya/freightworld/internal/economy"
	"github.com/talgya/freightworld/internal/station"
)

// Producer generates per-tick cargo supply for a producing station.
// Implemented by the scenario demand fields.
type Producer interface {
	Produce(st cargo.StationID, c cargo.CargoType, tick uint64) uint
}

// WorldStats aggregates the money and cargo movement of a run.
type WorldStats struct {
	Produced      uint
	Delivered     uint
	Discarded     uint
	RouteEarnings cargo.Money
	FeederCredits cargo.Money
}

// World holds the complete transport network state and wires the cargo
// systems together. All mutation happens on the engine's tick, in
// deterministic station/vehicle order; the cargo core assumes exclusive
// single-writer access.
type World struct {
	Pool     *cargo.Pool
	Classes  []economy.CargoClass
	Ledger   *economy.DeferredLedger
	Stations map[cargo.StationID]*station.Station
	Vehicles []*Vehicle
	Supply   Producer
	Stats    WorldStats

	// stationOrder fixes the per-tick iteration order over stations.
	stationOrder []cargo.StationID

	// StationCap is the most cargo a station keeps waiting per cargo
	// type; overflow is discarded oldest-first by Truncate.
	StationCap uint
}

// NewWorld creates an empty world with the given cargo classes.
func NewWorld(classes []economy.CargoClass) *World {
	pool := cargo.NewPool()
	ledger := economy.NewDeferredLedger()
	pool.SetDeferredSettler(ledger)
	return &World{
		Pool:       pool,
		Classes:    classes,
		Ledger:     ledger,
		Stations:   make(map[cargo.StationID]*station.Station),
		StationCap: 2048,
	}
}

// AddStation registers a station; iteration order follows registration
// order so ticks stay deterministic.
func (w *World) AddStation(st *station.Station) {
	w.Stations[st.ID] = st
	w.stationOrder = append(w.stationOrder, st.ID)
}

// TickVehicles advances every vehicle one tick and folds completed stop
// payments into the run statistics. Engine OnTick layer.
func (w *World) TickVehicles(tick uint64) {
	for _, v := range w.Vehicles {
		pay := v.MoveTick(w)
		if pay == nil {
			continue
		}
		w.Stats.Delivered += pay.Delivered
		w.Stats.RouteEarnings += pay.RouteEarnings
		w.Stats.FeederCredits += pay.FeederCredits
	}
}

// ProduceCargo generates fresh cargo at every producing station and
// routes it with a flow draw. Cargo with no usable route waits in the
// wildcard bucket. Runs on the aging layer, before AgeCargo, so fresh
// packets start at zero periods in transit.
func (w *World) ProduceCargo(tick uint64) {
	if w.Supply == nil {
		return
	}
	for _, id := range w.stationOrder {
		st := w.Stations[id]
		for c := range st.Goods {
			ct := cargo.CargoType(c)
			amount := w.Supply.Produce(id, ct, tick)
			if amount == 0 {
				continue
			}
			ge := st.Goods[c]
			w.Stats.Produced += amount
			for amount > 0 {
				chunk := amount
				if chunk > cargo.MaxPacketCount {
					chunk = cargo.MaxPacketCount
				}
				p := w.Pool.New(uint16(chunk), id, cargo.Source{Kind: cargo.SourceIndustry, ID: uint16(id)})
				ge.Cargo.Append(p, ge.GetVia(id))
				amount -= chunk
			}
			if over := ge.Cargo.StoredCount(); over > w.StationCap {
				w.Stats.Discarded += ge.Cargo.Truncate(over-w.StationCap, nil)
			}
		}
	}
}

// AgeCargo ages every station and vehicle ledger. Engine aging layer.
func (w *World) AgeCargo(tick uint64) {
	w.ProduceCargo(tick)
	for _, id := range w.stationOrder {
		st := w.Stations[id]
		for _, ge := range st.Goods {
			ge.Cargo.AgeCargo()
		}
	}
	for _, v := range w.Vehicles {
		v.Hold.AgeCargo()
	}
}

// DecayFlows runs one invalidation pass over every flow table and
// reroutes cargo whose tables were deleted. Engine flow-decay layer.
func (w *World) DecayFlows(tick uint64) {
	for _, id := range w.stationOrder {
		st := w.Stations[id]
		for c, ge := range st.Goods {
			deleted := ge.Flows.InvalidateAll()
			if len(deleted) > 0 {
				slog.Debug("flow tables expired",
					"station", st.Name,
					"cargo", w.Classes[c].Name,
					"origins", len(deleted))
			}
		}
	}
}

// RemoveStationFromRoutes removes a dead station from every flow table
// and reroutes cargo that was heading there. Callers remove the station
// from vehicle orders separately.
func (w *World) RemoveStationFromRoutes(dead cargo.StationID) {
	for _, id := range w.stationOrder {
		if id == dead {
			continue
		}
		st := w.Stations[id]
		for _, ge := range st.Goods {
			affected := ge.Flows.DeleteFlows(dead)
			if len(affected) > 0 {
				ge.Cargo.Reroute(^uint(0), dead, cargo.InvalidStation, ge)
			}
		}
	}
	for _, v := range w.Vehicles {
		if st := w.Stations[v.CurrentOrder().Station]; st != nil {
			ge := st.GoodsOf(v.CargoOf)
			v.Hold.Reroute(^uint(0), dead, cargo.InvalidStation, ge)
		}
	}
}
