package engine

import (
	"log/slog"

	"github.com/talgya/freightworld/internal/cargo"
	"github.com/talgya/freightworld/internal/economy"
)

// VehicleID identifies a vehicle.
type VehicleID uint16

// Order is one stop of a vehicle's route.
type Order struct {
	Station cargo.StationID
	Flags   cargo.UnloadFlags
	NoLoad  bool // pick up nothing at this stop
}

// Vehicle hauls one cargo type along a cyclic list of orders. Movement
// is abstracted to a per-tick distance budget between station sign
// tiles; the cargo core only cares about the stop events.
type Vehicle struct {
	ID       VehicleID
	Name     string
	CargoOf  cargo.CargoType
	Capacity uint
	Speed    uint // tiles of progress per tick
	Orders   []Order

	Hold *cargo.VehicleCargo

	orderIndex int
	atStation  bool
	progress   uint // tiles covered toward the next stop
	dwell      uint // ticks remaining at the current stop
}

// NewVehicle creates a vehicle at the first stop of its orders.
func NewVehicle(pool *cargo.Pool, id VehicleID, name string, c cargo.CargoType, capacity, speed uint, orders []Order) *Vehicle {
	if len(orders) < 2 {
		panic("engine: a vehicle needs at least two orders")
	}
	return &Vehicle{
		ID:       id,
		Name:     name,
		CargoOf:  c,
		Capacity: capacity,
		Speed:    speed,
		Orders:   orders,
		Hold:     cargo.NewVehicleCargo(pool),
	}
}

// CurrentOrder returns the order the vehicle is at or moving toward.
func (v *Vehicle) CurrentOrder() Order { return v.Orders[v.orderIndex] }

// nextOrder returns the order after the current one, cyclically.
func (v *Vehicle) nextOrder() Order {
	return v.Orders[(v.orderIndex+1)%len(v.Orders)]
}

// nextHops returns the stations of the upcoming orders in visiting
// order, excluding the current stop. Used as the pickup stack: cargo for
// any of these may be loaded here.
func (v *Vehicle) nextHops() []cargo.StationID {
	out := make([]cargo.StationID, 0, len(v.Orders)-1)
	for i := 1; i < len(v.Orders); i++ {
		out = append(out, v.Orders[(v.orderIndex+i)%len(v.Orders)].Station)
	}
	return out
}

// MoveTick advances the vehicle by one tick, running the stop cycle on
// arrival. Returns the payment context of a completed stop, or nil.
func (v *Vehicle) MoveTick(w *World) *economy.Payment {
	if v.atStation {
		if v.dwell > 0 {
			v.dwell--
			return nil
		}
		v.Hold.KeepAll()
		v.atStation = false
		v.orderIndex = (v.orderIndex + 1) % len(v.Orders)
		v.progress = 0
		return nil
	}

	v.progress += v.Speed
	dist := w.legDistance(v)
	if v.progress < dist {
		return nil
	}

	v.atStation = true
	v.dwell = 4
	return v.stop(w)
}

// stop runs the per-stop loading cycle at the current order's station:
// stage, unload, reserve, then load.
func (v *Vehicle) stop(w *World) *economy.Payment {
	ord := v.CurrentOrder()
	st := w.Stations[ord.Station]
	ge := st.GoodsOf(v.CargoOf)
	pay := economy.NewPayment(w.Classes[v.CargoOf], st.Sign)

	unloadable := v.Hold.Stage(ge.Accepts(), st.ID, v.nextOrder().Station, ord.Flags, ge)
	if unloadable {
		unloaded := v.Hold.Unload(v.Capacity, ge.Cargo, pay, st.Sign)
		slog.Debug("vehicle unloaded",
			"vehicle", v.Name,
			"station", st.Name,
			"units", unloaded)
	}
	v.Hold.CheckConsistency()

	if !ord.NoLoad {
		free := v.Capacity - v.Hold.TotalCount()
		if free > 0 {
			stack := v.nextHops()
			reserved := ge.Cargo.Reserve(free, v.Hold, stack, st.Sign)
			if reserved > 0 {
				loaded := ge.Cargo.Load(reserved, v.Hold, stack, st.Sign)
				slog.Debug("vehicle loaded",
					"vehicle", v.Name,
					"station", st.Name,
					"units", loaded)
			}
		}
	}
	v.Hold.CheckConsistency()
	return pay
}

// legDistance is the manhattan distance of the vehicle's current leg.
func (w *World) legDistance(v *Vehicle) uint {
	from := w.Stations[v.Orders[(v.orderIndex+len(v.Orders)-1)%len(v.Orders)].Station]
	to := w.Stations[v.CurrentOrder().Station]
	return cargo.DistanceManhattan(from.Sign, to.Sign)
}
