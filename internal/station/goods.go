// Package station provides stations, their per-cargo goods entries (the
// authoritative owners of the station cargo lists and flow tables), and
// the catchment-area tile bitmaps.
package station

import (
	"fmt"

	"github.com/iti/rngstream"

	"github.com/talgya/freightworld/internal/cargo"
	"github.com/talgya/freightworld/internal/flow"
)

// GoodsStatus flags describe a goods entry's acceptance history.
type GoodsStatus uint8

const (
	// StatusAcceptance is set while the station currently accepts the
	// cargo for final delivery.
	StatusAcceptance GoodsStatus = 1 << iota
	// StatusEverAccepted is set once the cargo was ever accepted here.
	StatusEverAccepted
	// StatusRating is set once the station has ever had this cargo
	// waiting, i.e. a rating exists.
	StatusRating
)

// GoodsEntry is the per-cargo-type state of one station: the waiting
// cargo ledger and the flow tables used to pick next hops for it. Each
// entry owns a seeded RNG stream so routing draws are reproducible per
// run and independent across stations.
type GoodsEntry struct {
	Cargo  *cargo.StationCargo
	Flows  *flow.FlowStatMap
	Status GoodsStatus

	rng *rngstream.RngStream
}

// NewGoodsEntry creates a goods entry backed by pool. The name seeds the
// entry's RNG stream; use something stable like "<station>/<cargo>".
func NewGoodsEntry(pool *cargo.Pool, name string) *GoodsEntry {
	return &GoodsEntry{
		Cargo: cargo.NewStationCargo(pool),
		Flows: flow.NewMap(),
		rng:   rngstream.New(name),
	}
}

// Accepts reports whether the cargo is currently accepted here.
func (ge *GoodsEntry) Accepts() bool { return ge.Status&StatusAcceptance != 0 }

// SetAcceptance flips current acceptance, remembering that the cargo was
// accepted at least once.
func (ge *GoodsEntry) SetAcceptance(accepted bool) {
	if accepted {
		ge.Status |= StatusAcceptance | StatusEverAccepted
	} else {
		ge.Status &^= StatusAcceptance
	}
}

// GetVia draws a next hop for cargo originating at source. Returns
// InvalidStation when no route is known; callers treat that as "keep the
// cargo waiting", not as an error.
func (ge *GoodsEntry) GetVia(source cargo.StationID) cargo.StationID {
	fs := ge.Flows.Find(source)
	if fs == nil {
		return cargo.InvalidStation
	}
	return fs.GetVia(ge.rng)
}

// GetViaExcluding draws a next hop for cargo originating at source that
// is neither avoid nor avoid2.
func (ge *GoodsEntry) GetViaExcluding(source, avoid, avoid2 cargo.StationID) cargo.StationID {
	fs := ge.Flows.Find(source)
	if fs == nil {
		return cargo.InvalidStation
	}
	return fs.GetViaExcluding(ge.rng, avoid, avoid2)
}

// ConstCargo returns a read view of the waiting cargo ledger.
func (ge *GoodsEntry) ConstCargo() *cargo.StationCargo { return ge.Cargo }

// ConstFlows returns a read view of the flow tables.
func (ge *GoodsEntry) ConstFlows() *flow.FlowStatMap { return ge.Flows }

// Station is one station of the transport network.
type Station struct {
	ID        cargo.StationID
	Name      string
	Sign      cargo.TileXY // reference tile for payment distances
	Goods     []*GoodsEntry
	Catchment *BitmapTileArea
}

// NewStation creates a station with one goods entry per cargo type.
func NewStation(pool *cargo.Pool, id cargo.StationID, name string, sign cargo.TileXY, numCargo int) *Station {
	st := &Station{
		ID:   id,
		Name: name,
		Sign: sign,
	}
	st.Goods = make([]*GoodsEntry, numCargo)
	for c := range st.Goods {
		st.Goods[c] = NewGoodsEntry(pool, fmt.Sprintf("%s/%d", name, c))
	}
	return st
}

// Goods entry for the given cargo type.
func (st *Station) GoodsOf(c cargo.CargoType) *GoodsEntry { return st.Goods[c] }
