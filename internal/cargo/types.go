// Package cargo provides the cargo distribution core: cargo packets, the
// packet pool, and the vehicle- and station-side cargo ledgers with their
// cached aggregate statistics.
package cargo

// StationID identifies a station in the transport network.
type StationID uint16

// InvalidStation is the wildcard/absent station ID. As a station cargo
// bucket key it means "cargo that can go anywhere"; as a routing result it
// means "no usable route".
const InvalidStation StationID = 0xFFFF

// CargoType identifies a cargo class (coal, mail, goods, ...). The set of
// classes is defined by the loaded scenario.
type CargoType uint8

// PacketID is a stable identifier assigned by the Pool.
type PacketID uint32

// Money is a signed amount of in-game currency.
type Money int64

// MaxPacketCount is the largest number of cargo units one packet may carry.
const MaxPacketCount = 0xFFFF

// MaxTransitPeriods is the saturation value of the in-transit aging counter.
const MaxTransitPeriods = 0xFFFF

// SourceKind classifies where a packet's cargo originally came from,
// for subsidy bookkeeping.
type SourceKind uint8

const (
	SourceNone SourceKind = iota
	SourceIndustry
	SourceTown
	SourceHeadquarters
)

// Source describes the original producer of a packet's cargo.
type Source struct {
	Kind SourceKind
	ID   uint16
}

// TileXY is a map tile coordinate.
type TileXY struct {
	X int32
	Y int32
}

// DistanceManhattan returns the manhattan distance between two tiles.
func DistanceManhattan(a, b TileXY) uint {
	return uint(abs32(a.X-b.X) + abs32(a.Y-b.Y))
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// NextHopResolver supplies next-hop draws from a station's flow tables.
// Implemented by station.GoodsEntry.
type NextHopResolver interface {
	// GetVia draws a next hop for cargo originating at source.
	// Returns InvalidStation when no usable route is known.
	GetVia(source StationID) StationID
	// GetViaExcluding draws a next hop that is neither avoid nor avoid2.
	GetViaExcluding(source, avoid, avoid2 StationID) StationID
}

// Payment receives delivery and transfer events during unloading. The
// implementation knows the current stop's tile and the cargo class rates.
type Payment interface {
	// PayFinalDelivery credits revenue for count units of p delivered at
	// the current stop. Called after the packet's unloading tile has been
	// updated, so the packet's capped travel distance is current.
	PayFinalDelivery(p *Packet, count uint)
	// PayTransfer credits an intermediate haul for count units of p and
	// returns the amount, which the caller adds to the packet's feeder
	// share.
	PayTransfer(p *Packet, count uint) Money
}
