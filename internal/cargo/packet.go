package cargo

import "fmt"

// Packet is the atomic unit of cargo: an amount of uniform origin, age and
// payment state. Fields are package-private; only the owning list (and the
// pool) mutate them, which keeps the lists' cached aggregates honest.
type Packet struct {
	id          PacketID
	count       uint16
	periods     uint16 // aging ticks spent in transit, saturates
	feederShare Money  // accumulated payment owed to intermediate carriers

	// Payment-distance state. sourceXY anchors the straight-line cap and
	// is set exactly once, on the first loading event. The travelled
	// vector accumulates displacement only while the packet rides a
	// vehicle, between load and unload events, so shuttling cargo
	// between two parts of one station earns nothing.
	sourceXY    TileXY
	hasSourceXY bool
	legStart    TileXY
	inVehicle   bool
	travelledX  int32
	travelledY  int32

	firstStation StationID
	nextHop      StationID
	source       Source

	deferred bool // unsettled deferred payment; must settle before destroy
}

// ID returns the pool-assigned identifier.
func (p *Packet) ID() PacketID { return p.id }

// Count returns the number of cargo units in the packet.
func (p *Packet) Count() uint { return uint(p.count) }

// PeriodsInTransit returns the packet's aging counter.
func (p *Packet) PeriodsInTransit() uint16 { return p.periods }

// FeederShare returns the payment accumulated for intermediate carriers.
func (p *Packet) FeederShare() Money { return p.feederShare }

// FirstStation returns the station the packet entered the network at.
func (p *Packet) FirstStation() StationID { return p.firstStation }

// NextHop returns the station the packet should travel to next.
func (p *Packet) NextHop() StationID { return p.nextHop }

// Source returns the original producer of the cargo.
func (p *Packet) Source() Source { return p.source }

// SourceXY returns the payment-distance anchor tile and whether it has
// been established by a loading event yet.
func (p *Packet) SourceXY() (TileXY, bool) { return p.sourceXY, p.hasSourceXY }

// HasDeferredPayment reports whether the packet still owes a deferred
// payment settlement.
func (p *Packet) HasDeferredPayment() bool { return p.deferred }

// RegisterDeferredPayment marks the packet as owing a deferred payment.
// The pool settles it through its DeferredSettler before the packet is
// destroyed or merged away.
func (p *Packet) RegisterDeferredPayment() { p.deferred = true }

// AddFeederShare credits payment owed to an intermediate carrier.
// Additive only.
func (p *Packet) AddFeederShare(m Money) { p.feederShare += m }

// Split moves newSize units out of p into a freshly allocated packet,
// together with a proportional slice of the feeder share (integer
// division; the rounding remainder stays with p). newSize must be
// greater than zero and strictly less than p's count.
func (p *Packet) Split(pool *Pool, newSize uint16) *Packet {
	if newSize == 0 || newSize >= p.count {
		panic(fmt.Sprintf("cargo: split of %d units out of a packet of %d", newSize, p.count))
	}
	movedShare := p.feederShare * Money(newSize) / Money(p.count)
	sp := pool.alloc()
	id := sp.id
	*sp = *p
	sp.id = id
	sp.count = newSize
	sp.feederShare = movedShare
	sp.deferred = false // deferred obligations stay with the original
	p.count -= newSize
	p.feederShare -= movedShare
	return sp
}

// Merge folds other into p and destroys other. The caller must have
// verified mergeability (Mergeable) and that the combined count fits;
// Merge itself does not check origin or age compatibility.
func (p *Packet) Merge(pool *Pool, other *Packet) {
	p.count += other.count
	p.feederShare += other.feederShare
	other.feederShare = 0
	pool.Delete(other)
}

// Reduce removes count units from the packet. The owning list destroys
// the packet when its count reaches zero.
func (p *Packet) Reduce(count uint16) {
	if count > p.count {
		panic(fmt.Sprintf("cargo: reducing packet of %d units by %d", p.count, count))
	}
	p.count -= count
}

// UpdateLoadingTile records a loading event at tile. The first loading
// event establishes the payment-distance anchor.
func (p *Packet) UpdateLoadingTile(tile TileXY) {
	if !p.hasSourceXY {
		p.sourceXY = tile
		p.hasSourceXY = true
	}
	p.legStart = tile
	p.inVehicle = true
}

// UpdateUnloadingTile records an unloading event at tile, accumulating
// the displacement travelled inside the vehicle since the matching
// loading event.
func (p *Packet) UpdateUnloadingTile(tile TileXY) {
	if !p.inVehicle {
		return
	}
	p.travelledX += tile.X - p.legStart.X
	p.travelledY += tile.Y - p.legStart.Y
	p.legStart = tile
	p.inVehicle = false
}

// GetDistance returns the payment distance at the given tile: the
// manhattan length of the in-vehicle travelled vector, capped by the
// straight-line distance from the anchor tile. Calling it before any
// loading event is a programmer error.
func (p *Packet) GetDistance(current TileXY) uint {
	if !p.hasSourceXY {
		panic("cargo: distance requested before the packet was ever loaded")
	}
	tx, ty := p.travelledX, p.travelledY
	if p.inVehicle {
		tx += current.X - p.legStart.X
		ty += current.Y - p.legStart.Y
	}
	travelled := uint(abs32(tx) + abs32(ty))
	direct := DistanceManhattan(p.sourceXY, current)
	if direct < travelled {
		return direct
	}
	return travelled
}

// Mergeable reports whether two packets may be merged: exact equality on
// the origin tile, the aging counter, the first station and the subsidy
// source. Symmetric, no side effects.
func Mergeable(a, b *Packet) bool {
	return a.sourceXY == b.sourceXY &&
		a.hasSourceXY == b.hasSourceXY &&
		a.periods == b.periods &&
		a.firstStation == b.firstStation &&
		a.source == b.source
}
