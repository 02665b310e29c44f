package cargo

// PacketState is the serializable form of a packet, exposing exactly the
// raw structure an external snapshot store needs to walk and rebuild.
type PacketState struct {
	ID           PacketID
	Count        uint16
	Periods      uint16
	FeederShare  Money
	SourceX      int32
	SourceY      int32
	HasSourceXY  bool
	LegX         int32
	LegY         int32
	InVehicle    bool
	TravelledX   int32
	TravelledY   int32
	FirstStation StationID
	NextHop      StationID
	SourceKind   SourceKind
	SourceID     uint16
	Deferred     bool
}

// State captures the packet for serialization.
func (p *Packet) State() PacketState {
	return PacketState{
		ID:           p.id,
		Count:        p.count,
		Periods:      p.periods,
		FeederShare:  p.feederShare,
		SourceX:      p.sourceXY.X,
		SourceY:      p.sourceXY.Y,
		HasSourceXY:  p.hasSourceXY,
		LegX:         p.legStart.X,
		LegY:         p.legStart.Y,
		InVehicle:    p.inVehicle,
		TravelledX:   p.travelledX,
		TravelledY:   p.travelledY,
		FirstStation: p.firstStation,
		NextHop:      p.nextHop,
		SourceKind:   p.source.Kind,
		SourceID:     p.source.ID,
		Deferred:     p.deferred,
	}
}

// Restore recreates a packet from serialized state under its original
// ID. The slot must be free; restoring over a live packet is fatal.
func (pl *Pool) Restore(s PacketState) *Packet {
	for int(s.ID) >= len(pl.slots) {
		pl.free = append(pl.free, PacketID(len(pl.slots)))
		pl.slots = append(pl.slots, nil)
	}
	if pl.slots[s.ID] != nil {
		panic("cargo: restoring a packet over a live slot")
	}
	// Take the ID off the free list.
	for i, id := range pl.free {
		if id == s.ID {
			pl.free = append(pl.free[:i], pl.free[i+1:]...)
			break
		}
	}
	p := &Packet{
		id:           s.ID,
		count:        s.Count,
		periods:      s.Periods,
		feederShare:  s.FeederShare,
		sourceXY:     TileXY{X: s.SourceX, Y: s.SourceY},
		hasSourceXY:  s.HasSourceXY,
		legStart:     TileXY{X: s.LegX, Y: s.LegY},
		inVehicle:    s.InVehicle,
		travelledX:   s.TravelledX,
		travelledY:   s.TravelledY,
		firstStation: s.FirstStation,
		nextHop:      s.NextHop,
		source:       Source{Kind: s.SourceKind, ID: s.SourceID},
		deferred:     s.Deferred,
	}
	pl.slots[s.ID] = p
	pl.live++
	return p
}
