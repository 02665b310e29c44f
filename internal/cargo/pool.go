package cargo

// DeferredSettler settles a packet's outstanding deferred payments.
// Implemented by the economy ledger.
type DeferredSettler interface {
	SettleDeferred(p *Packet)
}

// Pool is the identity allocator for cargo packets. It hands out stable
// small IDs, destroys packets, and supports iteration over live packets.
// A pool is constructed explicitly and passed to the lists that need it;
// there is no process-wide instance.
type Pool struct {
	slots   []*Packet // index == PacketID; nil slots are free
	free    []PacketID
	live    uint
	settler DeferredSettler
}

// NewPool creates an empty packet pool.
func NewPool() *Pool {
	return &Pool{}
}

// SetDeferredSettler installs the ledger consulted before any packet with
// pending deferred payments is destroyed.
func (pl *Pool) SetDeferredSettler(s DeferredSettler) { pl.settler = s }

// alloc reserves a slot and returns a zeroed packet carrying its ID.
func (pl *Pool) alloc() *Packet {
	p := new(Packet)
	if n := len(pl.free); n > 0 {
		p.id = pl.free[n-1]
		pl.free = pl.free[:n-1]
		pl.slots[p.id] = p
	} else {
		p.id = PacketID(len(pl.slots))
		pl.slots = append(pl.slots, p)
	}
	pl.live++
	return p
}

// New creates a packet of count units entering the network at first,
// produced by source. The payment-distance anchor is not set until the
// packet is first loaded onto a vehicle.
func (pl *Pool) New(count uint16, first StationID, source Source) *Packet {
	if count == 0 {
		panic("cargo: new packet with zero count")
	}
	p := pl.alloc()
	p.count = count
	p.firstStation = first
	p.nextHop = InvalidStation
	p.source = source
	return p
}

// Delete destroys a packet. A packet with pending deferred payments is
// settled first; destroying one without settlement would silently lose
// money, so an unsettled packet after the settler ran is fatal.
func (pl *Pool) Delete(p *Packet) {
	if p.deferred {
		if pl.settler != nil {
			pl.settler.SettleDeferred(p)
		}
		p.deferred = false
	}
	if pl.slots[p.id] != p {
		panic("cargo: deleting a packet the pool does not own")
	}
	pl.slots[p.id] = nil
	pl.free = append(pl.free, p.id)
	pl.live--
}

// Get returns the live packet with the given ID, or nil.
func (pl *Pool) Get(id PacketID) *Packet {
	if int(id) >= len(pl.slots) {
		return nil
	}
	return pl.slots[id]
}

// Len returns the number of live packets.
func (pl *Pool) Len() uint { return pl.live }

// Range calls fn for every live packet until fn returns false.
func (pl *Pool) Range(fn func(*Packet) bool) {
	for _, p := range pl.slots {
		if p == nil {
			continue
		}
		if !fn(p) {
			return
		}
	}
}

// Clean destroys every live packet. Lists holding references must be told
// with their OnCleanPool hook afterwards.
func (pl *Pool) Clean() {
	for _, p := range pl.slots {
		if p != nil {
			pl.Delete(p)
		}
	}
}
