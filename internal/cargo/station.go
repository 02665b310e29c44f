package cargo

import (
	"fmt"
	"sort"
)

// AmountMap records discarded cargo amounts keyed by the station the
// cargo originally entered the network at.
type AmountMap map[StationID]uint

// StationCargo is the cargo ledger of one station for one cargo type:
// packets bucketed by their chosen next hop, plus reservation tracking
// for cargo pulled out for loading but not yet committed. Bucket keys
// are kept sorted so every walk over the buckets is deterministic.
type StationCargo struct {
	listCache
	pool     *Pool
	buckets  map[StationID]*packetQueue
	keys     []StationID // sorted bucket keys
	reserved uint
}

// NewStationCargo creates an empty station ledger backed by pool.
func NewStationCargo(pool *Pool) *StationCargo {
	return &StationCargo{
		pool:    pool,
		buckets: make(map[StationID]*packetQueue),
	}
}

// TotalCount returns waiting plus reserved cargo units.
func (sc *StationCargo) TotalCount() uint { return sc.count + sc.reserved }

// StoredCount returns only the units actually waiting at the station.
func (sc *StationCargo) StoredCount() uint { return sc.count }

// ReservedCount returns the units reserved for loading.
func (sc *StationCargo) ReservedCount() uint { return sc.reserved }

// AvailableViaCount returns the waiting units in the bucket for next only.
func (sc *StationCargo) AvailableViaCount(next StationID) uint {
	q := sc.buckets[next]
	if q == nil {
		return 0
	}
	total := uint(0)
	for i := 0; i < q.Len(); i++ {
		total += uint(q.At(i).count)
	}
	return total
}

// GetFirstStation returns the first station of the front packet of the
// first bucket, or InvalidStation when empty.
func (sc *StationCargo) GetFirstStation() StationID {
	for _, key := range sc.keys {
		if q := sc.buckets[key]; q.Len() > 0 {
			return q.Front().firstStation
		}
	}
	return InvalidStation
}

// NextHops returns the bucket keys in sorted order. For serialization and
// inspection.
func (sc *StationCargo) NextHops() []StationID {
	out := make([]StationID, len(sc.keys))
	copy(out, sc.keys)
	return out
}

// PacketsFor returns the packets waiting in the bucket for next, front
// first. Callers must not mutate through it.
func (sc *StationCargo) PacketsFor(next StationID) []*Packet {
	q := sc.buckets[next]
	if q == nil {
		return nil
	}
	out := make([]*Packet, 0, q.Len())
	for i := 0; i < q.Len(); i++ {
		out = append(out, q.At(i))
	}
	return out
}

func (sc *StationCargo) bucket(next StationID) *packetQueue {
	q := sc.buckets[next]
	if q == nil {
		q = &packetQueue{}
		sc.buckets[next] = q
		i := sort.Search(len(sc.keys), func(i int) bool { return sc.keys[i] >= next })
		sc.keys = append(sc.keys, 0)
		copy(sc.keys[i+1:], sc.keys[i:])
		sc.keys[i] = next
	}
	return q
}

func (sc *StationCargo) dropBucketIfEmpty(next StationID) {
	q := sc.buckets[next]
	if q == nil || q.Len() > 0 {
		return
	}
	delete(sc.buckets, next)
	i := sort.Search(len(sc.keys), func(i int) bool { return sc.keys[i] >= next })
	if i < len(sc.keys) && sc.keys[i] == next {
		sc.keys = append(sc.keys[:i], sc.keys[i+1:]...)
	}
}

// Append inserts a packet into the bucket for next, merging it into a
// compatible packet already waiting there when possible. The bucket key
// is not part of the mergeability predicate, so the full four-field
// check still runs against every candidate in the bucket.
func (sc *StationCargo) Append(p *Packet, next StationID) {
	p.nextHop = next
	sc.add(p)
	q := sc.bucket(next)
	for i := 0; i < q.Len(); i++ {
		if tryMerge(sc.pool, q.At(i), p) {
			return
		}
	}
	q.PushBack(p)
}

// LoadAppend inserts a packet without merging or cache updates. Only the
// snapshot loader uses it; AfterLoad rebuilds the caches afterwards.
func (sc *StationCargo) LoadAppend(p *Packet, next StationID) {
	p.nextHop = next
	sc.bucket(next).PushBack(p)
}

// Unreserve releases reservation accounting for a returned packet and
// puts it back into the bucket for next.
func (sc *StationCargo) Unreserve(p *Packet, next StationID) {
	if sc.reserved < uint(p.count) {
		panic(fmt.Sprintf("cargo: returning %d reserved units, only %d outstanding", p.count, sc.reserved))
	}
	sc.reserved -= uint(p.count)
	sc.Append(p, next)
}

// HasCargoFor reports whether any of the given next-hop stations, or the
// wildcard bucket, has cargo waiting. Used to decide whether a vehicle
// should stop for pickup.
func (sc *StationCargo) HasCargoFor(next []StationID) bool {
	for _, id := range next {
		if q := sc.buckets[id]; q != nil && q.Len() > 0 {
			return true
		}
	}
	q := sc.buckets[InvalidStation]
	return q != nil && q.Len() > 0
}

// Reserve moves up to maxMove units from the buckets matching the
// next-hop stack (stack order, wildcard bucket last) into the vehicle as
// reserved Load cargo. Returns the amount reserved.
func (sc *StationCargo) Reserve(maxMove uint, dest *VehicleCargo, next []StationID, current TileXY) uint {
	moved := sc.moveMatching(maxMove, dest, next, current)
	sc.reserved += moved
	return moved
}

// Load commits cargo into the vehicle. Previously reserved cargo is
// committed first by recategorizing it from Load to Keep; only when no
// reservation is outstanding does it pull cargo straight from the
// buckets. Returns the amount committed or moved.
func (sc *StationCargo) Load(maxMove uint, dest *VehicleCargo, next []StationID, current TileXY) uint {
	if sc.reserved > 0 {
		move := sc.reserved
		if move > maxMove {
			move = maxMove
		}
		if move > dest.ActionCount(ActionLoad) {
			move = dest.ActionCount(ActionLoad)
		}
		sc.reserved -= move
		dest.Reassign(move, ActionLoad, ActionKeep)
		return move
	}
	moved := sc.moveMatching(maxMove, dest, next, current)
	dest.Reassign(moved, ActionLoad, ActionKeep)
	return moved
}

// moveMatching drains matching buckets front-to-back into the vehicle
// under ActionLoad, splitting the last packet when the budget runs out
// mid-packet.
func (sc *StationCargo) moveMatching(maxMove uint, dest *VehicleCargo, next []StationID, current TileXY) uint {
	moved := uint(0)
	keys := make([]StationID, 0, len(next)+1)
	keys = append(keys, next...)
	keys = append(keys, InvalidStation)
	for _, key := range keys {
		q := sc.buckets[key]
		if q == nil {
			continue
		}
		for moved < maxMove && q.Len() > 0 {
			p := q.Front()
			take := uint(p.count)
			if take > maxMove-moved {
				take = maxMove - moved
				p = p.Split(sc.pool, uint16(take))
			} else {
				q.PopFront()
			}
			sc.remove(p, take)
			p.UpdateLoadingTile(current)
			dest.Append(p, ActionLoad)
			moved += take
		}
		sc.dropBucketIfEmpty(key)
		if moved >= maxMove {
			break
		}
	}
	return moved
}

// Truncate discards up to maxMove units across the buckets in key order,
// front-to-back within each bucket. When amounts is non-nil the discarded
// units are recorded per original first station, for subsidy bookkeeping.
// Returns the amount discarded.
func (sc *StationCargo) Truncate(maxMove uint, amounts AmountMap) uint {
	moved := uint(0)
	keys := append([]StationID(nil), sc.keys...)
	for _, key := range keys {
		q := sc.buckets[key]
		for moved < maxMove && q.Len() > 0 {
			p := q.Front()
			take := uint(p.count)
			if take > maxMove-moved {
				take = maxMove - moved
			}
			sc.remove(p, take)
			if amounts != nil {
				amounts[p.firstStation] += take
			}
			if take == uint(p.count) {
				q.PopFront()
				sc.pool.Delete(p)
			} else {
				p.Reduce(uint16(take))
			}
			moved += take
		}
		sc.dropBucketIfEmpty(key)
		if moved >= maxMove {
			break
		}
	}
	return moved
}

// Reroute moves up to maxMove units out of the buckets for the two avoid
// stations into freshly drawn buckets. One weighted draw is made per
// distinct origin per call; packets whose origin has no remaining route
// land in the wildcard bucket. Returns the amount rerouted.
func (sc *StationCargo) Reroute(maxMove uint, avoid, avoid2 StationID, res NextHopResolver) uint {
	return sc.reroute(maxMove, avoid, avoid2, InvalidStation, false, res)
}

// RerouteFromSource behaves like Reroute but only touches packets that
// entered the network at source.
func (sc *StationCargo) RerouteFromSource(maxMove uint, source, avoid, avoid2 StationID, res NextHopResolver) uint {
	return sc.reroute(maxMove, avoid, avoid2, source, true, res)
}

func (sc *StationCargo) reroute(maxMove uint, avoid, avoid2, source StationID, bySource bool, res NextHopResolver) uint {
	drawn := make(map[StationID]StationID)
	moved := uint(0)
	for _, key := range []StationID{avoid, avoid2} {
		if key == InvalidStation {
			// The wildcard bucket is never an avoid target.
			continue
		}
		q := sc.buckets[key]
		if q == nil {
			continue
		}
		// Packets that stay (wrong source) cycle to the back; track how
		// many we may still inspect.
		remaining := q.Len()
		for remaining > 0 && moved < maxMove {
			remaining--
			p := q.Front()
			if bySource && p.firstStation != source {
				q.PopFront()
				q.PushBack(p)
				continue
			}
			q.PopFront()
			nh, ok := drawn[p.firstStation]
			if !ok {
				nh = InvalidStation
				if res != nil {
					nh = res.GetViaExcluding(p.firstStation, avoid, avoid2)
				}
				drawn[p.firstStation] = nh
			}
			moved += uint(p.count)
			sc.remove(p, uint(p.count))
			sc.Append(p, nh)
		}
		sc.dropBucketIfEmpty(key)
		if moved >= maxMove {
			break
		}
	}
	return moved
}

// AgeCargo advances the transit-period counter of every waiting packet,
// saturating at the maximum. Cargo keeps aging while it waits at a
// station.
func (sc *StationCargo) AgeCargo() {
	for _, key := range sc.keys {
		q := sc.buckets[key]
		for i := 0; i < q.Len(); i++ {
			p := q.At(i)
			if p.periods >= MaxTransitPeriods {
				continue
			}
			p.periods++
			sc.periodsSum += uint64(p.count)
		}
	}
}

// LoadSetReservedCount restores the reservation counter after a snapshot
// load. Must run after AfterLoad and PostVehiclesAfterLoad.
func (sc *StationCargo) LoadSetReservedCount(reserved uint) {
	sc.reserved = reserved
}

// InvalidateCache recomputes the aggregate caches from the buckets. The
// reservation counter is external state and is left alone.
func (sc *StationCargo) InvalidateCache() {
	sc.reset()
	for _, key := range sc.keys {
		q := sc.buckets[key]
		for i := 0; i < q.Len(); i++ {
			sc.add(q.At(i))
		}
	}
}

// CheckBucketInvariant verifies that every packet sits in the bucket
// matching its next hop. A violation is a programmer error.
func (sc *StationCargo) CheckBucketInvariant() {
	for _, key := range sc.keys {
		q := sc.buckets[key]
		for i := 0; i < q.Len(); i++ {
			if q.At(i).nextHop != key {
				panic(fmt.Sprintf("cargo: packet routed via %d stored under bucket %d", q.At(i).nextHop, key))
			}
		}
	}
}

// OnCleanPool drops every packet reference after a bulk pool cleanup.
func (sc *StationCargo) OnCleanPool() {
	sc.buckets = make(map[StationID]*packetQueue)
	sc.keys = nil
	sc.reset()
	sc.reserved = 0
}
