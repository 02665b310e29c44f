package cargo

import "fmt"

// MoveAction categorizes what happens to a packet during the loading
// cycle at a stop. The categories partition the vehicle list: after
// staging, packets sit in the queue in Transfer | Deliver | Keep | Load
// order, and actionCounts holds the unit-count boundaries between the
// regions.
type MoveAction uint8

const (
	ActionTransfer MoveAction = iota // moved to the station without payment
	ActionDeliver                    // final delivery, triggers payment
	ActionKeep                       // stays in the vehicle at this stop
	ActionLoad                       // reserved, about to be pulled in
	NumMoveActions
)

// UnloadFlags carry the vehicle order's unloading modifiers.
type UnloadFlags uint8

const (
	// UnloadFlagUnload forces cargo off at this stop, delivered when
	// accepted and transferred otherwise.
	UnloadFlagUnload UnloadFlags = 1 << iota
	// UnloadFlagTransfer forces everything to be transferred.
	UnloadFlagTransfer
	// UnloadFlagNoUnload keeps everything aboard.
	UnloadFlagNoUnload
)

// VehicleCargo is the cargo ledger of one vehicle: an ordered queue of
// packets with cached totals, a cached feeder-share sum, and the per-stop
// action categorization.
type VehicleCargo struct {
	listCache
	pool         *Pool
	packets      packetQueue
	feederShare  Money
	actionCounts [NumMoveActions]uint
}

// NewVehicleCargo creates an empty vehicle ledger backed by pool.
func NewVehicleCargo(pool *Pool) *VehicleCargo {
	return &VehicleCargo{pool: pool}
}

// FeederShare returns the cached sum of the held packets' feeder shares.
func (vc *VehicleCargo) FeederShare() Money { return vc.feederShare }

// ActionCount returns the number of units categorized under a.
func (vc *VehicleCargo) ActionCount(a MoveAction) uint { return vc.actionCounts[a] }

// Packets returns the held packets in queue order, front first. For
// serialization walks; callers must not mutate through it.
func (vc *VehicleCargo) Packets() []*Packet {
	out := make([]*Packet, 0, vc.packets.Len())
	for i := 0; i < vc.packets.Len(); i++ {
		out = append(out, vc.packets.At(i))
	}
	return out
}

// Append inserts a packet under the given action and updates the caches.
// No merging is attempted here; merging happens during Shift and the
// loading operations. Loading appends only ActionLoad packets, which keep
// the staged region order because Load is the final region.
func (vc *VehicleCargo) Append(p *Packet, action MoveAction) {
	vc.feederShare += p.feederShare
	vc.add(p)
	vc.actionCounts[action] += uint(p.count)
	vc.packets.PushBack(p)
}

// frontAction returns the category of the unit at the front of the
// queue: the first region with a non-zero count, in staged order.
func (vc *VehicleCargo) frontAction() MoveAction {
	for a := ActionTransfer; a < NumMoveActions; a++ {
		if vc.actionCounts[a] > 0 {
			return a
		}
	}
	panic("cargo: front action of an empty vehicle list")
}

// AgeCargo advances the transit-period counter of every held packet,
// saturating at the maximum, and updates the transit-time cache
// incrementally.
func (vc *VehicleCargo) AgeCargo() {
	for i := 0; i < vc.packets.Len(); i++ {
		p := vc.packets.At(i)
		if p.periods >= MaxTransitPeriods {
			continue
		}
		p.periods++
		vc.periodsSum += uint64(p.count)
	}
}

// chooseAction decides a packet's fate at the current stop.
func chooseAction(p *Packet, accepted bool, current StationID, flags UnloadFlags) MoveAction {
	if flags&UnloadFlagTransfer != 0 {
		return ActionTransfer
	}
	if flags&UnloadFlagUnload != 0 {
		if accepted {
			return ActionDeliver
		}
		return ActionTransfer
	}
	if flags&UnloadFlagNoUnload != 0 {
		return ActionKeep
	}
	switch p.nextHop {
	case InvalidStation:
		// Undirected cargo is delivered wherever it is accepted.
		if accepted {
			return ActionDeliver
		}
		return ActionKeep
	case current:
		if accepted {
			return ActionDeliver
		}
		// Routed here but not consumed here: hand it to the station
		// so its flow table can pass it on.
		return ActionTransfer
	default:
		return ActionKeep
	}
}

// Stage runs the per-stop categorization pass over every held packet and
// reorders the queue into Transfer | Deliver | Keep region order. For
// transferred packets it draws the onward next hop from the station's
// flow tables, excluding both the current station and the vehicle's next
// stop (transferring cargo that would be loaded straight back is
// pointless). Returns whether any cargo is unloadable at this stop.
func (vc *VehicleCargo) Stage(accepted bool, current, next StationID, flags UnloadFlags, res NextHopResolver) bool {
	if vc.actionCounts[ActionLoad] > 0 {
		panic("cargo: staging a vehicle list with uncommitted reservations")
	}
	vc.actionCounts = [NumMoveActions]uint{}

	var transfer, deliver, keep []*Packet
	for vc.packets.Len() > 0 {
		p := vc.packets.PopFront()
		action := chooseAction(p, accepted, current, flags)
		vc.actionCounts[action] += uint(p.count)
		switch action {
		case ActionTransfer:
			if res != nil {
				p.nextHop = res.GetViaExcluding(p.firstStation, current, next)
			} else {
				p.nextHop = InvalidStation
			}
			transfer = append(transfer, p)
		case ActionDeliver:
			deliver = append(deliver, p)
		default:
			keep = append(keep, p)
		}
	}
	for _, p := range transfer {
		vc.packets.PushBack(p)
	}
	for _, p := range deliver {
		vc.packets.PushBack(p)
	}
	for _, p := range keep {
		vc.packets.PushBack(p)
	}
	return vc.actionCounts[ActionTransfer]+vc.actionCounts[ActionDeliver] > 0
}

// Unload moves up to maxMove units categorized Transfer or Deliver out to
// the destination station list. Transfers earn a feeder credit through
// payment and merge into compatible station packets; deliveries trigger
// the final payment and destroy the packet. Returns the amount actually
// moved.
func (vc *VehicleCargo) Unload(maxMove uint, dest *StationCargo, payment Payment, current TileXY) uint {
	moved := uint(0)
	for moved < maxMove && vc.packets.Len() > 0 {
		action := vc.frontAction()
		if action != ActionTransfer && action != ActionDeliver {
			break
		}
		p := vc.takeFront(action, maxMove-moved)
		count := uint(p.count)
		p.UpdateUnloadingTile(current)
		switch action {
		case ActionTransfer:
			if payment != nil {
				p.AddFeederShare(payment.PayTransfer(p, count))
			}
			dest.Append(p, p.nextHop)
		case ActionDeliver:
			if payment != nil {
				payment.PayFinalDelivery(p, count)
			}
			vc.pool.Delete(p)
		}
		moved += count
	}
	return moved
}

// takeFront removes up to max units of the given action from the front
// of the queue as one packet, splitting when the front packet is larger
// than the remaining budget or straddles the region boundary. Cache and
// action bookkeeping for the taken amount is done here.
func (vc *VehicleCargo) takeFront(action MoveAction, max uint) *Packet {
	p := vc.packets.Front()
	take := uint(p.count)
	if take > max {
		take = max
	}
	if take > vc.actionCounts[action] {
		take = vc.actionCounts[action]
	}
	if take < uint(p.count) {
		sp := p.Split(vc.pool, uint16(take))
		vc.remove(sp, take)
		vc.feederShare -= sp.feederShare
		vc.actionCounts[action] -= take
		return sp
	}
	vc.packets.PopFront()
	vc.remove(p, take)
	vc.feederShare -= p.feederShare
	vc.actionCounts[action] -= take
	return p
}

// takeBack mirrors takeFront at the back of the queue, for the Load
// region.
func (vc *VehicleCargo) takeBack(action MoveAction, max uint) *Packet {
	p := vc.packets.Back()
	take := uint(p.count)
	if take > max {
		take = max
	}
	if take > vc.actionCounts[action] {
		take = vc.actionCounts[action]
	}
	if take < uint(p.count) {
		sp := p.Split(vc.pool, uint16(take))
		vc.remove(sp, take)
		vc.feederShare -= sp.feederShare
		vc.actionCounts[action] -= take
		return sp
	}
	vc.packets.PopBack()
	vc.remove(p, take)
	vc.feederShare -= p.feederShare
	vc.actionCounts[action] -= take
	return p
}

// Return reverses reservations: it moves up to maxMove units of
// Load-categorized cargo from the back of the queue into the station's
// bucket for next (or the packet's own next hop when next is invalid)
// and releases the station's reservation accounting.
func (vc *VehicleCargo) Return(maxMove uint, dest *StationCargo, next StationID, current TileXY) uint {
	moved := uint(0)
	for moved < maxMove && vc.actionCounts[ActionLoad] > 0 {
		p := vc.takeBack(ActionLoad, maxMove-moved)
		count := uint(p.count)
		key := next
		if key == InvalidStation {
			key = p.nextHop
		}
		dest.Unreserve(p, key)
		moved += count
	}
	return moved
}

// Reassign moves amount units from one action category to another without
// touching the queue. Valid only across adjacent region boundaries, e.g.
// committing reservations (Load to Keep).
func (vc *VehicleCargo) Reassign(amount uint, from, to MoveAction) {
	if amount > vc.actionCounts[from] {
		panic(fmt.Sprintf("cargo: reassigning %d units, only %d categorized", amount, vc.actionCounts[from]))
	}
	vc.actionCounts[from] -= amount
	vc.actionCounts[to] += amount
}

// KeepAll recategorizes every held unit as Keep. Used when leaving a
// stop and when rebuilding state after a load.
func (vc *VehicleCargo) KeepAll() {
	total := vc.count
	vc.actionCounts = [NumMoveActions]uint{}
	vc.actionCounts[ActionKeep] = total
}

// Shift moves up to maxMove units from the front of the queue into
// another vehicle, preserving packet identity and merging where
// compatible. Used for consist rearrangement outside the loading cycle,
// when everything is categorized Keep.
func (vc *VehicleCargo) Shift(maxMove uint, dest *VehicleCargo) uint {
	moved := uint(0)
	for moved < maxMove && vc.packets.Len() > 0 {
		action := vc.frontAction()
		p := vc.takeFront(action, maxMove-moved)
		moved += uint(p.count)
		dest.appendOrMerge(p, action)
	}
	return moved
}

// appendOrMerge appends a packet, merging it into an existing compatible
// packet when the whole list is one Keep region (merging across region
// boundaries would corrupt the positional action counts).
func (vc *VehicleCargo) appendOrMerge(p *Packet, action MoveAction) {
	uniform := action == ActionKeep &&
		vc.actionCounts[ActionTransfer] == 0 &&
		vc.actionCounts[ActionDeliver] == 0 &&
		vc.actionCounts[ActionLoad] == 0
	if uniform {
		for i := 0; i < vc.packets.Len(); i++ {
			q := vc.packets.At(i)
			if uint(q.count)+uint(p.count) > MaxPacketCount || !Mergeable(q, p) {
				continue
			}
			vc.feederShare += p.feederShare
			vc.add(p)
			vc.actionCounts[action] += uint(p.count)
			q.Merge(vc.pool, p)
			return
		}
	}
	vc.Append(p, action)
}

// Truncate discards up to maxMove units front-to-back, destroying packets
// as their count reaches zero. Returns the amount discarded.
func (vc *VehicleCargo) Truncate(maxMove uint) uint {
	moved := uint(0)
	for moved < maxMove && vc.packets.Len() > 0 {
		action := vc.frontAction()
		p := vc.packets.Front()
		take := uint(p.count)
		if take > maxMove-moved {
			take = maxMove - moved
		}
		if take > vc.actionCounts[action] {
			take = vc.actionCounts[action]
		}
		vc.remove(p, take)
		vc.actionCounts[action] -= take
		if take == uint(p.count) {
			vc.packets.PopFront()
			vc.feederShare -= p.feederShare
			vc.pool.Delete(p)
		} else {
			p.Reduce(uint16(take))
		}
		moved += take
	}
	return moved
}

// Reroute recomputes the next hop of up to maxMove units whose current
// next hop is one of the two avoid stations. One weighted draw is made
// per distinct origin per call and reused for every matching packet of
// that origin. Returns the amount rerouted.
func (vc *VehicleCargo) Reroute(maxMove uint, avoid, avoid2 StationID, res NextHopResolver) uint {
	return vc.reroute(maxMove, avoid, avoid2, InvalidStation, false, res)
}

// RerouteFromSource behaves like Reroute but only touches packets that
// entered the network at source.
func (vc *VehicleCargo) RerouteFromSource(maxMove uint, source, avoid, avoid2 StationID, res NextHopResolver) uint {
	return vc.reroute(maxMove, avoid, avoid2, source, true, res)
}

func (vc *VehicleCargo) reroute(maxMove uint, avoid, avoid2, source StationID, bySource bool, res NextHopResolver) uint {
	drawn := make(map[StationID]StationID)
	moved := uint(0)
	for i := 0; i < vc.packets.Len() && moved < maxMove; i++ {
		p := vc.packets.At(i)
		if p.nextHop == InvalidStation || (p.nextHop != avoid && p.nextHop != avoid2) {
			continue
		}
		if bySource && p.firstStation != source {
			continue
		}
		nh, ok := drawn[p.firstStation]
		if !ok {
			nh = InvalidStation
			if res != nil {
				nh = res.GetViaExcluding(p.firstStation, avoid, avoid2)
			}
			drawn[p.firstStation] = nh
		}
		p.nextHop = nh
		moved += uint(p.count)
	}
	return moved
}

// InvalidateCache recomputes the aggregate caches from the packets. The
// action categorization cannot be reconstructed from packet state, so
// everything is recategorized as Keep; callers in the load-repair path
// rely on that.
func (vc *VehicleCargo) InvalidateCache() {
	vc.reset()
	vc.feederShare = 0
	for i := 0; i < vc.packets.Len(); i++ {
		p := vc.packets.At(i)
		vc.add(p)
		vc.feederShare += p.feederShare
	}
	vc.KeepAll()
}

// OnCleanPool drops every packet reference after a bulk pool cleanup.
// The packets themselves are gone already.
func (vc *VehicleCargo) OnCleanPool() {
	vc.packets.Clear()
	vc.reset()
	vc.feederShare = 0
	vc.actionCounts = [NumMoveActions]uint{}
}

// CheckConsistency verifies the action-count partition invariant. A
// violation is a programmer error, not a recoverable condition.
func (vc *VehicleCargo) CheckConsistency() {
	sum := uint(0)
	for _, c := range vc.actionCounts {
		sum += c
	}
	if sum != vc.count {
		panic(fmt.Sprintf("cargo: action counts sum to %d, list holds %d", sum, vc.count))
	}
}
