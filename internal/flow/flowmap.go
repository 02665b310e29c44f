package flow

import (
	"fmt"

	"github.com/talgya/freightworld/internal/cargo"
)

// FlowStatMap maps origin stations to their FlowStats. The stats live in
// a dense backing slice for cache-friendly iteration, with a side index
// for O(log n)-class lookup; erasing swaps with the last element to keep
// the slice packed. Positions and pointers into the map are therefore
// NOT stable across Erase (or anything that erases, such as DeleteFlows
// and InvalidateAll) and must be re-fetched.
type FlowStatMap struct {
	storage []FlowStat
	index   map[cargo.StationID]int
}

// NewMap creates an empty FlowStatMap.
func NewMap() *FlowStatMap {
	return &FlowStatMap{index: make(map[cargo.StationID]int)}
}

// Len returns the number of origins with flow tables.
func (fm *FlowStatMap) Len() int { return len(fm.storage) }

// Find returns the FlowStat for origin, or nil. The pointer is valid
// only until the next erase.
func (fm *FlowStatMap) Find(origin cargo.StationID) *FlowStat {
	i, ok := fm.index[origin]
	if !ok {
		return nil
	}
	return &fm.storage[i]
}

// Insert adds a FlowStat. Its origin must not be present yet.
func (fm *FlowStatMap) Insert(fs FlowStat) {
	if _, ok := fm.index[fs.origin]; ok {
		panic(fmt.Sprintf("flow: origin %d already has a flow table", fs.origin))
	}
	fm.index[fs.origin] = len(fm.storage)
	fm.storage = append(fm.storage, fs)
}

// Erase removes origin's FlowStat by swapping the last element into its
// slot. Returns whether anything was removed.
func (fm *FlowStatMap) Erase(origin cargo.StationID) bool {
	i, ok := fm.index[origin]
	if !ok {
		return false
	}
	last := len(fm.storage) - 1
	if i != last {
		fm.storage[i] = fm.storage[last]
		fm.index[fm.storage[i].origin] = i
	}
	fm.storage = fm.storage[:last]
	delete(fm.index, origin)
	return true
}

// Stats returns the backing slice for iteration. Read-mostly; any erase
// invalidates it.
func (fm *FlowStatMap) Stats() []FlowStat { return fm.storage }

// AddFlow records amount units of fresh flow from origin via the given
// next hop, creating or extending the origin's table.
func (fm *FlowStatMap) AddFlow(origin, via cargo.StationID, amount uint32) {
	if amount == 0 {
		return
	}
	fs := fm.Find(origin)
	if fs == nil {
		fm.Insert(New(origin, via, amount, false))
		return
	}
	fs.ChangeShare(via, int64(amount))
}

// AppendShare adds a share with an explicit restriction flag, creating
// the origin's table when absent. Used by the snapshot loader.
func (fm *FlowStatMap) AppendShare(origin, via cargo.StationID, amount uint32, restricted bool) {
	fs := fm.Find(origin)
	if fs == nil {
		fm.Insert(New(origin, via, amount, restricted))
		return
	}
	fs.AppendShare(via, amount, restricted)
}

// PassOnFlow records amount units of flow from origin observed passing
// through toward via. Mechanically identical to AddFlow; pass-through
// shares are created unrestricted.
func (fm *FlowStatMap) PassOnFlow(origin, via cargo.StationID, amount uint32) {
	fm.AddFlow(origin, via, amount)
}

// DeleteFlows removes via from every origin's shares, erasing tables
// that become empty. Returns the affected origins so callers can react
// (e.g. reroute waiting cargo).
func (fm *FlowStatMap) DeleteFlows(via cargo.StationID) []cargo.StationID {
	var affected []cargo.StationID
	for i := 0; i < len(fm.storage); {
		fs := &fm.storage[i]
		w := fs.GetShare(via)
		if w == 0 {
			i++
			continue
		}
		affected = append(affected, fs.origin)
		fs.ChangeShare(via, -int64(w))
		if fs.Empty() {
			fm.Erase(fs.origin)
			continue // the swapped-in element now sits at i
		}
		i++
	}
	return affected
}

// RestrictFlows marks every share through via as restricted without
// changing totals.
func (fm *FlowStatMap) RestrictFlows(via cargo.StationID) {
	for i := range fm.storage {
		fm.storage[i].RestrictShare(via)
	}
}

// ReleaseFlows lifts the restriction from every share through via.
func (fm *FlowStatMap) ReleaseFlows(via cargo.StationID) {
	for i := range fm.storage {
		fm.storage[i].ReleaseShare(via)
	}
}

// FinalizeLocalConsumption removes the share routed back to the station
// itself from every origin's table: locally consumed cargo must never
// win a routing draw. Tables left empty are erased.
func (fm *FlowStatMap) FinalizeLocalConsumption(self cargo.StationID) {
	for i := 0; i < len(fm.storage); {
		fs := &fm.storage[i]
		if w := fs.GetShare(self); w > 0 {
			fs.ChangeShare(self, -int64(w))
		}
		if fs.Empty() {
			fm.Erase(fs.origin)
			continue
		}
		i++
	}
}

// InvalidateAll runs one invalidation pass over every table and erases
// those whose counter has saturated. Returns the origins of the erased
// tables.
func (fm *FlowStatMap) InvalidateAll() []cargo.StationID {
	var deleted []cargo.StationID
	for i := 0; i < len(fm.storage); {
		if fm.storage[i].Invalidate() {
			deleted = append(deleted, fm.storage[i].origin)
			fm.Erase(fm.storage[i].origin)
			continue
		}
		i++
	}
	return deleted
}
