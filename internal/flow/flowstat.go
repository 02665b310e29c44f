// Package flow provides the per-origin probabilistic routing tables that
// map a station's accumulated outgoing flow shares to next-hop stations.
// Unrouted cargo picks its next hop with a weighted random draw over the
// shares.
package flow

import (
	"fmt"
	"sort"

	"github.com/iti/rngstream"

	"github.com/talgya/freightworld/internal/cargo"
)

// invalidMask is the saturation value of the invalidation counter kept in
// the low five flag bits.
const invalidMask = 0x1F

// share is one cumulative entry of a FlowStat. Entries are strictly
// increasing in cum; the width cum[i]-cum[i-1] is the via station's
// weight in the draw.
type share struct {
	cum uint32
	via cargo.StationID
}

// FlowStat is the routing table for cargo from one origin station: a
// small sorted sequence of cumulative shares to next-hop stations.
// Entries up to the unrestricted boundary may be chosen even when
// restricted routes are being avoided; restricted entries sit after the
// boundary.
type FlowStat struct {
	shares       []share
	unrestricted uint32
	origin       cargo.StationID
	flags        uint8
}

// New creates a FlowStat for origin with one initial share.
func New(origin, via cargo.StationID, amount uint32, restricted bool) FlowStat {
	fs := FlowStat{origin: origin}
	fs.AppendShare(via, amount, restricted)
	return fs
}

// Origin returns the station this table routes cargo from.
func (fs *FlowStat) Origin() cargo.StationID { return fs.origin }

// Empty reports whether no shares remain.
func (fs *FlowStat) Empty() bool { return len(fs.shares) == 0 }

// NumShares returns the number of via entries.
func (fs *FlowStat) NumShares() int { return len(fs.shares) }

// Total returns the cumulative value of all shares.
func (fs *FlowStat) Total() uint32 {
	if len(fs.shares) == 0 {
		return 0
	}
	return fs.shares[len(fs.shares)-1].cum
}

// Unrestricted returns the cumulative boundary below which entries are
// selectable when restricted routes are avoided.
func (fs *FlowStat) Unrestricted() uint32 { return fs.unrestricted }

// boundary returns the index of the first restricted entry.
func (fs *FlowStat) boundary() int {
	u := fs.unrestricted
	return sort.Search(len(fs.shares), func(i int) bool { return fs.shares[i].cum > u })
}

func (fs *FlowStat) indexOf(via cargo.StationID) int {
	for i := range fs.shares {
		if fs.shares[i].via == via {
			return i
		}
	}
	return -1
}

// HasVia reports whether the table carries a share for via.
func (fs *FlowStat) HasVia(via cargo.StationID) bool { return fs.indexOf(via) >= 0 }

// GetShare returns the weight of via's share, zero when absent.
func (fs *FlowStat) GetShare(via cargo.StationID) uint32 {
	i := fs.indexOf(via)
	if i < 0 {
		return 0
	}
	return fs.width(i)
}

func (fs *FlowStat) width(i int) uint32 {
	if i == 0 {
		return fs.shares[0].cum
	}
	return fs.shares[i].cum - fs.shares[i-1].cum
}

// ShareView is one share in serializable form.
type ShareView struct {
	Via        cargo.StationID
	Amount     uint32
	Restricted bool
}

// Shares returns the table's shares in storage order, with cumulative
// values unrolled back into per-via weights.
func (fs *FlowStat) Shares() []ShareView {
	b := fs.boundary()
	out := make([]ShareView, len(fs.shares))
	for i := range fs.shares {
		out[i] = ShareView{
			Via:        fs.shares[i].via,
			Amount:     fs.width(i),
			Restricted: i >= b,
		}
	}
	return out
}

// touch marks the table as carrying fresh data, clearing the
// invalidation counter.
func (fs *FlowStat) touch() { fs.flags &^= invalidMask }

// AppendShare adds a share of the given weight for via. The via must not
// already be present; duplicate detection is the caller's responsibility
// and a violation is fatal. Unrestricted shares are inserted at the
// unrestricted boundary, restricted shares at the end.
func (fs *FlowStat) AppendShare(via cargo.StationID, amount uint32, restricted bool) {
	if amount == 0 {
		panic("flow: appending an empty share")
	}
	if fs.indexOf(via) >= 0 {
		panic(fmt.Sprintf("flow: station %d already has a share at origin %d", via, fs.origin))
	}
	if restricted {
		fs.shares = append(fs.shares, share{cum: fs.Total() + amount, via: via})
	} else {
		i := fs.boundary()
		fs.shares = append(fs.shares, share{})
		copy(fs.shares[i+1:], fs.shares[i:])
		fs.shares[i] = share{cum: fs.unrestricted + amount, via: via}
		for j := i + 1; j < len(fs.shares); j++ {
			fs.shares[j].cum += amount
		}
		fs.unrestricted += amount
	}
	fs.touch()
}

// eraseAt removes entry i, shifting later cumulative values down by its
// width.
func (fs *FlowStat) eraseAt(i int) {
	w := fs.width(i)
	if i < fs.boundary() {
		fs.unrestricted -= w
	}
	for j := i + 1; j < len(fs.shares); j++ {
		fs.shares[j].cum -= w
	}
	fs.shares = append(fs.shares[:i], fs.shares[i+1:]...)
}

// ChangeShare adjusts via's weight by delta. A share driven to zero or
// below is erased. A missing via with positive delta is appended
// unrestricted. Returns false when the via was absent and delta was not
// positive.
func (fs *FlowStat) ChangeShare(via cargo.StationID, delta int64) bool {
	i := fs.indexOf(via)
	if i < 0 {
		if delta <= 0 {
			return false
		}
		fs.AppendShare(via, uint32(delta), false)
		return true
	}
	w := int64(fs.width(i))
	if w+delta <= 0 {
		fs.eraseAt(i)
		fs.touch()
		return true
	}
	restrictedEntry := i >= fs.boundary()
	for j := i; j < len(fs.shares); j++ {
		fs.shares[j].cum = uint32(int64(fs.shares[j].cum) + delta)
	}
	if !restrictedEntry {
		fs.unrestricted = uint32(int64(fs.unrestricted) + delta)
	}
	fs.touch()
	return true
}

// RestrictShare moves via's share behind the unrestricted boundary so it
// is skipped by restricted draws. Totals are unchanged.
func (fs *FlowStat) RestrictShare(via cargo.StationID) {
	i := fs.indexOf(via)
	if i < 0 || i >= fs.boundary() {
		return
	}
	w := fs.width(i)
	fs.eraseAt(i)
	fs.shares = append(fs.shares, share{cum: fs.Total() + w, via: via})
	fs.touch()
}

// ReleaseShare moves via's share back into the unrestricted range.
func (fs *FlowStat) ReleaseShare(via cargo.StationID) {
	i := fs.indexOf(via)
	if i < 0 || i < fs.boundary() {
		return
	}
	w := fs.width(i)
	fs.eraseAt(i)
	fs.AppendShare(via, w, false)
}

// draw maps a cumulative sample to its entry with an upper-bound search.
func (fs *FlowStat) draw(sample uint32) cargo.StationID {
	i := sort.Search(len(fs.shares), func(i int) bool { return fs.shares[i].cum > sample })
	return fs.shares[i].via
}

func sample(rng *rngstream.RngStream, limit uint32) uint32 {
	s := uint32(rng.RandU01() * float64(limit))
	if s >= limit {
		s = limit - 1
	}
	return s
}

// GetVia draws a next hop over the unrestricted range, weighted by share
// width. Returns InvalidStation when no unrestricted share exists; that
// is a normal "no usable route" outcome, not an error.
func (fs *FlowStat) GetVia(rng *rngstream.RngStream) cargo.StationID {
	if fs.unrestricted == 0 {
		return cargo.InvalidStation
	}
	return fs.draw(sample(rng, fs.unrestricted))
}

// GetViaWithRestricted draws over the full range, including restricted
// shares, and reports whether the draw landed in the restricted region.
func (fs *FlowStat) GetViaWithRestricted(rng *rngstream.RngStream) (cargo.StationID, bool) {
	total := fs.Total()
	if total == 0 {
		return cargo.InvalidStation, false
	}
	s := sample(rng, total)
	return fs.draw(s), s >= fs.unrestricted
}

// GetViaExcluding draws a next hop over the unrestricted range with the
// two given stations excluded. The draw is taken over the reduced
// effective range so excluding an entry introduces no bias toward its
// neighbours. Returns InvalidStation when nothing selectable remains.
func (fs *FlowStat) GetViaExcluding(rng *rngstream.RngStream, avoid, avoid2 cargo.StationID) cargo.StationID {
	b := fs.boundary()
	effective := uint32(0)
	for i := 0; i < b; i++ {
		if via := fs.shares[i].via; via != avoid && via != avoid2 {
			effective += fs.width(i)
		}
	}
	if effective == 0 {
		return cargo.InvalidStation
	}
	s := sample(rng, effective)
	acc := uint32(0)
	for i := 0; i < b; i++ {
		via := fs.shares[i].via
		if via == avoid || via == avoid2 {
			continue
		}
		acc += fs.width(i)
		if s < acc {
			return via
		}
	}
	panic("flow: exclusion draw exhausted the effective range")
}

// Invalidate counts one pass with no fresh data. It returns true once
// the counter saturates, meaning the table may be deleted.
func (fs *FlowStat) Invalidate() bool {
	if fs.flags&invalidMask < invalidMask {
		fs.flags++
	}
	return fs.flags&invalidMask == invalidMask
}

// IsInvalid reports whether the invalidation counter has saturated.
func (fs *FlowStat) IsInvalid() bool { return fs.flags&invalidMask == invalidMask }
