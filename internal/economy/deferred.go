package economy

import (
	"log/slog"

	"github.com/talgya/freightworld/internal/cargo"
)

// DeferredLedger tracks payments promised against individual packets but
// not yet settled. The packet pool consults it before destroying any
// packet with pending deferred payments, so money is never silently
// dropped with a packet. Implements cargo.DeferredSettler.
type DeferredLedger struct {
	pending map[cargo.PacketID]cargo.Money
	// Settled is the total paid out through settlement so far.
	Settled cargo.Money
}

// NewDeferredLedger creates an empty ledger.
func NewDeferredLedger() *DeferredLedger {
	return &DeferredLedger{pending: make(map[cargo.PacketID]cargo.Money)}
}

// Register records amount as deferred against p and flags the packet.
func (dl *DeferredLedger) Register(p *cargo.Packet, amount cargo.Money) {
	dl.pending[p.ID()] += amount
	p.RegisterDeferredPayment()
}

// SettleDeferred pays out everything pending against p. Called by the
// pool on every destruction path of a flagged packet.
func (dl *DeferredLedger) SettleDeferred(p *cargo.Packet) {
	amount, ok := dl.pending[p.ID()]
	if !ok {
		return
	}
	delete(dl.pending, p.ID())
	dl.Settled += amount
	slog.Debug("deferred payment settled", "packet", uint32(p.ID()), "amount", int64(amount))
}

// Outstanding returns the total deferred money not yet settled.
func (dl *DeferredLedger) Outstanding() cargo.Money {
	total := cargo.Money(0)
	for _, m := range dl.pending {
		total += m
	}
	return total
}
