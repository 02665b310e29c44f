// Package economy provides cargo payment rates, delivery and transfer
// payment calculation, and the deferred-payment ledger.
package economy

import (
	"log/slog"

	"github.com/talgya/freightworld/internal/cargo"
)

// CargoClass holds the payment parameters of one cargo type.
type CargoClass struct {
	Type cargo.CargoType
	Name string
	// Rate is the base payment in money units per cargo unit per 16
	// tiles of paid distance.
	Rate cargo.Money
	// DecayPeriods is the number of transit periods after which the
	// payment has fallen to half the base rate. Zero disables decay.
	DecayPeriods uint16
}

// deliveryValue computes the payment for count units hauled dist tiles
// with the given transit age. The value is bounded below by a floor of
// one money unit per 8 cargo units (cargo is never hauled for free) and
// above by four times the undelayed value.
func deliveryValue(class CargoClass, count, dist uint, periods uint16) cargo.Money {
	base := class.Rate * cargo.Money(count) * cargo.Money(dist) / 16
	value := base
	if class.DecayPeriods > 0 && periods > 0 {
		// Linear decay to half value at DecayPeriods, flattening out
		// at a quarter of the base.
		age := uint(periods)
		half := uint(class.DecayPeriods)
		value = base - base*cargo.Money(age)/cargo.Money(2*half)
		if value < base/4 {
			value = base / 4
		}
	}
	floor := cargo.Money(count/8) + 1
	if value < floor {
		value = floor
	}
	ceiling := base * 4
	if ceiling > 0 && value > ceiling {
		value = ceiling
	}
	return value
}

// Payment accumulates the money movements of one vehicle's stop at one
// station. It implements cargo.Payment.
type Payment struct {
	class   CargoClass
	current cargo.TileXY

	// RouteEarnings is the revenue credited to the delivering carrier,
	// net of the feeder shares owed to earlier carriers.
	RouteEarnings cargo.Money
	// FeederCredits is the total transfer credit handed out this stop.
	FeederCredits cargo.Money
	// Delivered is the number of units finally delivered this stop.
	Delivered uint
}

// NewPayment opens a payment context for one stop at the given tile.
func NewPayment(class CargoClass, current cargo.TileXY) *Payment {
	return &Payment{class: class, current: current}
}

// PayFinalDelivery credits the full delivery value for count units of p,
// minus the feeder shares already promised to intermediate carriers.
func (pay *Payment) PayFinalDelivery(p *cargo.Packet, count uint) {
	dist := p.GetDistance(pay.current)
	value := deliveryValue(pay.class, count, dist, p.PeriodsInTransit())
	pay.RouteEarnings += value - p.FeederShare()
	pay.Delivered += count
	slog.Debug("cargo delivered",
		"cargo", pay.class.Name,
		"count", count,
		"distance", dist,
		"periods", p.PeriodsInTransit(),
		"value", int64(value))
}

// PayTransfer credits an intermediate haul: half the delivery value of
// the distance covered so far. The caller records the credit as the
// packet's feeder share, to be deducted from the final delivery.
func (pay *Payment) PayTransfer(p *cargo.Packet, count uint) cargo.Money {
	dist := p.GetDistance(pay.current)
	credit := deliveryValue(pay.class, count, dist, p.PeriodsInTransit()) / 2
	pay.FeederCredits += credit
	return credit
}
