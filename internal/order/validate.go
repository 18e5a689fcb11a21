package order

import (
	"encoding/json"
	"fmt"
)

// Parse decodes an order document and rejects malformed payloads
func Parse(data []byte) (Order, error) {
	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return Order{}, Wrap(KindMalformed, "parse", "", fmt.Errorf("failed to decode order: %w", err))
	}

	if err := o.Validate(); err != nil {
		return Order{}, err
	}

	return o, nil
}

// Validate ensures the order satisfies the data model invariants
func (o Order) Validate() error {
	bad := func(format string, args ...interface{}) error {
		return Errorf(KindMalformed, "validate", o.ID, format, args...)
	}

	if o.ID == "" {
		return bad("orderId is required")
	}
	if o.Number == "" {
		return bad("orderNumber is required")
	}
	if !o.Status.Valid() {
		return bad("unknown status %q", o.Status)
	}
	if !o.PaymentMethod.Valid() {
		return bad("unknown paymentMethod %q", o.PaymentMethod)
	}
	if !o.PaymentStatus.Valid() {
		return bad("unknown paymentStatus %q", o.PaymentStatus)
	}
	if o.DeliveryPartnerID != nil && *o.DeliveryPartnerID == "" {
		return bad("deliveryPartnerId must be null or non-empty")
	}

	for i, item := range o.Items {
		if item.Quantity <= 0 {
			return bad("item %d: quantity must be positive", i)
		}
		if item.LineTotal.IsNegative() {
			return bad("item %d: lineTotal cannot be negative", i)
		}
	}

	if o.OrderTotal.IsNegative() || o.ShippingCost.IsNegative() || o.PackingCharge.IsNegative() {
		return bad("monetary fields cannot be negative")
	}

	return o.validateTimeline()
}

// validateTimeline checks that a milestone is set iff the status reached it.
// A cancelled order may only carry the milestones a cancellation can follow.
func (o Order) validateTimeline() error {
	reached := func(m Status) bool {
		if o.Status == StatusCancelled {
			return m == StatusPlaced
		}
		return m.Rank() <= o.Status.Rank()
	}

	for _, m := range milestones {
		set := o.Timeline.At(m) != nil
		switch {
		case reached(m) && !set:
			return Errorf(KindMalformed, "validate", o.ID, "timeline milestone for %s missing at status %s", m, o.Status)
		case !reached(m) && set && !(o.Status == StatusCancelled && m == StatusConfirmed):
			return Errorf(KindMalformed, "validate", o.ID, "timeline milestone for %s set before status %s was reached", m, m)
		}
	}

	return nil
}
