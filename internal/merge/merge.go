// Package merge reconciles snapshot pages and pushed events into one
// de-duplicated, status-monotonic order sequence.
package merge

import (
	"ordersync/internal/order"
)

// Source identifies which producer delivered an order
type Source string

const (
	SourceSnapshot Source = "snapshot"
	SourcePush     Source = "push"
	SourceRefresh  Source = "refresh"
)

// Outcome describes what a merge did to the sequence
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeStale     Outcome = "stale"
)

// Fields merges an incoming version of an order into the one already held.
// The returned flag is true when the incoming status was older than the held
// one and was ignored.
func Fields(existing, incoming order.Order) (order.Order, bool) {
	merged := existing.Clone()
	stale := false

	if order.IsForward(existing.Status, incoming.Status) {
		merged.Status = incoming.Status
	} else {
		stale = true
	}

	// immutable after placement, so either source is authoritative
	merged.Items = incoming.Clone().Items
	merged.OrderTotal = incoming.OrderTotal
	merged.ShippingCost = incoming.ShippingCost
	merged.PackingCharge = incoming.PackingCharge

	if merged.Number == "" {
		merged.Number = incoming.Number
	}
	if merged.CustomerID == "" {
		merged.CustomerID = incoming.CustomerID
	}
	if merged.RestaurantID == "" {
		merged.RestaurantID = incoming.RestaurantID
	}
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = incoming.CreatedAt
	}
	if !merged.PaymentMethod.Valid() {
		merged.PaymentMethod = incoming.PaymentMethod
	}

	if incoming.PaymentStatus.Rank() > existing.PaymentStatus.Rank() {
		merged.PaymentStatus = incoming.PaymentStatus
	}

	if incoming.Assigned() {
		merged.DeliveryPartnerID = order.StringPtr(*incoming.DeliveryPartnerID)
	}

	merged.ReadByRestaurant = existing.ReadByRestaurant || incoming.ReadByRestaurant
	merged.ReadByDeliveryPartner = existing.ReadByDeliveryPartner || incoming.ReadByDeliveryPartner

	merged.Timeline = existing.Timeline.Union(incoming.Timeline)

	return merged, stale
}

// Sequence is an ordered list of orders with at most one entry per order id
type Sequence struct {
	orders []order.Order
	index  map[string]int
}

// NewSequence returns a sequence seeded with the given orders, keeping the
// first occurrence of any duplicated id.
func NewSequence(orders ...order.Order) *Sequence {
	s := &Sequence{}
	s.Reset(orders)
	return s
}

// Reset replaces the sequence outright
func (s *Sequence) Reset(orders []order.Order) {
	s.orders = make([]order.Order, 0, len(orders))
	s.index = make(map[string]int, len(orders))
	for _, o := range orders {
		if _, ok := s.index[o.ID]; ok {
			continue
		}
		s.index[o.ID] = len(s.orders)
		s.orders = append(s.orders, o.Clone())
	}
}

// Merge applies one incoming order and reports what happened
func (s *Sequence) Merge(incoming order.Order, src Source) Outcome {
	if s.index == nil {
		s.index = make(map[string]int)
	}

	pos, ok := s.index[incoming.ID]
	if !ok {
		s.insert(incoming.Clone(), src)
		return OutcomeInserted
	}

	existing := s.orders[pos]
	merged, stale := Fields(existing, incoming)
	s.orders[pos] = merged

	switch {
	case stale:
		return OutcomeStale
	case equal(existing, merged):
		return OutcomeUnchanged
	default:
		return OutcomeUpdated
	}
}

// insert prepends pushed orders so new alerts surface at the top and appends
// everything else in page order.
func (s *Sequence) insert(o order.Order, src Source) {
	if src != SourcePush {
		s.index[o.ID] = len(s.orders)
		s.orders = append(s.orders, o)
		return
	}

	s.orders = append([]order.Order{o}, s.orders...)
	for i, existing := range s.orders {
		s.index[existing.ID] = i
	}
}

// Get returns a copy of the order with the given id
func (s *Sequence) Get(id string) (order.Order, bool) {
	pos, ok := s.index[id]
	if !ok {
		return order.Order{}, false
	}
	return s.orders[pos].Clone(), true
}

// Contains reports whether the id is present
func (s *Sequence) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of orders held
func (s *Sequence) Len() int {
	return len(s.orders)
}

// Orders returns a copy of the sequence in display order
func (s *Sequence) Orders() []order.Order {
	out := make([]order.Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = o.Clone()
	}
	return out
}

// IDs returns the order ids in display order
func (s *Sequence) IDs() []string {
	ids := make([]string, len(s.orders))
	for i, o := range s.orders {
		ids[i] = o.ID
	}
	return ids
}

func equal(a, b order.Order) bool {
	if a.Status != b.Status || a.PaymentStatus != b.PaymentStatus ||
		a.ReadByRestaurant != b.ReadByRestaurant || a.ReadByDeliveryPartner != b.ReadByDeliveryPartner ||
		a.Assigned() != b.Assigned() || !a.OrderTotal.Equal(b.OrderTotal) || len(a.Items) != len(b.Items) {
		return false
	}
	if a.Assigned() && *a.DeliveryPartnerID != *b.DeliveryPartnerID {
		return false
	}
	for _, m := range []order.Status{order.StatusPlaced, order.StatusConfirmed, order.StatusOutForDelivery, order.StatusDelivered} {
		if (a.Timeline.At(m) == nil) != (b.Timeline.At(m) == nil) {
			return false
		}
	}
	return true
}
