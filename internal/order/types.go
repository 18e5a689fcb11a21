package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the fulfillment state of an order
type Status string

const (
	StatusPlaced         Status = "PLACED"
	StatusConfirmed      Status = "CONFIRMED"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

var statusRank = map[Status]int{
	StatusPlaced:         0,
	StatusConfirmed:      1,
	StatusOutForDelivery: 2,
	StatusDelivered:      3,
	StatusCancelled:      4,
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s in the fulfillment order. CANCELLED ranks
// last but is not reachable from every state; use IsForward for comparisons.
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether no further status change is possible
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

// IsForward reports whether moving from one status to another never regresses.
// Equal statuses count as forward so that duplicate events are accepted.
func IsForward(from, to Status) bool {
	if from == to {
		return true
	}
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return to.Rank() > from.Rank()
}

// PaymentMethod represents how the customer pays
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentOnline PaymentMethod = "ONLINE"
)

// Valid reports whether m is a known payment method
func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m == PaymentOnline
}

// PaymentStatus represents the settlement state of an order's payment
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

var paymentRank = map[PaymentStatus]int{
	PaymentPending: 0,
	PaymentFailed:  1,
	PaymentPaid:    2,
}

// Valid reports whether p is a known payment status
func (p PaymentStatus) Valid() bool {
	_, ok := paymentRank[p]
	return ok
}

// Rank orders payment statuses so that PAID is never overwritten
func (p PaymentStatus) Rank() int {
	if r, ok := paymentRank[p]; ok {
		return r
	}
	return -1
}

// Role identifies which kind of actor is looking at or mutating an order
type Role string

const (
	RoleCustomer        Role = "customer"
	RoleRestaurant      Role = "restaurant"
	RoleDeliveryPartner Role = "delivery_partner"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleRestaurant || r == RoleDeliveryPartner
}

// Actor is the identity of the session owner
type Actor struct {
	Role Role   `json:"role" yaml:"role"`
	ID   string `json:"actorId" yaml:"actorId"`
}

// Item represents one line of an order
type Item struct {
	FoodID    string          `json:"foodId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Timeline records when each milestone status was first reached
type Timeline struct {
	PlacedAt         *time.Time `json:"placedAt,omitempty"`
	ConfirmedAt      *time.Time `json:"confirmedAt,omitempty"`
	OutForDeliveryAt *time.Time `json:"outForDeliveryAt,omitempty"`
	DeliveredAt      *time.Time `json:"deliveredAt,omitempty"`
}

// milestone returns the slot for a status, or nil for CANCELLED
func (t *Timeline) milestone(s Status) **time.Time {
	switch s {
	case StatusPlaced:
		return &t.PlacedAt
	case StatusConfirmed:
		return &t.ConfirmedAt
	case StatusOutForDelivery:
		return &t.OutForDeliveryAt
	case StatusDelivered:
		return &t.DeliveredAt
	}
	return nil
}

// At returns the timestamp recorded for the milestone of status s
func (t Timeline) At(s Status) *time.Time {
	if slot := t.milestone(s); slot != nil {
		return *slot
	}
	return nil
}

// mark sets the milestone for s if it has not been set yet
func (t *Timeline) mark(s Status, at time.Time) {
	slot := t.milestone(s)
	if slot == nil || *slot != nil {
		return
	}
	ts := at
	*slot = &ts
}

// Union returns a timeline holding every milestone set in either t or other.
// Milestones already set in t win.
func (t Timeline) Union(other Timeline) Timeline {
	out := t
	for _, s := range milestones {
		if out.At(s) == nil && other.At(s) != nil {
			out.mark(s, *other.At(s))
		}
	}
	return out
}

var milestones = []Status{StatusPlaced, StatusConfirmed, StatusOutForDelivery, StatusDelivered}

// Order is the validated representation of an order document
type Order struct {
	ID                    string          `json:"orderId"`
	Number                string          `json:"orderNumber"`
	CustomerID            string          `json:"customerId,omitempty"`
	RestaurantID          string          `json:"restaurantId,omitempty"`
	Status                Status          `json:"status"`
	PaymentMethod         PaymentMethod   `json:"paymentMethod"`
	PaymentStatus         PaymentStatus   `json:"paymentStatus"`
	DeliveryPartnerID     *string         `json:"deliveryPartnerId"`
	ReadByRestaurant      bool            `json:"readByRestaurant"`
	ReadByDeliveryPartner bool            `json:"readByDeliveryPartner"`
	Items                 []Item          `json:"items"`
	Timeline              Timeline        `json:"timeline"`
	OrderTotal            decimal.Decimal `json:"orderTotal"`
	ShippingCost          decimal.Decimal `json:"shippingCost"`
	PackingCharge         decimal.Decimal `json:"packingCharge"`
	CreatedAt             time.Time       `json:"createdAt,omitempty"`
}

// AssignedTo reports whether the order is owned by the given delivery partner
func (o Order) AssignedTo(partnerID string) bool {
	return o.DeliveryPartnerID != nil && *o.DeliveryPartnerID == partnerID
}

// Assigned reports whether any delivery partner owns the order
func (o Order) Assigned() bool {
	return o.DeliveryPartnerID != nil && *o.DeliveryPartnerID != ""
}

// ReadBy returns the acknowledgement flag for a role. Customers have none.
func (o Order) ReadBy(role Role) bool {
	switch role {
	case RoleRestaurant:
		return o.ReadByRestaurant
	case RoleDeliveryPartner:
		return o.ReadByDeliveryPartner
	}
	return true
}

// NeedsPaymentReconciliation reports the partial state where a COD order was
// delivered but its payment status was never set to PAID.
func (o Order) NeedsPaymentReconciliation() bool {
	return o.PaymentMethod == PaymentCOD && o.Status == StatusDelivered && o.PaymentStatus != PaymentPaid
}

// Clone returns a deep copy so callers never share slices or pointers
func (o Order) Clone() Order {
	c := o
	if o.DeliveryPartnerID != nil {
		id := *o.DeliveryPartnerID
		c.DeliveryPartnerID = &id
	}
	if o.Items != nil {
		c.Items = make([]Item, len(o.Items))
		copy(c.Items, o.Items)
	}
	c.Timeline = Timeline{}.Union(o.Timeline)
	return c
}

// StringPtr is a small helper for optional identifiers
func StringPtr(s string) *string {
	return &s
}
