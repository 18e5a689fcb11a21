// Package ordertest builds valid orders for tests across the module.
package ordertest

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"ordersync/internal/order"
)

// Base is the fixed clock used for fixture timelines
var Base = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

// Option customizes a fixture order
type Option func(*order.Order)

// WithPartner assigns the order to a delivery partner
func WithPartner(id string) Option {
	return func(o *order.Order) {
		o.DeliveryPartnerID = order.StringPtr(id)
	}
}

// WithCustomer sets the owning customer
func WithCustomer(id string) Option {
	return func(o *order.Order) {
		o.CustomerID = id
	}
}

// WithRestaurant sets the restaurant
func WithRestaurant(id string) Option {
	return func(o *order.Order) {
		o.RestaurantID = id
	}
}

// COD switches the order to cash on delivery with a pending payment
func COD() Option {
	return func(o *order.Order) {
		o.PaymentMethod = order.PaymentCOD
		o.PaymentStatus = order.PaymentPending
	}
}

// WithPayment sets the payment status
func WithPayment(p order.PaymentStatus) Option {
	return func(o *order.Order) {
		o.PaymentStatus = p
	}
}

// Read marks the order acknowledged by both roles
func Read() Option {
	return func(o *order.Order) {
		o.ReadByRestaurant = true
		o.ReadByDeliveryPartner = true
	}
}

// New returns a valid order at the given status with a consistent timeline
func New(id string, status order.Status, opts ...Option) order.Order {
	o := order.Order{
		ID:            id,
		Number:        "#" + id,
		CustomerID:    "C1",
		Status:        order.StatusPlaced,
		PaymentMethod: order.PaymentOnline,
		PaymentStatus: order.PaymentPaid,
		Items: []order.Item{
			{FoodID: "F1", Name: "Paneer Tikka", Quantity: 2, LineTotal: decimal.RequireFromString("398.00")},
		},
		OrderTotal:    decimal.RequireFromString("448.00"),
		ShippingCost:  decimal.RequireFromString("40.00"),
		PackingCharge: decimal.RequireFromString("10.00"),
		CreatedAt:     Base,
	}
	placed := Base
	o.Timeline.PlacedAt = &placed

	for _, opt := range opts {
		opt(&o)
	}

	path := []order.Status{order.StatusConfirmed, order.StatusOutForDelivery, order.StatusDelivered}
	if status == order.StatusCancelled {
		path = []order.Status{order.StatusCancelled}
	}
	for i, next := range path {
		if o.Status == status {
			break
		}
		if next == order.StatusOutForDelivery && !o.Assigned() {
			o.DeliveryPartnerID = order.StringPtr("D1")
		}
		advanced, err := order.Advance(o, next, Base.Add(time.Duration(i+1)*time.Minute))
		if err != nil {
			panic(err)
		}
		o = advanced
	}

	if o.PaymentMethod == order.PaymentCOD && o.Status == order.StatusDelivered {
		o.PaymentStatus = order.PaymentPaid
	}

	return o
}

// JSON encodes an order the way the persistence service would
func JSON(o order.Order) []byte {
	data, err := json.Marshal(o)
	if err != nil {
		panic(err)
	}
	return data
}
