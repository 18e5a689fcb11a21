// Package view projects orders into per-role list entries.
package view

import (
	"github.com/shopspring/decimal"

	"ordersync/internal/order"
)

// LabelAssigned is shown to restaurants for confirmed orders a delivery
// partner has accepted. It is a view concern and never stored.
const LabelAssigned = "ASSIGNED"

// ViewModel is one entry of an actor's order list
type ViewModel struct {
	OrderID           string              `json:"orderId"`
	OrderNumber       string              `json:"orderNumber"`
	Label             string              `json:"label"`
	Status            order.Status        `json:"status"`
	PaymentMethod     order.PaymentMethod `json:"paymentMethod"`
	PaymentStatus     order.PaymentStatus `json:"paymentStatus"`
	Total             decimal.Decimal     `json:"total"`
	ItemCount         int                 `json:"itemCount"`
	Unread            bool                `json:"unread"`
	Claimable         bool                `json:"claimable,omitempty"`
	NeedsPaymentRetry bool                `json:"needsPaymentRetry,omitempty"`
}

// Project returns the view of an order for an actor on a tab, or false when
// the actor must not see it there.
//
// A restaurant acts on orders at or before dispatch, but it still sees every
// tab, including DELIVERED and CANCELLED, as a read-only history of its own
// orders. Only the ASSIGNED label is specific to the restaurant.
func Project(o order.Order, actor order.Actor, tab order.Tab) (ViewModel, bool) {
	if o.Status != tab.Status() {
		return ViewModel{}, false
	}

	vm := ViewModel{
		OrderID:           o.ID,
		OrderNumber:       o.Number,
		Label:             string(o.Status),
		Status:            o.Status,
		PaymentMethod:     o.PaymentMethod,
		PaymentStatus:     o.PaymentStatus,
		Total:             o.OrderTotal,
		Unread:            !o.ReadBy(actor.Role),
		NeedsPaymentRetry: o.NeedsPaymentReconciliation(),
	}
	for _, item := range o.Items {
		vm.ItemCount += item.Quantity
	}

	switch actor.Role {
	case order.RoleCustomer:
		if o.CustomerID != actor.ID {
			return ViewModel{}, false
		}
	case order.RoleRestaurant:
		if o.RestaurantID != "" && o.RestaurantID != actor.ID {
			return ViewModel{}, false
		}
		if o.Status == order.StatusConfirmed && o.Assigned() {
			vm.Label = LabelAssigned
		}
	case order.RoleDeliveryPartner:
		switch {
		case o.AssignedTo(actor.ID):
		case o.Status == order.StatusConfirmed && !o.Assigned():
			vm.Claimable = true
		default:
			// claimed by someone else, or missing the ownership a
			// post-acceptance tab requires
			return ViewModel{}, false
		}
	default:
		return ViewModel{}, false
	}

	return vm, true
}

// ProjectAll projects a sequence, keeping its order
func ProjectAll(orders []order.Order, actor order.Actor, tab order.Tab) []ViewModel {
	out := make([]ViewModel, 0, len(orders))
	for _, o := range orders {
		if vm, ok := Project(o, actor, tab); ok {
			out = append(out, vm)
		}
	}
	return out
}

// Relevant reports whether an actor could see the order on any tab
func Relevant(o order.Order, actor order.Actor) bool {
	_, ok := Project(o, actor, order.TabFor(o.Status))
	return ok
}
