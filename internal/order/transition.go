package order

import "time"

// legal lists every single-step status change the lifecycle allows
var legal = map[Status]map[Status]bool{
	StatusPlaced:         {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:      {StatusOutForDelivery: true, StatusCancelled: true},
	StatusOutForDelivery: {StatusDelivered: true},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

// CanTransition checks if from->to is a legal single step, ignoring roles
func CanTransition(from, to Status) bool {
	nexts := legal[from]
	return nexts != nil && nexts[to]
}

// NextStatus returns the single forward status the actor may move the order
// to. Cancellation is not a forward step; use CheckTransition for it.
func NextStatus(o Order, actor Actor) (Status, error) {
	var next Status
	switch o.Status {
	case StatusPlaced:
		next = StatusConfirmed
	case StatusConfirmed:
		next = StatusOutForDelivery
	case StatusOutForDelivery:
		next = StatusDelivered
	default:
		return "", Errorf(KindInvalidTransition, "nextStatus", o.ID, "order is %s and cannot advance", o.Status)
	}

	if next == StatusOutForDelivery && !o.Assigned() {
		// accept assigns the partner before dispatch
		if err := CheckAccept(o, actor); err != nil {
			return "", err
		}
		return next, nil
	}

	if err := CheckTransition(o, next, actor); err != nil {
		return "", err
	}
	return next, nil
}

// CheckTransition gates a requested status change by role and current state
func CheckTransition(o Order, to Status, actor Actor) error {
	reject := func(format string, args ...interface{}) error {
		return Errorf(KindInvalidTransition, "transition", o.ID, format, args...)
	}

	if !CanTransition(o.Status, to) {
		return reject("%s -> %s is not a legal transition", o.Status, to)
	}

	switch to {
	case StatusConfirmed, StatusCancelled:
		if actor.Role != RoleRestaurant {
			return reject("only a restaurant may move an order to %s", to)
		}
	case StatusOutForDelivery:
		if actor.Role != RoleDeliveryPartner {
			return reject("only a delivery partner may dispatch an order")
		}
		if !o.Assigned() {
			return reject("order must be accepted before dispatch")
		}
		if !o.AssignedTo(actor.ID) {
			return reject("order is assigned to another delivery partner")
		}
	case StatusDelivered:
		if actor.Role != RoleDeliveryPartner || !o.AssignedTo(actor.ID) {
			return reject("only the owning delivery partner may deliver an order")
		}
	}

	return nil
}

// CheckAccept gates a delivery partner claiming a confirmed order
func CheckAccept(o Order, actor Actor) error {
	if actor.Role != RoleDeliveryPartner {
		return Errorf(KindInvalidTransition, "accept", o.ID, "only a delivery partner may accept an order")
	}
	if o.Status != StatusConfirmed {
		return Errorf(KindInvalidTransition, "accept", o.ID, "order is %s, only CONFIRMED orders can be accepted", o.Status)
	}
	if o.Assigned() && !o.AssignedTo(actor.ID) {
		return Errorf(KindConflict, "accept", o.ID, "order already accepted by another delivery partner")
	}
	return nil
}

// Advance applies a legal single-step status change and stamps the milestone
// the first time it is reached. It never regresses and never clears a
// timestamp.
func Advance(o Order, to Status, now time.Time) (Order, error) {
	if !CanTransition(o.Status, to) {
		return o, Errorf(KindInvalidTransition, "advance", o.ID, "%s -> %s is not a legal transition", o.Status, to)
	}
	if to == StatusOutForDelivery && !o.Assigned() {
		return o, Errorf(KindInvalidTransition, "advance", o.ID, "order must be accepted before dispatch")
	}

	next := o.Clone()
	next.Status = to
	next.Timeline.mark(to, now)
	return next, nil
}
