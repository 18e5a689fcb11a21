// Package push receives order notifications and turns them into typed events.
package push

import (
	"encoding/json"
	"fmt"

	"ordersync/internal/order"
)

// EventType names a push notification
type EventType string

const (
	// EventNewOrder announces a freshly placed order, or one that became
	// claimable for delivery partners.
	EventNewOrder EventType = "new-order"
	// EventOrderAssigned announces a new assignment relevant to a delivery
	// partner. Restaurants receive it too when a partner accepts their order.
	EventOrderAssigned EventType = "order-assigned"
	// EventOrderUpdated carries any other status change
	EventOrderUpdated EventType = "order-updated"

	// Channel state, never sent by the server
	EventDisconnected EventType = "disconnected"
	EventReconnected  EventType = "reconnected"
)

// Envelope is the wire form of a notification
type Envelope struct {
	Event   EventType       `json:"event"`
	Role    order.Role      `json:"role"`
	ActorID string          `json:"actorId,omitempty"`
	Order   json.RawMessage `json:"order,omitempty"`
}

// Event is a decoded notification or a channel state change
type Event struct {
	Type    EventType
	Role    order.Role
	ActorID string
	Order   order.Order
	// Err is set on EventDisconnected
	Err error
}

// Carries reports whether the event holds an order
func (e Event) Carries() bool {
	switch e.Type {
	case EventNewOrder, EventOrderAssigned, EventOrderUpdated:
		return true
	}
	return false
}

// For reports whether the event is addressed to the actor. An envelope
// without an actor id is a broadcast to the role.
func (e Event) For(actor order.Actor) bool {
	if e.Role != actor.Role {
		return false
	}
	return e.ActorID == "" || e.ActorID == actor.ID
}

// DecodeEvent parses and validates a wire notification
func DecodeEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, order.Wrap(order.KindMalformed, "push", "", fmt.Errorf("failed to decode envelope: %w", err))
	}

	ev := Event{Type: env.Event, Role: env.Role, ActorID: env.ActorID}
	if !ev.Carries() {
		return Event{}, order.Errorf(order.KindMalformed, "push", "", "unknown event %q", env.Event)
	}
	if !env.Role.Valid() {
		return Event{}, order.Errorf(order.KindMalformed, "push", "", "unknown role %q", env.Role)
	}
	if len(env.Order) == 0 {
		return Event{}, order.Errorf(order.KindMalformed, "push", "", "%s without order", env.Event)
	}

	o, err := order.Parse(env.Order)
	if err != nil {
		return Event{}, err
	}
	ev.Order = o
	return ev, nil
}

// Encode builds the wire form of an order event
func Encode(typ EventType, actor order.Actor, o order.Order) ([]byte, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	return json.Marshal(Envelope{
		Event:   typ,
		Role:    actor.Role,
		ActorID: actor.ID,
		Order:   raw,
	})
}
