package push

import (
	"context"

	"ordersync/internal/order"
)

// Handler receives callbacks from a Source while it streams
type Handler struct {
	// OnSubscribed runs once the subscription is live
	OnSubscribed func()
	// OnMessage runs for every raw payload, in arrival order
	OnMessage func(data []byte)
}

func (h Handler) subscribed() {
	if h.OnSubscribed != nil {
		h.OnSubscribed()
	}
}

func (h Handler) message(data []byte) {
	if h.OnMessage != nil {
		h.OnMessage(data)
	}
}

// Source is one push transport. Stream subscribes on behalf of the actor and
// blocks delivering payloads until the connection fails or ctx is done. It
// returns nil only when ctx is done.
type Source interface {
	Name() string
	Stream(ctx context.Context, actor order.Actor, h Handler) error
}
