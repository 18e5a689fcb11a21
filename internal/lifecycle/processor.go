// Package lifecycle executes gated order transitions against the persistence
// service.
package lifecycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"ordersync/internal/api"
	"ordersync/internal/merge"
	"ordersync/internal/order"
	"ordersync/internal/utils"
)

// Persistence is the request/response service that owns canonical orders
type Persistence interface {
	OrdersByStatus(ctx context.Context, q api.OrdersQuery) (*api.Page, error)
	OrderByID(ctx context.Context, orderID string) (order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status order.Status) error
	UpdatePaymentStatus(ctx context.Context, orderID string, status order.PaymentStatus) error
	AcceptOrder(ctx context.Context, partnerID, orderID string) error
	MarkRead(ctx context.Context, orderID string, role order.Role) error
}

// Confirmer asks the delivery partner whether cash was collected
type Confirmer interface {
	ConfirmCashCollected(ctx context.Context, o order.Order) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, o order.Order) (bool, error)

// ConfirmCashCollected calls f
func (f ConfirmFunc) ConfirmCashCollected(ctx context.Context, o order.Order) (bool, error) {
	return f(ctx, o)
}

// Result represents the outcome of one transition
type Result struct {
	OrderID string
	From    order.Status
	To      order.Status
	// Order is the canonical version after the transition
	Order order.Order
	// Declined is set when the actor refused the cash confirmation
	Declined  bool
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

func (r *Result) finish() *Result {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	return r
}

// Processor performs one actor's order mutations
type Processor struct {
	api       Persistence
	actor     order.Actor
	confirmer Confirmer
	logger    *utils.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewProcessor creates a new processor. A nil confirmer declines every COD
// delivery.
func NewProcessor(api Persistence, actor order.Actor, confirmer Confirmer, logger *utils.Logger) *Processor {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Processor{
		api:       api,
		actor:     actor,
		confirmer: confirmer,
		logger:    logger.With("lifecycle", map[string]interface{}{"actor": actor.ID}),
		now:       time.Now,
		pending:   make(map[string]struct{}),
	}
}

// Actor returns the actor the processor acts for
func (p *Processor) Actor() order.Actor {
	return p.actor
}

// Confirm moves a placed order to CONFIRMED
func (p *Processor) Confirm(ctx context.Context, o order.Order) (*Result, error) {
	return p.transition(ctx, "confirm", o, order.StatusConfirmed)
}

// Cancel moves a placed or confirmed order to CANCELLED
func (p *Processor) Cancel(ctx context.Context, o order.Order) (*Result, error) {
	return p.transition(ctx, "cancel", o, order.StatusCancelled)
}

func (p *Processor) transition(ctx context.Context, op string, o order.Order, to order.Status) (*Result, error) {
	result := &Result{OrderID: o.ID, From: o.Status, To: to, StartTime: time.Now()}

	if err := order.CheckTransition(o, to, p.actor); err != nil {
		return result.finish(), err
	}

	if err := p.api.UpdateStatus(ctx, o.ID, to); err != nil {
		return result.finish(), err
	}

	local, _ := order.Advance(o, to, p.now())
	result.Order = p.canonical(ctx, local)

	p.logger.Info("order transitioned", map[string]interface{}{
		"op":    op,
		"order": o.ID,
		"from":  o.Status,
		"to":    to,
	})
	return result.finish(), nil
}

// Accept claims a confirmed order for the partner and dispatches it. If the
// claim landed earlier but dispatch failed, calling Accept again only
// dispatches.
func (p *Processor) Accept(ctx context.Context, o order.Order) (*Result, error) {
	result := &Result{OrderID: o.ID, From: o.Status, To: order.StatusOutForDelivery, StartTime: time.Now()}

	if err := order.CheckAccept(o, p.actor); err != nil {
		return result.finish(), err
	}

	if !o.AssignedTo(p.actor.ID) {
		if err := p.api.AcceptOrder(ctx, p.actor.ID, o.ID); err != nil {
			if order.IsKind(err, order.KindConflict) {
				p.logger.Info("lost acceptance race", map[string]interface{}{"order": o.ID})
			}
			return result.finish(), err
		}
		o = o.Clone()
		o.DeliveryPartnerID = order.StringPtr(p.actor.ID)
	}

	if err := p.api.UpdateStatus(ctx, o.ID, order.StatusOutForDelivery); err != nil {
		// the claim stands; hand back the assigned order so the caller can retry dispatch
		result.Order = o
		return result.finish(), err
	}

	local, _ := order.Advance(o, order.StatusOutForDelivery, p.now())
	result.Order = p.canonical(ctx, local)

	p.logger.Info("order accepted", map[string]interface{}{"order": o.ID})
	return result.finish(), nil
}

// Deliver completes an order. Cash-on-delivery orders need the collection
// confirmed first; a decline leaves the order untouched and issues no
// request. The status and payment updates form one unit: if payment fails
// after the status landed, the order is remembered for RetryReconciliation
// and a PartialReconciliation error is returned.
func (p *Processor) Deliver(ctx context.Context, o order.Order) (*Result, error) {
	result := &Result{OrderID: o.ID, From: o.Status, To: order.StatusDelivered, StartTime: time.Now()}

	if err := order.CheckTransition(o, order.StatusDelivered, p.actor); err != nil {
		return result.finish(), err
	}

	cod := o.PaymentMethod == order.PaymentCOD
	if cod {
		ok, err := p.confirm(ctx, o)
		if err != nil {
			return result.finish(), err
		}
		if !ok {
			result.Declined = true
			result.To = o.Status
			result.Order = o
			p.logger.Info("cash collection declined", map[string]interface{}{"order": o.ID})
			return result.finish(), nil
		}
	}

	if err := p.api.UpdateStatus(ctx, o.ID, order.StatusDelivered); err != nil {
		return result.finish(), err
	}

	local, _ := order.Advance(o, order.StatusDelivered, p.now())

	if cod {
		if err := p.api.UpdatePaymentStatus(ctx, o.ID, order.PaymentPaid); err != nil {
			p.markPending(o.ID)
			result.Order = p.canonical(ctx, local)
			p.logger.Warn("payment update failed after delivery", map[string]interface{}{
				"order": o.ID,
				"error": err.Error(),
			})
			return result.finish(), order.Wrap(order.KindPartialReconciliation, "deliver", o.ID, err)
		}
		local.PaymentStatus = order.PaymentPaid
	}

	result.Order = p.canonical(ctx, local)
	p.logger.Info("order delivered", map[string]interface{}{"order": o.ID, "cod": cod})
	return result.finish(), nil
}

func (p *Processor) confirm(ctx context.Context, o order.Order) (bool, error) {
	if p.confirmer == nil {
		return false, nil
	}
	return p.confirmer.ConfirmCashCollected(ctx, o)
}

// RetryReconciliation re-issues the payment update of a delivered COD order
// left half-finished.
func (p *Processor) RetryReconciliation(ctx context.Context, orderID string) (*Result, error) {
	result := &Result{OrderID: orderID, StartTime: time.Now()}

	o, err := p.api.OrderByID(ctx, orderID)
	if err != nil {
		return result.finish(), err
	}
	result.From, result.To, result.Order = o.Status, o.Status, o

	if !o.NeedsPaymentReconciliation() {
		p.clearPending(orderID)
		return result.finish(), nil
	}

	if err := p.api.UpdatePaymentStatus(ctx, orderID, order.PaymentPaid); err != nil {
		p.markPending(orderID)
		return result.finish(), order.Wrap(order.KindPartialReconciliation, "retryReconciliation", orderID, err)
	}

	p.clearPending(orderID)
	local := o.Clone()
	local.PaymentStatus = order.PaymentPaid
	result.Order = p.canonical(ctx, local)

	p.logger.Info("payment reconciled", map[string]interface{}{"order": orderID})
	return result.finish(), nil
}

// MarkRead acknowledges an order for the actor's role. It reports whether a
// request was issued; orders already read are left alone.
func (p *Processor) MarkRead(ctx context.Context, o order.Order) (order.Order, bool, error) {
	if o.ReadBy(p.actor.Role) {
		return o, false, nil
	}

	if err := p.api.MarkRead(ctx, o.ID, p.actor.Role); err != nil {
		return o, false, err
	}

	read := o.Clone()
	switch p.actor.Role {
	case order.RoleRestaurant:
		read.ReadByRestaurant = true
	case order.RoleDeliveryPartner:
		read.ReadByDeliveryPartner = true
	}
	return read, true, nil
}

// Pending lists orders awaiting a payment retry
func (p *Processor) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Processor) markPending(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[id] = struct{}{}
}

func (p *Processor) clearPending(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, id)
}

// canonical re-reads the order after a write and merges it over the locally
// advanced copy, so a lagging read never rolls the write back. When the read
// fails the local copy stands in until the next refresh.
func (p *Processor) canonical(ctx context.Context, local order.Order) order.Order {
	fresh, err := p.api.OrderByID(ctx, local.ID)
	if err != nil {
		p.logger.Warn("failed to refresh order after write", map[string]interface{}{
			"order": local.ID,
			"error": err.Error(),
		})
		return local
	}
	merged, _ := merge.Fields(local, fresh)
	return merged
}
