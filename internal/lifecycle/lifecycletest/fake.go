// Package lifecycletest provides an in-memory persistence service for tests.
package lifecycletest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ordersync/internal/api"
	"ordersync/internal/order"
)

// Fake is a thread-safe in-memory persistence service. It enforces the same
// transition rules and first-writer-wins acceptance as the real service.
type Fake struct {
	// Viewer is the role unread counts are computed for
	Viewer order.Role

	mu      sync.Mutex
	orders  map[string]order.Order
	ids     []string
	calls   map[string]int
	queries []api.OrdersQuery
	fail    map[string][]error
	gates   map[order.Status]chan struct{}
	now     time.Time
}

// New creates a fake holding the given orders, oldest first
func New(viewer order.Role, orders ...order.Order) *Fake {
	f := &Fake{
		Viewer: viewer,
		orders: make(map[string]order.Order),
		calls:  make(map[string]int),
		fail:   make(map[string][]error),
		gates:  make(map[order.Status]chan struct{}),
		now:    time.Date(2025, 3, 14, 13, 0, 0, 0, time.UTC),
	}
	for _, o := range orders {
		f.Put(o)
	}
	return f
}

// Put stores or replaces an order. New orders are the newest.
func (f *Fake) Put(o order.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[o.ID]; !ok {
		f.ids = append(f.ids, o.ID)
	}
	f.orders[o.ID] = o.Clone()
}

// Get returns the stored order
func (f *Fake) Get(id string) order.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].Clone()
}

// FailNext makes the next call of op return err. Calls queue up.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = append(f.fail[op], err)
}

// Gate blocks page fetches for a status until release is called
func (f *Fake) Gate(status order.Status) (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[status] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, status)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how often op was invoked
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Queries returns every page query received
func (f *Fake) Queries() []api.OrdersQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.OrdersQuery, len(f.queries))
	copy(out, f.queries)
	return out
}

// enter records a call and pops a queued failure. Caller holds mu.
func (f *Fake) enter(op string) error {
	f.calls[op]++
	if queued := f.fail[op]; len(queued) > 0 {
		f.fail[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (f *Fake) lookup(op, id string) (order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return order.Order{}, order.Errorf(order.KindNotFound, op, id, "HTTP 404: order not found")
	}
	return o, nil
}

// OrdersByStatus pages through orders of a status, newest first unless sort is asc
func (f *Fake) OrdersByStatus(ctx context.Context, q api.OrdersQuery) (*api.Page, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	err := f.enter("ordersByStatus")
	gate := f.gates[q.Status]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, order.Wrap(order.KindNetworkFailure, "ordersByStatus", "", ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []order.Order
	unread := 0
	for i := range f.ids {
		idx := i
		if q.Sort != "asc" {
			idx = len(f.ids) - 1 - i
		}
		o := f.orders[f.ids[idx]]
		if o.Status != q.Status {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(o.Number), strings.ToLower(q.Search)) {
			continue
		}
		if !o.ReadBy(f.Viewer) {
			unread++
		}
		matched = append(matched, o.Clone())
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	totalPages := (len(matched) + limit - 1) / limit
	start := (page - 1) * limit
	end := start + limit
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	return &api.Page{
		Orders:      matched[start:end],
		TotalPages:  totalPages,
		UnreadCount: unread,
	}, nil
}

// OrderByID returns the canonical order
func (f *Fake) OrderByID(ctx context.Context, orderID string) (order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("orderById"); err != nil {
		return order.Order{}, err
	}
	o, err := f.lookup("orderById", orderID)
	if err != nil {
		return order.Order{}, err
	}
	return o.Clone(), nil
}

// UpdateStatus applies a legal status step
func (f *Fake) UpdateStatus(ctx context.Context, orderID string, status order.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("updateStatus"); err != nil {
		return err
	}
	o, err := f.lookup("updateStatus", orderID)
	if err != nil {
		return err
	}
	f.now = f.now.Add(time.Minute)
	next, err := order.Advance(o, status, f.now)
	if err != nil {
		return err
	}
	f.orders[orderID] = next
	return nil
}

// UpdatePaymentStatus settles a payment
func (f *Fake) UpdatePaymentStatus(ctx context.Context, orderID string, status order.PaymentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("paymentStatus"); err != nil {
		return err
	}
	o, err := f.lookup("paymentStatus", orderID)
	if err != nil {
		return err
	}
	o.PaymentStatus = status
	f.orders[orderID] = o
	return nil
}

// AcceptOrder claims a confirmed order; the first partner wins
func (f *Fake) AcceptOrder(ctx context.Context, partnerID, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("acceptOrder"); err != nil {
		return err
	}
	o, err := f.lookup("acceptOrder", orderID)
	if err != nil {
		return err
	}
	if o.Assigned() && !o.AssignedTo(partnerID) {
		return order.Errorf(order.KindConflict, "acceptOrder", orderID, "HTTP 409: already accepted by %s", *o.DeliveryPartnerID)
	}
	if o.Status != order.StatusConfirmed {
		return order.Errorf(order.KindInvalidTransition, "acceptOrder", orderID, "order is %s", o.Status)
	}
	o.DeliveryPartnerID = order.StringPtr(partnerID)
	f.orders[orderID] = o
	return nil
}

// MarkRead sets a role's read flag
func (f *Fake) MarkRead(ctx context.Context, orderID string, role order.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("readStatus"); err != nil {
		return err
	}
	o, err := f.lookup("readStatus", orderID)
	if err != nil {
		return err
	}
	switch role {
	case order.RoleRestaurant:
		o.ReadByRestaurant = true
	case order.RoleDeliveryPartner:
		o.ReadByDeliveryPartner = true
	default:
		return fmt.Errorf("role %s has no read flag", role)
	}
	f.orders[orderID] = o
	return nil
}
