// Package session runs one actor's order view: a single loop owns every
// per-tab store, the pager and the badge counter, and serializes push events,
// page responses and consumer commands.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ordersync/internal/badge"
	"ordersync/internal/lifecycle"
	"ordersync/internal/merge"
	"ordersync/internal/order"
	"ordersync/internal/pager"
	"ordersync/internal/push"
	"ordersync/internal/store"
	"ordersync/internal/utils"
	"ordersync/internal/view"
)

// ErrStopped is returned by commands issued after Run has returned
var ErrStopped = errors.New("session stopped")

// Options configures a session
type Options struct {
	PageSize          int
	Sort              pager.SortDirection
	SearchDebounce    time.Duration
	LoadMoreThreshold float64
	InitialTab        order.Tab
}

// Snapshot is what the consumer renders
type Snapshot struct {
	Tab          order.Tab
	Orders       []view.ViewModel
	Badges       map[order.Tab]int
	Page         int
	TotalPages   int
	HasMore      bool
	Loading      bool
	Search       string
	Connected    bool
	PendingRetry []string
	// Err is the last failure the actor should see
	Err error
}

// Session is one actor's synchronized order view
type Session struct {
	actor     order.Actor
	api       lifecycle.Persistence
	processor *lifecycle.Processor
	stores    map[order.Tab]*store.Store
	pager     *pager.Controller
	badge     *badge.Counter
	debouncer *pager.Debouncer
	opts      Options
	logger    *utils.Logger
	metrics   *utils.Metrics

	commands chan func()
	results  chan pager.Response
	updates  chan Snapshot
	done     chan struct{}

	// set by Run before the loop starts
	ctx   context.Context
	group *errgroup.Group

	// owned by the loop
	connected bool
	lastErr   error
}

// New creates a session. It does nothing until Run is called.
func New(actor order.Actor, persistence lifecycle.Persistence, confirmer lifecycle.Confirmer, opts Options, logger *utils.Logger, metrics *utils.Metrics) *Session {
	if logger == nil {
		logger = utils.NopLogger()
	}
	if !opts.InitialTab.Valid() {
		opts.InitialTab = order.TabNew
	}
	logger = logger.With("session", map[string]interface{}{"role": actor.Role, "actor": actor.ID})

	engine := merge.NewEngine(logger, metrics)
	stores := make(map[order.Tab]*store.Store, len(order.Tabs))
	for _, tab := range order.Tabs {
		stores[tab] = store.New(actor, tab, engine)
	}

	return &Session{
		actor:     actor,
		api:       persistence,
		processor: lifecycle.NewProcessor(persistence, actor, confirmer, logger),
		stores:    stores,
		pager: pager.NewController(pager.Options{
			PageSize:          opts.PageSize,
			Sort:              opts.Sort,
			LoadMoreThreshold: opts.LoadMoreThreshold,
		}),
		badge:     badge.NewCounter(),
		debouncer: pager.NewDebouncer(opts.SearchDebounce),
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
		commands:  make(chan func()),
		results:   make(chan pager.Response),
		updates:   make(chan Snapshot, 1),
		done:      make(chan struct{}),
		connected: true,
	}
}

// Actor returns the session owner
func (s *Session) Actor() order.Actor {
	return s.actor
}

// Run loads the initial tab and processes events until ctx is done. events
// may be nil when no push channel is wired.
func (s *Session) Run(ctx context.Context, events <-chan push.Event) error {
	g, gctx := errgroup.WithContext(ctx)
	s.ctx = gctx
	s.group = g

	g.Go(func() error {
		defer close(s.done)
		defer s.debouncer.Stop()

		s.logger.Info("session started", map[string]interface{}{"tab": s.opts.InitialTab})
		s.activate(s.opts.InitialTab)
		return s.loop(gctx, events)
	})

	return g.Wait()
}

func (s *Session) loop(ctx context.Context, events <-chan push.Event) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session stopped", s.metrics.GetSnapshot().Fields())
			return nil
		case fn := <-s.commands:
			fn()
		case resp := <-s.results:
			s.onPage(resp)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.onEvent(ev)
		}
	}
}

// do runs fn on the loop and waits for it
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case s.commands <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn on the loop without waiting
func (s *Session) post(fn func()) {
	select {
	case s.commands <- fn:
	case <-s.done:
	}
}

// Updates streams snapshots after every change. Only the latest unread
// snapshot is kept.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

// View returns the current snapshot
func (s *Session) View(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() { snap = s.snapshot() })
	return snap, err
}

// SwitchTab makes tab visible and reloads it from page 1
func (s *Session) SwitchTab(ctx context.Context, tab order.Tab) error {
	if !tab.Valid() {
		return fmt.Errorf("unknown tab %q", tab)
	}
	return s.do(ctx, func() { s.activate(tab) })
}

// Refresh reloads page 1 of the visible tab
func (s *Session) Refresh(ctx context.Context) error {
	return s.do(ctx, s.refresh)
}

// Search sets the search text of the visible tab once typing settles
func (s *Session) Search(text string) {
	s.debouncer.Schedule(func() {
		s.post(func() { s.search(text) })
	})
}

// Sort changes the sort direction of the visible tab
func (s *Session) Sort(ctx context.Context, dir pager.SortDirection) error {
	if dir != pager.SortAsc && dir != pager.SortDesc {
		return fmt.Errorf("unknown sort direction %q", dir)
	}
	return s.do(ctx, func() {
		if req, ok := s.pager.SetSort(dir); ok {
			s.begin(req)
		}
	})
}

// LoadMore fetches the next page of the visible tab. It reports false when
// there is nothing more or a fetch is already running.
func (s *Session) LoadMore(ctx context.Context) (bool, error) {
	var issued bool
	err := s.do(ctx, func() { issued = s.loadMore() })
	return issued, err
}

// Scrolled reports the consumer's scroll position and loads the next page
// when it is inside the trailing threshold.
func (s *Session) Scrolled(ctx context.Context, rendered, lastVisible int) (bool, error) {
	var issued bool
	err := s.do(ctx, func() {
		if s.pager.ShouldLoadMore(rendered, lastVisible) {
			issued = s.loadMore()
		}
	})
	return issued, err
}

// Confirm confirms a placed order
func (s *Session) Confirm(ctx context.Context, orderID string) (*lifecycle.Result, error) {
	return s.mutate(ctx, orderID, s.processor.Confirm)
}

// Cancel cancels a placed or confirmed order
func (s *Session) Cancel(ctx context.Context, orderID string) (*lifecycle.Result, error) {
	return s.mutate(ctx, orderID, s.processor.Cancel)
}

// Accept claims and dispatches a confirmed order
func (s *Session) Accept(ctx context.Context, orderID string) (*lifecycle.Result, error) {
	return s.mutate(ctx, orderID, s.processor.Accept)
}

// Deliver completes an order out for delivery
func (s *Session) Deliver(ctx context.Context, orderID string) (*lifecycle.Result, error) {
	return s.mutate(ctx, orderID, s.processor.Deliver)
}

// RetryReconciliation retries the payment update of a delivered COD order
func (s *Session) RetryReconciliation(ctx context.Context, orderID string) (*lifecycle.Result, error) {
	res, err := s.processor.RetryReconciliation(ctx, orderID)
	s.settle(ctx, orderID, res, err)
	return res, err
}

// MarkRead acknowledges an order and decrements its badge once
func (s *Session) MarkRead(ctx context.Context, orderID string) error {
	o, err := s.lookup(ctx, orderID)
	if err != nil {
		return err
	}

	read, issued, err := s.processor.MarkRead(ctx, o)
	if err != nil {
		_ = s.do(ctx, func() { s.fail(err) })
		return err
	}
	if !issued {
		return nil
	}

	return s.do(ctx, func() {
		s.apply(read, false)
		s.badge.Acknowledge(order.TabFor(read.Status), read.ID)
		s.publish()
	})
}

type mutation func(context.Context, order.Order) (*lifecycle.Result, error)

func (s *Session) mutate(ctx context.Context, orderID string, fn mutation) (*lifecycle.Result, error) {
	o, err := s.lookup(ctx, orderID)
	if err != nil {
		return nil, err
	}
	res, err := fn(ctx, o)
	s.settle(ctx, orderID, res, err)
	return res, err
}

// settle folds a mutation outcome back into the stores. A lost acceptance
// race re-reads the order so it leaves the partner's queue.
func (s *Session) settle(ctx context.Context, orderID string, res *lifecycle.Result, err error) {
	var fresh order.Order
	if res != nil {
		fresh = res.Order
	}
	if order.IsKind(err, order.KindConflict) {
		if canonical, ferr := s.api.OrderByID(ctx, orderID); ferr == nil {
			fresh = canonical
		}
	}

	_ = s.do(ctx, func() {
		if fresh.ID != "" {
			s.apply(fresh, false)
		}
		if err != nil {
			s.fail(err)
		}
		s.publish()
	})
}

// lookup finds the most advanced local copy of an order, falling back to
// the persistence service.
func (s *Session) lookup(ctx context.Context, orderID string) (order.Order, error) {
	var (
		o     order.Order
		found bool
	)
	err := s.do(ctx, func() { o, found = s.find(orderID) })
	if err != nil {
		return order.Order{}, err
	}
	if found {
		return o, nil
	}
	return s.api.OrderByID(ctx, orderID)
}
