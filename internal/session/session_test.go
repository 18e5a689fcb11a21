package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersync/internal/lifecycle"
	"ordersync/internal/lifecycle/lifecycletest"
	"ordersync/internal/order"
	"ordersync/internal/order/ordertest"
	"ordersync/internal/push"
	"ordersync/internal/utils"
)

var (
	restaurant = order.Actor{Role: order.RoleRestaurant, ID: "R1"}
	partnerD1  = order.Actor{Role: order.RoleDeliveryPartner, ID: "D1"}
	partnerD2  = order.Actor{Role: order.RoleDeliveryPartner, ID: "D2"}
)

type harness struct {
	*Session
	fake    *lifecycletest.Fake
	events  chan push.Event
	metrics *utils.Metrics
}

func start(t *testing.T, fake *lifecycletest.Fake, actor order.Actor, opts Options, confirmer lifecycle.Confirmer) *harness {
	t.Helper()
	if opts.PageSize == 0 {
		opts.PageSize = 10
	}
	metrics := utils.NewMetrics()
	h := &harness{
		Session: New(actor, fake, confirmer, opts, nil, metrics),
		fake:    fake,
		events:  make(chan push.Event),
		metrics: metrics,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, h.events) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return h
}

// push delivers an event; the loop has processed it once the send returns
// and the next command runs.
func (h *harness) push(typ push.EventType, o order.Order) {
	h.events <- push.Event{Type: typ, Role: h.Actor().Role, Order: o}
}

func (h *harness) view(t *testing.T) Snapshot {
	t.Helper()
	snap, err := h.View(context.Background())
	require.NoError(t, err)
	return snap
}

func (h *harness) waitFor(t *testing.T, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		v, err := h.View(context.Background())
		if err != nil {
			return false
		}
		snap = v
		return cond(v)
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func ids(snap Snapshot) []string {
	out := make([]string, len(snap.Orders))
	for i, vm := range snap.Orders {
		out[i] = vm.OrderID
	}
	return out
}

func loaded(tab order.Tab, want ...string) func(Snapshot) bool {
	return func(s Snapshot) bool {
		if s.Tab != tab || s.Loading || len(s.Orders) != len(want) {
			return false
		}
		for i, id := range want {
			if s.Orders[i].OrderID != id {
				return false
			}
		}
		return true
	}
}

// Scenario: O1 is confirmed, then a stale PLACED copy arrives by push.
func TestStalePushAfterConfirm(t *testing.T) {
	fake := lifecycletest.New(order.RoleRestaurant, ordertest.New("O1", order.StatusPlaced))
	h := start(t, fake, restaurant, Options{}, nil)
	ctx := context.Background()

	snap := h.waitFor(t, loaded(order.TabNew, "O1"))
	assert.Equal(t, 1, snap.Badges[order.TabNew])

	res, err := h.Confirm(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, res.Order.Status)
	assert.Empty(t, h.view(t).Orders, "confirmed order left the NEW tab")

	h.push(push.EventNewOrder, ordertest.New("O1", order.StatusPlaced))

	snap = h.view(t)
	assert.Empty(t, snap.Orders, "stale PLACED copy must not resurrect the order")
	assert.Equal(t, 1, snap.Badges[order.TabNew], "seeded order is not counted twice")
	assert.NoError(t, snap.Err, "stale writes are not shown to the actor")

	held, err := h.lookup(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, held.Status)

	require.NoError(t, h.SwitchTab(ctx, order.TabConfirmed))
	snap = h.waitFor(t, loaded(order.TabConfirmed, "O1"))
	assert.Equal(t, "CONFIRMED", snap.Orders[0].Label)
}

// A stale duplicate pushed while another tab holds the newer copy must not
// come back when its own tab is shown, nor count as a new order.
func TestStalePushForHiddenTabIsDropped(t *testing.T) {
	fake := lifecycletest.New(order.RoleRestaurant, ordertest.New("O1", order.StatusConfirmed))
	h := start(t, fake, restaurant, Options{InitialTab: order.TabConfirmed}, nil)
	h.waitFor(t, loaded(order.TabConfirmed, "O1"))

	h.push(push.EventNewOrder, ordertest.New("O1", order.StatusPlaced))

	snap := h.view(t)
	assert.Zero(t, snap.Badges[order.TabNew])
	assert.Equal(t, 1, snap.Badges[order.TabConfirmed])

	require.NoError(t, h.SwitchTab(context.Background(), order.TabNew))
	snap = h.waitFor(t, loaded(order.TabNew))
	assert.Empty(t, snap.Orders)
	assert.Zero(t, snap.Badges[order.TabNew])
	assert.Equal(t, 1, h.metrics.GetSnapshot().Merges["push/stale"])
}

// The stale copy is deferred first; the newer copy arrives afterwards for a
// different tab. Showing the stale copy's tab must not resurrect it.
func TestDeferredPushOvertakenBeforeActivation(t *testing.T) {
	fake := lifecycletest.New(order.RoleRestaurant, ordertest.New("O2", order.StatusCancelled, ordertest.Read()))
	h := start(t, fake, restaurant, Options{InitialTab: order.TabCancelled}, nil)
	h.waitFor(t, loaded(order.TabCancelled, "O2"))

	h.push(push.EventNewOrder, ordertest.New("O1", order.StatusPlaced))
	h.push(push.EventOrderUpdated, ordertest.New("O1", order.StatusConfirmed))
	assert.Equal(t, 1, h.view(t).Badges[order.TabNew])

	require.NoError(t, h.SwitchTab(context.Background(), order.TabNew))
	assert.Empty(t, h.waitFor(t, loaded(order.TabNew)).Orders)

	require.NoError(t, h.SwitchTab(context.Background(), order.TabConfirmed))
	snap := h.waitFor(t, loaded(order.TabConfirmed, "O1"))
	assert.Equal(t, order.StatusConfirmed, snap.Orders[0].Status)
}

func TestAssignmentRaisesPartnerBadge(t *testing.T) {
	fake := lifecycletest.New(order.RoleDeliveryPartner)
	h := start(t, fake, partnerD1, Options{InitialTab: order.TabConfirmed}, nil)
	h.waitFor(t, loaded(order.TabConfirmed))

	h.push(push.EventOrderAssigned, ordertest.New("O9", order.StatusConfirmed, ordertest.WithPartner("D1")))

	snap := h.view(t)
	assert.Equal(t, []string{"O9"}, ids(snap))
	assert.Equal(t, 1, snap.Badges[order.TabConfirmed])

	// repeated notification, and one for another partner
	h.push(push.EventOrderAssigned, ordertest.New("O9", order.StatusConfirmed, ordertest.WithPartner("D1")))
	h.push(push.EventOrderAssigned, ordertest.New("O8", order.StatusConfirmed, ordertest.WithPartner("D2")))

	snap = h.view(t)
	assert.Equal(t, []string{"O9"}, ids(snap))
	assert.Equal(t, 1, snap.Badges[order.TabConfirmed])
}

func TestSearchIsDebounced(t *testing.T) {
	fake := lifecycletest.New(order.RoleRestaurant,
		ordertest.New("O1", order.StatusPlaced),
		ordertest.New("O2", order.StatusPlaced),
	)
	h := start(t, fake, restaurant, Options{SearchDebounce: 40 * time.Millisecond}, nil)
	h.waitFor(t, loaded(order.TabNew, "O2", "O1"))

	h.Search("#")
	h.Search("#O")
	h.Search("#O1")

	snap := h.waitFor(t, loaded(order.TabNew, "O1"))
	assert.Equal(t, "#O1", snap.Search)

	time.Sleep(120 * time.Millisecond)
	var searches []string
	for _, q := range fake.Queries() {
		if q.Search != "" {
			searches = append(searches, q.Search)
		}
	}
	assert.Equal(t, []string{"#O1"}, searches)
}

func TestTabSwitchDiscardsOldResponse(t *testing.T) {
	fake := lifecycletest.New(order.RoleRestaurant,
		ordertest.New("O1", order.StatusPlaced),
		ordertest.New("O2", order.StatusConfirmed),
	)
	release := fake.Gate(order.StatusPlaced)
	defer release()

	h := start(t, fake, restaurant, Options{}, nil)
	require.Eventually(t, func() bool { return fake.Calls("ordersByStatus") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.SwitchTab(context.Background(), order.TabConfirmed))
	h.waitFor(t, loaded(order.TabConfirmed, "O2"))

	release()
	require.Eventually(t, func() bool {
		return h.metrics.GetSnapshot().FetchesDiscarded == 1
	}, time.Second, 5*time.Millisecond)

	snap := h.view(t)
	assert.Equal(t, order.TabConfirmed, snap.Tab)
	assert.Equal(t, []string{"O2"}, ids(snap))
}

func TestInactiveTabPushUpdatesBadgeAndIsDeferred(t *testing.T) {
	fake := lifecycletest.New(order.RoleRestaurant, ordertest.New("O2", order.StatusConfirmed, ordertest.Read()))
	h := start(t, fake, restaurant, Options{InitialTab: order.TabConfirmed}, nil)
	h.waitFor(t, loaded(order.TabConfirmed, "O2"))

	// the service has not indexed O5 yet
	h.push(push.EventNewOrder, ordertest.New("O5", order.StatusPlaced))

	snap := h.view(t)
	assert.Equal(t, []string{"O2"}, ids(snap))
	assert.Equal(t, 1, snap.Badges[order.TabNew])

	require.NoError(t, h.SwitchTab(context.Background(), order.TabNew))
	h.waitFor(t, loaded(order.TabNew, "O5"))
}

func TestPushDuringFirstPageIsNotLost(t *testing.T) {
	fake := lifecycletest.New(order.RoleRestaurant, ordertest.New("O1", order.StatusPlaced))
	release := fake.Gate(order.StatusPlaced)
	defer release()

	h := start(t, fake, restaurant, Options{}, nil)
	require.Eventually(t, func() bool { return fake.Calls("ordersByStatus") == 1 }, time.Second, 5*time.Millisecond)

	h.push(push.EventNewOrder, ordertest.New("O2", order.StatusPlaced))
	assert.True(t, h.view(t).Loading)

	release()
	h.waitFor(t, loaded(order.TabNew, "O2", "O1"))
}

func TestLoadMoreUntilExhausted(t *testing.T) {
	var orders []order.Order
	for i := 1; i <= 25; i++ {
		orders = append(orders, ordertest.New(fmt.Sprintf("O%02d", i), order.StatusPlaced))
	}
	fake := lifecycletest.New(order.RoleRestaurant, orders...)
	h := start(t, fake, restaurant, Options{PageSize: 10}, nil)
	ctx := context.Background()

	count := func(n int) func(Snapshot) bool {
		return func(s Snapshot) bool { return !s.Loading && len(s.Orders) == n }
	}

	snap := h.waitFor(t, count(10))
	assert.Equal(t, "O25", snap.Orders[0].OrderID)
	assert.True(t, snap.HasMore)

	issued, err := h.Scrolled(ctx, 10, 2)
	require.NoError(t, err)
	assert.False(t, issued, "not yet inside the trailing threshold")

	issued, err = h.Scrolled(ctx, 10, 8)
	require.NoError(t, err)
	assert.True(t, issued)
	h.waitFor(t, count(20))

	issued, err = h.LoadMore(ctx)
	require.NoError(t, err)
	assert.True(t, issued)
	snap = h.waitFor(t, count(25))
	assert.False(t, snap.HasMore)
	assert.Equal(t, "O01", snap.Orders[24].OrderID)

	issued, err = h.LoadMore(ctx)
	require.NoError(t, err)
	assert.False(t, issued)
	assert.Equal(t, 3, fake.Calls("ordersByStatus"))
}

func TestReconnectRefreshesFirstPage(t *testing.T) {
	fake := lifecycletest.New(order.RoleRestaurant, ordertest.New("O1", order.StatusPlaced))
	h := start(t, fake, restaurant, Options{}, nil)
	h.waitFor(t, loaded(order.TabNew, "O1"))

	h.events <- push.Event{
		Type: push.EventDisconnected,
		Err:  order.Wrap(order.KindChannelDisconnect, "push", "", errors.New("connection reset")),
	}
	snap := h.view(t)
	assert.False(t, snap.Connected)
	assert.True(t, order.IsKind(snap.Err, order.KindChannelDisconnect))

	// missed while disconnected
	fake.Put(ordertest.New("O2", order.StatusPlaced))

	h.events <- push.Event{Type: push.EventReconnected}
	snap = h.waitFor(t, loaded(order.TabNew, "O2", "O1"))
	assert.True(t, snap.Connected)
	assert.NoError(t, snap.Err)
	assert.Equal(t, 2, snap.Badges[order.TabNew])
}

// Scenario: D1 wins the race for O1; D2's queue never shows it again.
func TestLostAcceptanceRaceRemovesOrder(t *testing.T) {
	fake := lifecycletest.New(order.RoleDeliveryPartner, ordertest.New("O1", order.StatusConfirmed))
	h := start(t, fake, partnerD2, Options{InitialTab: order.TabConfirmed}, nil)
	ctx := context.Background()

	snap := h.waitFor(t, loaded(order.TabConfirmed, "O1"))
	assert.True(t, snap.Orders[0].Claimable)

	require.NoError(t, fake.AcceptOrder(ctx, "D1", "O1"))

	_, err := h.Accept(ctx, "O1")
	assert.True(t, order.IsKind(err, order.KindConflict))

	snap = h.view(t)
	assert.Empty(t, snap.Orders)
	assert.True(t, order.IsKind(snap.Err, order.KindConflict))

	require.NoError(t, h.SwitchTab(ctx, order.TabOutForDelivery))
	assert.Empty(t, h.waitFor(t, loaded(order.TabOutForDelivery)).Orders)
}

func TestAcceptMovesOrderToOwnQueue(t *testing.T) {
	fake := lifecycletest.New(order.RoleDeliveryPartner, ordertest.New("O1", order.StatusConfirmed))
	h := start(t, fake, partnerD1, Options{InitialTab: order.TabConfirmed}, nil)
	ctx := context.Background()
	h.waitFor(t, loaded(order.TabConfirmed, "O1"))

	res, err := h.Accept(ctx, "O1")
	require.NoError(t, err)
	assert.True(t, res.Order.AssignedTo("D1"))
	assert.Empty(t, h.view(t).Orders)

	require.NoError(t, h.SwitchTab(ctx, order.TabOutForDelivery))
	snap := h.waitFor(t, loaded(order.TabOutForDelivery, "O1"))
	assert.False(t, snap.Orders[0].Claimable)
}

func TestDeliverPartialReconciliationAndRetry(t *testing.T) {
	fake := lifecycletest.New(order.RoleDeliveryPartner,
		ordertest.New("O1", order.StatusOutForDelivery, ordertest.COD(), ordertest.WithPartner("D1")))
	fake.FailNext("paymentStatus", errors.New("HTTP 503"))

	confirm := lifecycle.ConfirmFunc(func(ctx context.Context, o order.Order) (bool, error) { return true, nil })
	h := start(t, fake, partnerD1, Options{InitialTab: order.TabOutForDelivery}, confirm)
	ctx := context.Background()
	h.waitFor(t, loaded(order.TabOutForDelivery, "O1"))

	_, err := h.Deliver(ctx, "O1")
	require.True(t, order.IsKind(err, order.KindPartialReconciliation))

	snap := h.view(t)
	assert.Empty(t, snap.Orders)
	assert.Equal(t, []string{"O1"}, snap.PendingRetry)
	assert.True(t, order.IsKind(snap.Err, order.KindPartialReconciliation))

	require.NoError(t, h.SwitchTab(ctx, order.TabDelivered))
	snap = h.waitFor(t, loaded(order.TabDelivered, "O1"))
	assert.True(t, snap.Orders[0].NeedsPaymentRetry)

	_, err = h.RetryReconciliation(ctx, "O1")
	require.NoError(t, err)

	snap = h.view(t)
	assert.Empty(t, snap.PendingRetry)
	require.Len(t, snap.Orders, 1)
	assert.False(t, snap.Orders[0].NeedsPaymentRetry)
	assert.Equal(t, order.PaymentPaid, snap.Orders[0].PaymentStatus)
}

func TestDeclinedCashCollectionKeepsOrder(t *testing.T) {
	fake := lifecycletest.New(order.RoleDeliveryPartner,
		ordertest.New("O1", order.StatusOutForDelivery, ordertest.COD(), ordertest.WithPartner("D1")))
	decline := lifecycle.ConfirmFunc(func(ctx context.Context, o order.Order) (bool, error) { return false, nil })
	h := start(t, fake, partnerD1, Options{InitialTab: order.TabOutForDelivery}, decline)
	h.waitFor(t, loaded(order.TabOutForDelivery, "O1"))

	res, err := h.Deliver(context.Background(), "O1")
	require.NoError(t, err)
	assert.True(t, res.Declined)
	assert.Equal(t, []string{"O1"}, ids(h.view(t)))
	assert.Zero(t, fake.Calls("updateStatus"))
	assert.Zero(t, fake.Calls("paymentStatus"))
}

func TestMarkReadAcknowledgesOnce(t *testing.T) {
	fake := lifecycletest.New(order.RoleRestaurant,
		ordertest.New("O1", order.StatusPlaced),
		ordertest.New("O2", order.StatusPlaced),
	)
	h := start(t, fake, restaurant, Options{}, nil)
	ctx := context.Background()

	snap := h.waitFor(t, loaded(order.TabNew, "O2", "O1"))
	assert.Equal(t, 2, snap.Badges[order.TabNew])

	require.NoError(t, h.MarkRead(ctx, "O1"))
	require.NoError(t, h.MarkRead(ctx, "O1"))

	snap = h.view(t)
	assert.Equal(t, 1, snap.Badges[order.TabNew])
	assert.Equal(t, 1, fake.Calls("readStatus"))
	for _, vm := range snap.Orders {
		assert.Equal(t, vm.OrderID == "O2", vm.Unread, vm.OrderID)
	}
}

func TestUpdatesCarryLatestSnapshot(t *testing.T) {
	fake := lifecycletest.New(order.RoleRestaurant, ordertest.New("O1", order.StatusPlaced))
	h := start(t, fake, restaurant, Options{}, nil)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-h.Updates():
			if loaded(order.TabNew, "O1")(snap) {
				return
			}
		case <-deadline:
			t.Fatal("no snapshot with the first page arrived")
		}
	}
}

func TestCommandsAfterStop(t *testing.T) {
	fake := lifecycletest.New(order.RoleRestaurant)
	s := New(restaurant, fake, nil, Options{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, nil) }()
	cancel()
	require.NoError(t, <-done)

	_, err := s.View(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}
