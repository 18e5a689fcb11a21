package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ordersync/internal/merge"
	"ordersync/internal/order"
	"ordersync/internal/order/ordertest"
	"ordersync/internal/utils"
)

var restaurant = order.Actor{Role: order.RoleRestaurant, ID: "R1"}

func newStore() *Store {
	return New(restaurant, order.TabNew, merge.NewEngine(utils.NopLogger(), nil))
}

// A push that lands while page 1 is being fetched must survive the reset.
func TestResetReplaysPushesReceivedDuringFetch(t *testing.T) {
	s := newStore()
	s.Append([]order.Order{ordertest.New("O1", order.StatusPlaced)})

	s.BeginReset()
	s.Push(ordertest.New("O9", order.StatusPlaced))

	// the snapshot was taken before O9 existed
	s.Reset([]order.Order{ordertest.New("O1", order.StatusPlaced), ordertest.New("O2", order.StatusPlaced)})

	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Contains("O9"))
	assert.Equal(t, "O9", s.Orders()[0].ID, "pushed orders surface first")
}

// A push that is also contained in the refreshed page is not duplicated.
func TestResetDoesNotDuplicatePushedOrder(t *testing.T) {
	s := newStore()
	s.BeginReset()
	s.Push(ordertest.New("O1", order.StatusPlaced))
	s.Reset([]order.Order{ordertest.New("O1", order.StatusPlaced)})

	assert.Equal(t, 1, s.Len())
}

// A stale page cannot undo a pushed advance.
func TestResetKeepsPushedAdvance(t *testing.T) {
	s := newStore()
	s.BeginReset()
	s.Push(ordertest.New("O1", order.StatusConfirmed))
	s.Reset([]order.Order{ordertest.New("O1", order.StatusPlaced)})

	got, ok := s.Get("O1")
	assert.True(t, ok)
	assert.Equal(t, order.StatusConfirmed, got.Status)
}

func TestDeferredPushesMergeOnFlush(t *testing.T) {
	s := newStore()
	s.Defer(ordertest.New("O1", order.StatusPlaced))
	s.Defer(ordertest.New("O1", order.StatusPlaced))

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 2, s.Deferred())
	assert.True(t, s.HasDeferred("O1"))

	s.Flush()
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.Deferred())
}

func TestResetMergesDeferred(t *testing.T) {
	s := newStore()
	s.Defer(ordertest.New("O5", order.StatusPlaced))
	s.Reset([]order.Order{ordertest.New("O1", order.StatusPlaced)})

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 0, s.Deferred())
}

func TestClear(t *testing.T) {
	s := newStore()
	s.Append([]order.Order{ordertest.New("O1", order.StatusPlaced)})
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, order.TabNew, s.Tab())
	assert.Equal(t, restaurant, s.Actor())
}

// A mutation result merged while page 1 is in flight survives the reset.
func TestResetReplaysRefresh(t *testing.T) {
	s := newStore()
	s.Append([]order.Order{ordertest.New("O1", order.StatusPlaced)})

	s.BeginReset()
	s.Refresh(ordertest.New("O1", order.StatusConfirmed))

	// the page was read before the confirmation
	s.Reset([]order.Order{ordertest.New("O1", order.StatusPlaced)})

	o, ok := s.Get("O1")
	assert.True(t, ok)
	assert.Equal(t, order.StatusConfirmed, o.Status)
}

func TestAbortResetStopsRecording(t *testing.T) {
	s := newStore()
	s.BeginReset()
	s.Push(ordertest.New("O1", order.StatusPlaced))
	s.AbortReset()

	assert.True(t, s.Contains("O1"), "pushes merged before the failure stay")

	s.Push(ordertest.New("O2", order.StatusPlaced))
	s.Reset(nil)
	assert.Zero(t, s.Len(), "nothing is replayed once recording stopped")
}

func TestDropDeferred(t *testing.T) {
	s := newStore()
	s.Defer(ordertest.New("O1", order.StatusPlaced))
	s.Defer(ordertest.New("O2", order.StatusPlaced))

	dropped := s.DropDeferred(func(o order.Order) bool { return o.ID == "O1" })
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, s.Deferred())
	assert.False(t, s.HasDeferred("O1"))

	s.Reset(nil)
	assert.Equal(t, []string{"O2"}, []string{s.Orders()[0].ID})
}

func TestCopiesIncludesDeferred(t *testing.T) {
	s := newStore()
	s.Append([]order.Order{ordertest.New("O1", order.StatusPlaced)})
	s.Defer(ordertest.New("O1", order.StatusConfirmed))

	copies := s.Copies("O1")
	if assert.Len(t, copies, 2) {
		assert.Equal(t, order.StatusPlaced, copies[0].Status)
		assert.Equal(t, order.StatusConfirmed, copies[1].Status)
	}
	assert.Empty(t, s.Copies("O9"))
}
