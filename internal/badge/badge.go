// Package badge counts orders the actor has not acknowledged yet.
package badge

import (
	"sync"

	"ordersync/internal/order"
)

type tabCount struct {
	count int
	seen  map[string]struct{}
	acked map[string]struct{}
}

// Counter tracks unread orders per tab. The server-reported count is
// authoritative; local increments and acknowledgements only bridge the gap
// until the next page-1 fetch.
type Counter struct {
	mu   sync.RWMutex
	tabs map[order.Tab]*tabCount
}

// NewCounter creates an empty counter
func NewCounter() *Counter {
	return &Counter{tabs: make(map[order.Tab]*tabCount)}
}

func (c *Counter) tab(t order.Tab) *tabCount {
	tc, ok := c.tabs[t]
	if !ok {
		tc = &tabCount{
			seen:  make(map[string]struct{}),
			acked: make(map[string]struct{}),
		}
		c.tabs[t] = tc
	}
	return tc
}

// Seed resets a tab to the server-reported count. ids are the orders the
// server already accounted for, so a push repeating one of them is not
// counted twice.
func (c *Counter) Seed(t order.Tab, unread int, ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if unread < 0 {
		unread = 0
	}
	tc := c.tab(t)
	tc.count = unread
	tc.seen = make(map[string]struct{}, len(ids))
	tc.acked = make(map[string]struct{})
	for _, id := range ids {
		tc.seen[id] = struct{}{}
	}
}

// Observe counts a brand-new order delivered by push. It returns false when
// the order was already counted or seeded.
func (c *Counter) Observe(t order.Tab, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tc := c.tab(t)
	if _, ok := tc.seen[id]; ok {
		return false
	}
	tc.seen[id] = struct{}{}
	tc.count++
	return true
}

// Acknowledge applies a successful mark-read. Each order is acknowledged at
// most once and the count never drops below zero.
func (c *Counter) Acknowledge(t order.Tab, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tc := c.tab(t)
	if _, ok := tc.acked[id]; ok {
		return false
	}
	tc.acked[id] = struct{}{}
	if tc.count == 0 {
		return false
	}
	tc.count--
	return true
}

// Count returns the unread count of a tab
func (c *Counter) Count(t order.Tab) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if tc, ok := c.tabs[t]; ok {
		return tc.count
	}
	return 0
}

// Counts returns every non-empty tab count
func (c *Counter) Counts() map[order.Tab]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[order.Tab]int, len(c.tabs))
	for t, tc := range c.tabs {
		if tc.count > 0 {
			out[t] = tc.count
		}
	}
	return out
}
