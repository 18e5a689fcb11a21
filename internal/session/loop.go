package session

import (
	"errors"

	"ordersync/internal/api"
	"ordersync/internal/merge"
	"ordersync/internal/order"
	"ordersync/internal/pager"
	"ordersync/internal/push"
	"ordersync/internal/view"
)

// Everything in this file runs on the loop goroutine.

func (s *Session) activate(tab order.Tab) {
	st := s.stores[tab]
	st.Clear()
	st.BeginReset()
	s.issue(s.pager.Activate(tab))
	s.publish()
}

func (s *Session) refresh() {
	if req, ok := s.pager.Refresh(); ok {
		s.begin(req)
	}
}

func (s *Session) search(text string) {
	if req, ok := s.pager.SetSearch(text); ok {
		s.begin(req)
	}
}

// begin issues a destructive page-1 fetch. Pushes arriving before it lands
// are recorded so the reset does not drop them.
func (s *Session) begin(req pager.Request) {
	s.stores[req.Tab].BeginReset()
	s.issue(req)
	s.publish()
}

func (s *Session) loadMore() bool {
	req, ok := s.pager.LoadMore()
	if !ok {
		return false
	}
	if req.Page == 1 {
		s.begin(req)
		return true
	}
	s.issue(req)
	s.publish()
	return true
}

// issue runs a page fetch off the loop and posts the response back
func (s *Session) issue(req pager.Request) {
	s.metrics.RecordFetch(false)
	q := api.OrdersQuery{
		Status: req.Tab.Status(),
		Page:   req.Page,
		Limit:  req.Limit,
		Search: req.Search,
		Sort:   string(req.Sort),
	}

	s.group.Go(func() error {
		page, err := s.api.OrdersByStatus(s.ctx, q)
		resp := pager.Response{Request: req, Err: err}
		if page != nil {
			resp.Orders = page.Orders
			resp.TotalPages = page.TotalPages
			resp.UnreadCount = page.UnreadCount
		}

		select {
		case s.results <- resp:
		case <-s.done:
		}
		return nil
	})
}

func (s *Session) onPage(resp pager.Response) {
	st := s.stores[resp.Tab]
	if !s.pager.Complete(resp) {
		s.metrics.RecordFetch(true)
		s.logger.Debug("discarded page response", map[string]interface{}{
			"tab":        resp.Tab,
			"page":       resp.Page,
			"generation": resp.Generation,
		})
		return
	}

	if resp.Err != nil {
		if resp.Page == 1 {
			st.AbortReset()
		}
		s.fail(resp.Err)
		s.publish()
		return
	}

	if resp.Page == 1 {
		// pushes deferred while the tab was hidden may have been overtaken
		// by what other tabs learned since
		if n := st.DropDeferred(s.overtaken); n > 0 {
			s.metrics.RecordMerge(string(merge.SourcePush), string(merge.OutcomeStale))
			s.logger.Debug("dropped overtaken deferred pushes", map[string]interface{}{"tab": resp.Tab, "count": n})
		}
		st.Reset(resp.Orders)
		ids := make([]string, len(resp.Orders))
		for i, o := range resp.Orders {
			ids[i] = o.ID
		}
		s.badge.Seed(resp.Tab, resp.UnreadCount, ids)
		s.lastErr = nil
	} else {
		st.Append(resp.Orders)
	}
	s.publish()
}

func (s *Session) onEvent(ev push.Event) {
	switch ev.Type {
	case push.EventDisconnected:
		s.connected = false
		s.fail(ev.Err)
		s.publish()
		return
	case push.EventReconnected:
		s.connected = true
		if order.IsKind(s.lastErr, order.KindChannelDisconnect) {
			s.lastErr = nil
		}
		s.logger.Info("push channel back, refreshing", map[string]interface{}{"tab": s.pager.Active()})
		// missed events are not replayed; page 1 resynchronizes the list and badge
		s.refresh()
		s.publish()
		return
	}

	if !ev.Carries() {
		return
	}

	o := ev.Order
	if held, ok := s.find(o.ID); ok && !order.IsForward(held.Status, o.Status) {
		s.metrics.RecordMerge(string(merge.SourcePush), string(merge.OutcomeStale))
		s.logger.Debug("dropping stale push", map[string]interface{}{
			"order":    o.ID,
			"incoming": o.Status,
			"held":     held.Status,
		})
		return
	}

	if s.arrival(ev) {
		s.badge.Observe(order.TabFor(o.Status), o.ID)
	}
	s.apply(o, true)
	s.publish()
}

// arrival reports whether a push brings the actor an order to count as
// unread: a new order, or for a delivery partner an assignment to them.
func (s *Session) arrival(ev push.Event) bool {
	o := ev.Order
	if o.ReadBy(s.actor.Role) || !view.Relevant(o, s.actor) {
		return false
	}
	switch ev.Type {
	case push.EventNewOrder:
		return true
	case push.EventOrderAssigned:
		return s.actor.Role == order.RoleDeliveryPartner && o.AssignedTo(s.actor.ID)
	}
	return false
}

// overtaken reports whether the session holds o at a later status
func (s *Session) overtaken(o order.Order) bool {
	held, ok := s.find(o.ID)
	return ok && held.Status != o.Status && order.IsForward(o.Status, held.Status)
}

// apply routes an order to the store of its tab and every store still
// holding an older copy. Only the visible tab merges immediately; the others
// hold it until they are shown again.
func (s *Session) apply(o order.Order, pushed bool) {
	home := order.TabFor(o.Status)
	active := s.pager.Active()

	for _, tab := range order.Tabs {
		st := s.stores[tab]
		if tab != home && !st.Contains(o.ID) {
			continue
		}
		switch {
		case tab != active:
			st.Defer(o)
		case pushed:
			st.Push(o)
		default:
			st.Refresh(o)
		}
	}
}

// find merges every local copy of an order, deferred ones included
func (s *Session) find(id string) (order.Order, bool) {
	var (
		out   order.Order
		found bool
	)
	for _, tab := range order.Tabs {
		for _, o := range s.stores[tab].Copies(id) {
			if !found {
				out, found = o, true
				continue
			}
			if order.IsForward(out.Status, o.Status) {
				out, _ = merge.Fields(out, o)
			} else {
				out, _ = merge.Fields(o, out)
			}
		}
	}
	return out, found
}

func (s *Session) fail(err error) {
	if err == nil {
		return
	}
	visible := true
	var oerr *order.Error
	if errors.As(err, &oerr) {
		visible = oerr.Visible()
	}
	s.logger.Warn("operation failed", map[string]interface{}{"error": err.Error(), "kind": order.KindOf(err)})
	if visible {
		s.lastErr = err
	}
}

func (s *Session) snapshot() Snapshot {
	tab := s.pager.Active()
	st := s.pager.State(tab)
	return Snapshot{
		Tab:          tab,
		Orders:       view.ProjectAll(s.stores[tab].Orders(), s.actor, tab),
		Badges:       s.badge.Counts(),
		Page:         st.Page,
		TotalPages:   st.TotalPages,
		HasMore:      st.HasMore(),
		Loading:      st.InFlight,
		Search:       st.Search,
		Connected:    s.connected,
		PendingRetry: s.processor.Pending(),
		Err:          s.lastErr,
	}
}

// publish replaces any unread snapshot with the current one
func (s *Session) publish() {
	snap := s.snapshot()
	select {
	case s.updates <- snap:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}
