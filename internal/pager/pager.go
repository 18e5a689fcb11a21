// Package pager tracks per-tab pagination and search state and decides
// which page fetches may be issued.
package pager

import (
	"math"

	"ordersync/internal/order"
)

// SortDirection orders a page by creation time
type SortDirection string

const (
	SortDesc SortDirection = "desc"
	SortAsc  SortDirection = "asc"
)

// Request describes one page fetch
type Request struct {
	Tab        order.Tab
	Page       int
	Limit      int
	Search     string
	Sort       SortDirection
	Generation uint64
}

// Response is the result of a page fetch
type Response struct {
	Request
	Orders      []order.Order
	TotalPages  int
	UnreadCount int
	Err         error
}

// State is the pagination context of one tab
type State struct {
	Tab        order.Tab
	Page       int
	TotalPages int
	Search     string
	Sort       SortDirection
	InFlight   bool
	Err        error

	inflightPage   int
	inflightSearch string
	inflightSort   SortDirection
	generation     uint64
}

// HasMore reports whether another page can be loaded
func (s State) HasMore() bool {
	return s.Page == 0 || s.Page < s.TotalPages
}

// Options configures a Controller
type Options struct {
	PageSize          int
	Sort              SortDirection
	LoadMoreThreshold float64
}

// Controller owns the pagination state of every tab of one actor. It does
// no I/O: callers execute the requests it hands out and report back through
// Complete. Not safe for concurrent use.
type Controller struct {
	opts   Options
	active order.Tab
	states map[order.Tab]*State
}

// NewController creates a controller with defaults applied
func NewController(opts Options) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.Sort == "" {
		opts.Sort = SortDesc
	}
	if opts.LoadMoreThreshold <= 0 || opts.LoadMoreThreshold >= 1 {
		opts.LoadMoreThreshold = 0.3
	}
	return &Controller{
		opts:   opts,
		states: make(map[order.Tab]*State),
	}
}

func (c *Controller) state(tab order.Tab) *State {
	st, ok := c.states[tab]
	if !ok {
		st = &State{Tab: tab, Sort: c.opts.Sort}
		c.states[tab] = st
	}
	return st
}

// Active returns the visible tab
func (c *Controller) Active() order.Tab {
	return c.active
}

// State returns a copy of a tab's pagination state
func (c *Controller) State(tab order.Tab) State {
	return *c.state(tab)
}

// Activate switches to a tab and resets its context to page 1. A fetch in
// flight for another tab is left alone; its response is discarded on arrival.
func (c *Controller) Activate(tab order.Tab) Request {
	c.active = tab
	st := c.state(tab)
	st.Page = 0
	st.TotalPages = 0
	st.Err = nil
	req, _ := c.first(st, true)
	return req
}

// Refresh re-fetches page 1 of the active tab. It returns false when an
// identical page-1 fetch is already in flight.
func (c *Controller) Refresh() (Request, bool) {
	return c.first(c.state(c.active), false)
}

// SetSearch changes the search text of the active tab and restarts at page 1
func (c *Controller) SetSearch(text string) (Request, bool) {
	st := c.state(c.active)
	if st.Search == text && st.Page > 0 {
		return Request{}, false
	}
	st.Search = text
	return c.first(st, false)
}

// SetSort changes the sort direction of the active tab and restarts at page 1
func (c *Controller) SetSort(dir SortDirection) (Request, bool) {
	st := c.state(c.active)
	st.Sort = dir
	return c.first(st, false)
}

// first begins a destructive page-1 fetch, superseding any outstanding one
// unless an identical page-1 fetch is already in flight.
func (c *Controller) first(st *State, force bool) (Request, bool) {
	if !force && st.InFlight && st.inflightPage == 1 &&
		st.inflightSearch == st.Search && st.inflightSort == st.Sort {
		return Request{}, false
	}
	st.generation++
	return c.begin(st, 1), true
}

// LoadMore begins the next page of the active tab if one exists and nothing
// is in flight for the tab.
func (c *Controller) LoadMore() (Request, bool) {
	st := c.state(c.active)
	if st.InFlight || !st.HasMore() {
		return Request{}, false
	}
	if st.Page == 0 {
		st.generation++
	}
	return c.begin(st, st.Page+1), true
}

// ShouldLoadMore reports whether the consumer has scrolled into the trailing
// threshold of the rendered list and a next page can be fetched.
func (c *Controller) ShouldLoadMore(rendered, lastVisible int) bool {
	st := c.state(c.active)
	if st.InFlight || !st.HasMore() {
		return false
	}
	if rendered == 0 {
		return true
	}
	trigger := int(math.Ceil(float64(rendered) * (1 - c.opts.LoadMoreThreshold)))
	return lastVisible+1 >= trigger
}

func (c *Controller) begin(st *State, page int) Request {
	st.InFlight = true
	st.inflightPage = page
	st.inflightSearch = st.Search
	st.inflightSort = st.Sort
	return Request{
		Tab:        st.Tab,
		Page:       page,
		Limit:      c.opts.PageSize,
		Search:     st.Search,
		Sort:       st.Sort,
		Generation: st.generation,
	}
}

// Complete records a response. It returns false when the response must be
// discarded: superseded by a newer request, or for a tab no longer visible.
func (c *Controller) Complete(resp Response) bool {
	st := c.state(resp.Tab)
	if resp.Generation != st.generation || !st.InFlight || resp.Page != st.inflightPage {
		return false
	}

	st.InFlight = false
	st.inflightPage = 0

	if resp.Tab != c.active {
		return false
	}

	if resp.Err != nil {
		st.Err = resp.Err
		return true
	}

	st.Err = nil
	st.Page = resp.Page
	st.TotalPages = resp.TotalPages
	return true
}
