// Package store holds the order sequence of one (actor, tab) context.
package store

import (
	"ordersync/internal/merge"
	"ordersync/internal/order"
)

// Store owns the sequence for one tab of one actor. It is not safe for
// concurrent use; the session loop is its only writer.
type Store struct {
	actor  order.Actor
	tab    order.Tab
	engine *merge.Engine
	seq    *merge.Sequence

	// pushes received while the tab was not visible
	deferred []order.Order

	// pushes received while a page-1 fetch was outstanding
	replay    []order.Order
	recording bool
}

// New creates an empty store
func New(actor order.Actor, tab order.Tab, engine *merge.Engine) *Store {
	return &Store{
		actor:  actor,
		tab:    tab,
		engine: engine,
		seq:    merge.NewSequence(),
	}
}

// Tab returns the tab this store belongs to
func (s *Store) Tab() order.Tab {
	return s.tab
}

// Actor returns the owner of this store
func (s *Store) Actor() order.Actor {
	return s.actor
}

// Clear drops every order and pending push, as a tab switch does
func (s *Store) Clear() {
	s.seq.Reset(nil)
	s.replay = nil
	s.recording = false
}

// BeginReset starts recording pushes so they survive the next Reset
func (s *Store) BeginReset() {
	s.recording = true
	s.replay = nil
}

// AbortReset stops recording after a failed page-1 fetch. Recorded pushes
// were already merged, so the sequence is left as is.
func (s *Store) AbortReset() {
	s.recording = false
	s.replay = nil
}

// Reset replaces the sequence with a fresh first page, then re-applies the
// pushes received since BeginReset and any deferred pushes.
func (s *Store) Reset(page []order.Order) {
	s.seq.Reset(page)

	pending := append(s.replay, s.deferred...)
	s.replay = nil
	s.deferred = nil
	s.recording = false

	s.engine.ApplyAll(s.seq, pending, merge.SourcePush)
}

// Append merges a later page
func (s *Store) Append(page []order.Order) {
	s.engine.ApplyAll(s.seq, page, merge.SourceSnapshot)
}

// Push merges a pushed order into the visible sequence
func (s *Store) Push(o order.Order) merge.Outcome {
	if s.recording {
		s.replay = append(s.replay, o.Clone())
	}
	return s.engine.Apply(s.seq, o, merge.SourcePush)
}

// Defer holds a push for a tab that is not visible
func (s *Store) Defer(o order.Order) {
	s.deferred = append(s.deferred, o.Clone())
}

// Flush merges deferred pushes into the sequence
func (s *Store) Flush() {
	pending := s.deferred
	s.deferred = nil
	s.engine.ApplyAll(s.seq, pending, merge.SourcePush)
}

// DropDeferred discards waiting pushes for which stale reports true
func (s *Store) DropDeferred(stale func(order.Order) bool) int {
	kept := make([]order.Order, 0, len(s.deferred))
	dropped := 0
	for _, o := range s.deferred {
		if stale(o) {
			dropped++
			continue
		}
		kept = append(kept, o)
	}
	s.deferred = kept
	return dropped
}

// Deferred returns how many pushes are waiting
func (s *Store) Deferred() int {
	return len(s.deferred)
}

// HasDeferred reports whether an order id is waiting in the deferred buffer
func (s *Store) HasDeferred(id string) bool {
	for _, o := range s.deferred {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Refresh merges a canonical order fetched after a mutation
func (s *Store) Refresh(o order.Order) merge.Outcome {
	if s.recording {
		s.replay = append(s.replay, o.Clone())
	}
	return s.engine.Apply(s.seq, o, merge.SourceRefresh)
}

// Copies returns every copy of an order the store holds, in the sequence
// or waiting in the deferred buffer
func (s *Store) Copies(id string) []order.Order {
	var out []order.Order
	if o, ok := s.seq.Get(id); ok {
		out = append(out, o)
	}
	for _, o := range s.deferred {
		if o.ID == id {
			out = append(out, o.Clone())
		}
	}
	return out
}

// Contains reports whether the order is in the sequence
func (s *Store) Contains(id string) bool {
	return s.seq.Contains(id)
}

// Get returns a copy of an order held by the store
func (s *Store) Get(id string) (order.Order, bool) {
	return s.seq.Get(id)
}

// Orders returns the sequence in display order
func (s *Store) Orders() []order.Order {
	return s.seq.Orders()
}

// Len returns the number of orders held
func (s *Store) Len() int {
	return s.seq.Len()
}
