package merge

import (
	"ordersync/internal/order"
	"ordersync/internal/utils"
)

// Engine applies orders to sequences and records what it did. Stale writes
// are logged and counted but never surfaced to the actor.
type Engine struct {
	logger  *utils.Logger
	metrics *utils.Metrics
}

// NewEngine creates a merge engine
func NewEngine(logger *utils.Logger, metrics *utils.Metrics) *Engine {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Engine{
		logger:  logger.With("merge", nil),
		metrics: metrics,
	}
}

// Apply merges one order into seq
func (e *Engine) Apply(seq *Sequence, incoming order.Order, src Source) Outcome {
	var held order.Status
	if existing, ok := seq.Get(incoming.ID); ok {
		held = existing.Status
	}

	outcome := seq.Merge(incoming, src)
	e.metrics.RecordMerge(string(src), string(outcome))

	if outcome == OutcomeStale {
		stale := order.Errorf(order.KindStaleWrite, "merge", incoming.ID,
			"incoming %s is behind held %s", incoming.Status, held)
		e.logger.Debug("Discarded stale status", map[string]interface{}{
			"orderID": incoming.ID,
			"source":  string(src),
			"error":   stale.Error(),
		})
	}

	return outcome
}

// ApplyAll merges a batch in order and returns how many were stale
func (e *Engine) ApplyAll(seq *Sequence, incoming []order.Order, src Source) int {
	stale := 0
	for _, o := range incoming {
		if e.Apply(seq, o, src) == OutcomeStale {
			stale++
		}
	}
	return stale
}
