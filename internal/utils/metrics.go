package utils

import (
	"sync"
	"time"
)

// Metrics tracks sync session metrics
type Metrics struct {
	mu sync.RWMutex

	// API call metrics
	apiCalls     map[string]int
	apiSuccesses map[string]int
	apiFailures  map[string]int
	apiDurations map[string][]time.Duration

	// merge outcomes keyed by "source/outcome"
	merges map[string]int

	// push events keyed by event type
	pushEvents map[string]int

	fetchesIssued    int
	fetchesDiscarded int
	disconnects      int
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		apiCalls:     make(map[string]int),
		apiSuccesses: make(map[string]int),
		apiFailures:  make(map[string]int),
		apiDurations: make(map[string][]time.Duration),
		merges:       make(map[string]int),
		pushEvents:   make(map[string]int),
	}
}

// RecordAPICall records an API call
func (m *Metrics) RecordAPICall(endpoint string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.apiCalls[endpoint]++
	if success {
		m.apiSuccesses[endpoint]++
	} else {
		m.apiFailures[endpoint]++
	}

	m.apiDurations[endpoint] = append(m.apiDurations[endpoint], duration)
}

// RecordMerge records the outcome of applying one order to a sequence
func (m *Metrics) RecordMerge(source, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.merges[source+"/"+outcome]++
}

// RecordPushEvent records a push event by type
func (m *Metrics) RecordPushEvent(eventType string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pushEvents[eventType]++
}

// RecordFetch records a page fetch being issued or its response discarded
func (m *Metrics) RecordFetch(discarded bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if discarded {
		m.fetchesDiscarded++
	} else {
		m.fetchesIssued++
	}
}

// RecordDisconnect increments the push channel disconnect counter
func (m *Metrics) RecordDisconnect() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.disconnects++
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := MetricsSnapshot{
		APICalls:         make(map[string]APIMetrics),
		Merges:           make(map[string]int),
		PushEvents:       make(map[string]int),
		FetchesIssued:    m.fetchesIssued,
		FetchesDiscarded: m.fetchesDiscarded,
		Disconnects:      m.disconnects,
	}

	// Copy API metrics
	for endpoint := range m.apiCalls {
		snapshot.APICalls[endpoint] = APIMetrics{
			TotalCalls:      m.apiCalls[endpoint],
			SuccessfulCalls: m.apiSuccesses[endpoint],
			FailedCalls:     m.apiFailures[endpoint],
			AvgDuration:     calculateAverage(m.apiDurations[endpoint]),
			MaxDuration:     calculateMax(m.apiDurations[endpoint]),
		}
	}

	for k, v := range m.merges {
		snapshot.Merges[k] = v
	}
	for k, v := range m.pushEvents {
		snapshot.PushEvents[k] = v
	}

	return snapshot
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	APICalls         map[string]APIMetrics
	Merges           map[string]int
	PushEvents       map[string]int
	FetchesIssued    int
	FetchesDiscarded int
	Disconnects      int
}

// APIMetrics represents metrics for a specific API endpoint
type APIMetrics struct {
	TotalCalls      int
	SuccessfulCalls int
	FailedCalls     int
	AvgDuration     time.Duration
	MaxDuration     time.Duration
}

// Fields flattens the snapshot for the structured logger
func (s MetricsSnapshot) Fields() map[string]interface{} {
	calls := 0
	failures := 0
	for _, api := range s.APICalls {
		calls += api.TotalCalls
		failures += api.FailedCalls
	}
	return map[string]interface{}{
		"apiCalls":         calls,
		"apiFailures":      failures,
		"merges":           s.Merges,
		"pushEvents":       s.PushEvents,
		"fetchesIssued":    s.FetchesIssued,
		"fetchesDiscarded": s.FetchesDiscarded,
		"disconnects":      s.Disconnects,
	}
}

func calculateAverage(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	return total / time.Duration(len(durations))
}

func calculateMax(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	max := durations[0]
	for _, d := range durations[1:] {
		if d > max {
			max = d
		}
	}

	return max
}
