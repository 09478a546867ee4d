package observability

import (
	"sort"
	"sync"
	"time"
)

// Metrics collects try-on outcome metrics.
type Metrics interface {
	RecordOutcome(labels OutcomeLabels, duration time.Duration)
	Snapshot() []OutcomeStat
}

// OutcomeLabels contains metric dimensions.
type OutcomeLabels struct {
	Vendor string
	// Stage is empty for successful outcomes.
	Stage string
}

// OutcomeStat is one aggregated row of the metrics snapshot.
type OutcomeStat struct {
	Vendor      string  `json:"vendor"`
	Outcome     string  `json:"outcome"`
	Stage       string  `json:"stage,omitempty"`
	Count       int64   `json:"count"`
	TotalMillis int64   `json:"total_ms"`
	AvgMillis   float64 `json:"avg_ms"`
}

type outcomeCounter struct {
	count int64
	total time.Duration
}

// InMemoryMetrics is a mutex guarded Metrics implementation.
type InMemoryMetrics struct {
	mu       sync.Mutex
	counters map[OutcomeLabels]*outcomeCounter
}

// NewInMemoryMetrics creates an empty collector
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{counters: make(map[OutcomeLabels]*outcomeCounter)}
}

// RecordOutcome adds one outcome observation
func (m *InMemoryMetrics) RecordOutcome(labels OutcomeLabels, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[labels]
	if !ok {
		c = &outcomeCounter{}
		m.counters[labels] = c
	}
	c.count++
	c.total += duration
}

// Snapshot returns the counters ordered by vendor, then stage
func (m *InMemoryMetrics) Snapshot() []OutcomeStat {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make([]OutcomeStat, 0, len(m.counters))
	for labels, c := range m.counters {
		outcome := "success"
		if labels.Stage != "" {
			outcome = "failure"
		}
		stat := OutcomeStat{
			Vendor:      labels.Vendor,
			Outcome:     outcome,
			Stage:       labels.Stage,
			Count:       c.count,
			TotalMillis: c.total.Milliseconds(),
		}
		if c.count > 0 {
			stat.AvgMillis = float64(stat.TotalMillis) / float64(c.count)
		}
		stats = append(stats, stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Vendor != stats[j].Vendor {
			return stats[i].Vendor < stats[j].Vendor
		}
		return stats[i].Stage < stats[j].Stage
	})
	return stats
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordOutcome(OutcomeLabels, time.Duration) {}
func (NopMetrics) Snapshot() []OutcomeStat                    { return nil }
