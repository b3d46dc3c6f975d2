// Package telemetry keeps in-process query metrics for the health
// endpoint. Nothing is reported externally; the counters reset with the
// process.
package telemetry

import (
	"sort"
	"sync"
	"time"
)

// DefaultRingSize is the number of recent latencies retained for
// percentile estimates.
const DefaultRingSize = 512

// tierCount covers tiers 1 through 4; slot 0 absorbs invalid values.
const tierCount = 5

// Metrics accumulates query outcomes. Safe for concurrent use.
type Metrics struct {
	mu           sync.Mutex
	queries      int64
	failures     int64
	tokensServed int64
	perTier      [tierCount]int64
	latencies    []time.Duration
	next         int
	filled       bool
}

// NewMetrics creates a Metrics with the default latency ring.
func NewMetrics() *Metrics {
	return &Metrics{latencies: make([]time.Duration, 0, DefaultRingSize)}
}

// RecordQuery records one completed query.
func (m *Metrics) RecordQuery(tier, tokens int, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries++
	m.tokensServed += int64(tokens)
	if tier < 0 || tier >= tierCount {
		tier = 0
	}
	m.perTier[tier]++
	m.push(latency)
}

// RecordFailure records one failed query.
func (m *Metrics) RecordFailure(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries++
	m.failures++
	m.push(latency)
}

// push appends to the latency ring, overwriting the oldest entry once
// the ring is full. Caller holds the lock.
func (m *Metrics) push(latency time.Duration) {
	if len(m.latencies) < DefaultRingSize {
		m.latencies = append(m.latencies, latency)
		return
	}
	m.latencies[m.next] = latency
	m.next = (m.next + 1) % DefaultRingSize
	m.filled = true
}

// Snapshot is a point-in-time view of the metrics.
type Snapshot struct {
	Queries      int64            `json:"queries"`
	Failures     int64            `json:"failures"`
	TokensServed int64            `json:"tokens_served"`
	PerTier      map[string]int64 `json:"per_tier"`
	AvgLatencyMS int64            `json:"avg_latency_ms"`
	P95LatencyMS int64            `json:"p95_latency_ms"`
}

// Snapshot returns the current counters and latency summary.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Queries:      m.queries,
		Failures:     m.failures,
		TokensServed: m.tokensServed,
		PerTier:      make(map[string]int64, 4),
	}
	labels := [tierCount]string{"unknown", "tier_1", "tier_2", "tier_3", "tier_4"}
	for i, n := range m.perTier {
		if n > 0 {
			snap.PerTier[labels[i]] = n
		}
	}

	if len(m.latencies) == 0 {
		return snap
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	snap.AvgLatencyMS = (total / time.Duration(len(sorted))).Milliseconds()
	snap.P95LatencyMS = sorted[(len(sorted)*95)/100].Milliseconds()
	return snap
}
