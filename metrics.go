package authgate

import "sync/atomic"

// MetricID identifies one counter in the in-process metrics system.
type MetricID uint16

const (
	// MetricLoginSuccess counts password-only logins that finalized a session.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts wrong-password submissions.
	MetricLoginFailure
	// MetricLoginUnknownIdentity counts submissions for emails with no account.
	MetricLoginUnknownIdentity
	// MetricMFARequired counts escalations into the MFA branch, both opt-in
	// and failure-triggered.
	MetricMFARequired
	// MetricMFAEscalated counts only failure-triggered escalations.
	MetricMFAEscalated
	// MetricMFASuccess counts completed MFA logins.
	MetricMFASuccess
	// MetricMFAFailure counts rejected token submissions.
	MetricMFAFailure
	// MetricMFASessionExpired counts token submissions with no pending
	// session left.
	MetricMFASessionExpired
	// MetricTokenIssued counts one-time tokens generated and dispatched.
	MetricTokenIssued
	// MetricLogout counts explicit logouts.
	MetricLogout

	metricIDCount
)

// Metrics holds atomic counters. All operations are no-ops when disabled,
// so call sites never branch.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a Metrics instance configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot deep-copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
