package reconciler

import (
	"sort"
	"sync"
	"time"

	"buildwarden/pkg/logging"
)

// Metrics counts passes per domain.
type Metrics struct {
	mu      sync.RWMutex
	domains map[Domain]*domainMetrics
}

type domainMetrics struct {
	Attempts        int64
	Successes       int64
	Failures        int64
	Busy            int64
	LastReconcileAt time.Time
	LastSuccessAt   time.Time
	LastFailureAt   time.Time
	LastDuration    time.Duration
}

// NewMetrics creates an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{domains: make(map[Domain]*domainMetrics)}
}

func (m *Metrics) domain(d Domain) *domainMetrics {
	dm, ok := m.domains[d]
	if !ok {
		dm = &domainMetrics{}
		m.domains[d] = dm
	}
	return dm
}

// RecordAttempt records the start of a pass.
func (m *Metrics) RecordAttempt(d Domain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dm := m.domain(d)
	dm.Attempts++
	dm.LastReconcileAt = time.Now()
}

// RecordSuccess records a converged pass.
func (m *Metrics) RecordSuccess(d Domain, took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dm := m.domain(d)
	dm.Successes++
	dm.LastSuccessAt = time.Now()
	dm.LastDuration = took
}

// RecordBusy records a pass deferred because the remote workload was busy.
func (m *Metrics) RecordBusy(d Domain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domain(d).Busy++
}

// RecordFailure records a failed pass.
func (m *Metrics) RecordFailure(d Domain, took time.Duration, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dm := m.domain(d)
	dm.Failures++
	dm.LastFailureAt = time.Now()
	dm.LastDuration = took

	logging.Debug("ReconcilerMetrics", "%s pass failed (failures: %d): %s", d, dm.Failures, reason)
}

// DomainMetricView is a read-only view of one domain's counters.
type DomainMetricView struct {
	Domain          Domain        `json:"domain"`
	Attempts        int64         `json:"attempts"`
	Successes       int64         `json:"successes"`
	Failures        int64         `json:"failures"`
	Busy            int64         `json:"busy"`
	LastReconcileAt time.Time     `json:"last_reconcile_at,omitempty"`
	LastSuccessAt   time.Time     `json:"last_success_at,omitempty"`
	LastFailureAt   time.Time     `json:"last_failure_at,omitempty"`
	LastDuration    time.Duration `json:"last_duration"`
}

// MetricsSummary aggregates all domains.
type MetricsSummary struct {
	TotalAttempts  int64              `json:"total_attempts"`
	TotalSuccesses int64              `json:"total_successes"`
	TotalFailures  int64              `json:"total_failures"`
	TotalBusy      int64              `json:"total_busy"`
	FailureRate    float64            `json:"failure_rate"`
	Domains        []DomainMetricView `json:"domains"`
}

// Domain returns the counters of d.
func (m *Metrics) Domain(d Domain) (DomainMetricView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dm, ok := m.domains[d]
	if !ok {
		return DomainMetricView{}, false
	}
	return view(d, dm), true
}

// Summary returns all counters, domains sorted by name.
func (m *Metrics) Summary() MetricsSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s MetricsSummary
	for d, dm := range m.domains {
		s.TotalAttempts += dm.Attempts
		s.TotalSuccesses += dm.Successes
		s.TotalFailures += dm.Failures
		s.TotalBusy += dm.Busy
		s.Domains = append(s.Domains, view(d, dm))
	}
	sort.Slice(s.Domains, func(i, j int) bool { return s.Domains[i].Domain < s.Domains[j].Domain })
	if s.TotalAttempts > 0 {
		s.FailureRate = float64(s.TotalFailures) / float64(s.TotalAttempts)
	}
	return s
}

func view(d Domain, dm *domainMetrics) DomainMetricView {
	return DomainMetricView{
		Domain:          d,
		Attempts:        dm.Attempts,
		Successes:       dm.Successes,
		Failures:        dm.Failures,
		Busy:            dm.Busy,
		LastReconcileAt: dm.LastReconcileAt,
		LastSuccessAt:   dm.LastSuccessAt,
		LastFailureAt:   dm.LastFailureAt,
		LastDuration:    dm.LastDuration,
	}
}
