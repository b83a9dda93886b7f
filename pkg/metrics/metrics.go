// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels
const (
	OK      = "ok"
	Failed  = "failed"
	Timeout = "timeout"
)

// Metrics holds the harvesting pipeline counters. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ViewFetches    *prometheus.CounterVec // by view and outcome
	Lookups        *prometheus.CounterVec // by outcome
	HostsHarvested prometheus.Counter
	DiscoveryPages prometheus.Counter
	RowsDropped    *prometheus.CounterVec // by view
}

// New creates the pipeline metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ViewFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powerdnscout_view_fetches_total",
			Help: "Statistics view fetches by view and outcome",
		}, []string{"view", "outcome"}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powerdnscout_ownership_lookups_total",
			Help: "Ownership lookups by outcome",
		}, []string{"outcome"}),
		HostsHarvested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "powerdnscout_hosts_harvested_total",
			Help: "Resolver hosts harvested",
		}),
		DiscoveryPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "powerdnscout_discovery_pages_total",
			Help: "Search result pages fetched during discovery",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "powerdnscout_rows_dropped_total",
			Help: "Statistics table rows skipped by the parser",
		}, []string{"view"}),
	}

	if reg != nil {
		reg.MustRegister(m.ViewFetches, m.Lookups, m.HostsHarvested, m.DiscoveryPages, m.RowsDropped)
	}
	return m
}

// ViewFetched counts a statistics view fetch
func (m *Metrics) ViewFetched(view, outcome string) {
	if m == nil {
		return
	}
	m.ViewFetches.WithLabelValues(view, outcome).Inc()
}

// LookupDone counts an ownership lookup
func (m *Metrics) LookupDone(outcome string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(outcome).Inc()
}

// HostDone counts a harvested host
func (m *Metrics) HostDone() {
	if m == nil {
		return
	}
	m.HostsHarvested.Inc()
}

// PageFetched counts a discovery result page
func (m *Metrics) PageFetched() {
	if m == nil {
		return
	}
	m.DiscoveryPages.Inc()
}

// Dropped counts parser-skipped rows for a view
func (m *Metrics) Dropped(view string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsDropped.WithLabelValues(view).Add(float64(n))
}
