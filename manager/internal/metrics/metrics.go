// Package metrics defines the Execution Manager's prometheus collectors,
// grounded in arserver/internal/metrics' promauto convention: current run
// state as a gauge and completed/failed run counts, exposed on the
// Manager's own /metrics endpoint (SPEC_FULL.md §3).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the Manager registers.
type Metrics struct {
	RunState       *prometheus.GaugeVec
	RunsCompleted  prometheus.Counter
	RunsFailed     prometheus.Counter
	ConnectedLinks prometheus.Gauge
}

// New registers every collector against reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arcor2_manager",
			Name:      "package_run_state",
			Help:      "1 for the package run state currently active, 0 otherwise, labeled by state name.",
		}, []string{"state"}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arcor2_manager",
			Name:      "runs_completed_total",
			Help:      "Number of execution package runs that reached Stopped without a ProjectException.",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arcor2_manager",
			Name:      "runs_failed_total",
			Help:      "Number of execution package runs that ended via a ProjectException.",
		}),
		ConnectedLinks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "arcor2_manager",
			Name:      "connected_links",
			Help:      "Number of currently connected controlling ARServer links.",
		}),
	}
}

// SetState zeroes every other state gauge and sets state to 1, giving a
// single-sample-per-scrape view of "what state is the Manager in right now".
func (m *Metrics) SetState(active string) {
	for _, s := range []string{"undefined", "starting", "running", "paused", "stopping", "stopped"} {
		if s == active {
			m.RunState.WithLabelValues(s).Set(1)
		} else {
			m.RunState.WithLabelValues(s).Set(0)
		}
	}
}
