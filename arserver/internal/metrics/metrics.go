// Package metrics defines ARServer's prometheus collectors. The teacher
// requires prometheus/client_golang in go.mod but never registers a single
// collector with it; this package is where ARCOR2 actually exercises that
// dependency — connected UI/Manager clients, lock-table size, catalog
// cache hit/miss, and RPC latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector ARServer registers.
type Metrics struct {
	ConnectedClients prometheus.Gauge
	LockTableSize    prometheus.Gauge
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	RPCDuration      *prometheus.HistogramVec
	RPCErrors        *prometheus.CounterVec
}

// New registers every collector against reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "arserver",
			Name:      "connected_clients",
			Help:      "Number of currently connected UI websocket clients.",
		}),
		LockTableSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "arserver",
			Name:      "lock_table_entries",
			Help:      "Number of objects currently holding a read or write lock.",
		}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arserver",
			Name:      "catalog_cache_hits_total",
			Help:      "Catalog cache hits by entity kind.",
		}, []string{"kind"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arserver",
			Name:      "catalog_cache_misses_total",
			Help:      "Catalog cache misses by entity kind.",
		}, []string{"kind"}),
		RPCDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arserver",
			Name:      "rpc_duration_seconds",
			Help:      "RPC handler latency by request name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"request"}),
		RPCErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arserver",
			Name:      "rpc_errors_total",
			Help:      "RPC handler failures by request name.",
		}, []string{"request"}),
	}
}
