package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the identity feature's Prometheus metrics.
type Metrics struct {
	IdentitiesCreated prometheus.Counter
	IdentitiesDeleted prometheus.Counter
	SwitchesTotal     prometheus.Counter
	SwitchFailures    prometheus.Counter
	RollbacksTotal    prometheus.Counter
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	CacheEvictions    prometheus.Counter
	AdapterDuration   *prometheus.HistogramVec
}

// New creates and registers all identity metrics.
func New() *Metrics {
	return &Metrics{
		IdentitiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "persona_identities_created_total",
			Help: "Total sub-identities created.",
		}),
		IdentitiesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "persona_identities_deleted_total",
			Help: "Total identities removed, descendants included.",
		}),
		SwitchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "persona_identity_switches_total",
			Help: "Total switch attempts.",
		}),
		SwitchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "persona_identity_switch_failures_total",
			Help: "Switch attempts that ended in rollback or rejection.",
		}),
		RollbacksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "persona_identity_rollbacks_total",
			Help: "Rollback sequences executed after a critical module failure.",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "persona_identity_cache_hits_total",
			Help: "Identity cache hits across both tiers.",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "persona_identity_cache_misses_total",
			Help: "Identity cache misses.",
		}),
		CacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "persona_identity_cache_evictions_total",
			Help: "Entries evicted by TTL expiry or capacity pressure.",
		}),
		AdapterDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "persona_module_adapter_duration_seconds",
			Help:    "Module adapter apply latency by module.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"module"}),
	}
}
