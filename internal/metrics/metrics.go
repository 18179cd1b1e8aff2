package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts cache reads answered locally, per cache.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weathervane_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	// CacheMisses counts cache reads that went to the network, per cache.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weathervane_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// CacheEvictions counts entries removed by sweeps, per cache.
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weathervane_cache_evictions_total",
			Help: "Total number of entries removed by cache sweeps",
		},
		[]string{"cache"},
	)

	// FetchAttempts counts individual provider call attempts.
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weathervane_fetch_attempts_total",
			Help: "Total number of provider fetch attempts",
		},
		[]string{"provider"},
	)

	// FetchRetries counts attempts beyond the first within one fetch.
	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weathervane_fetch_retries_total",
			Help: "Total number of provider fetch retries",
		},
		[]string{"provider"},
	)

	// FetchFailures counts terminal fetch failures by classified kind.
	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weathervane_fetch_failures_total",
			Help: "Total number of terminal fetch failures",
		},
		[]string{"provider", "kind"},
	)

	// FetchLatency tracks end-to-end fetch latency including retries.
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weathervane_fetch_latency_seconds",
			Help:    "Fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// NetworkOnline reports the last observed connectivity (1 online, 0 offline).
	NetworkOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "weathervane_network_online",
			Help: "Whether the network was online at the last observation",
		},
	)

	// NetworkDegraded reports the last observed link quality (1 degraded).
	NetworkDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "weathervane_network_degraded",
			Help: "Whether the link was degraded at the last observation",
		},
	)

	// NetworkTransitions counts material connectivity changes.
	NetworkTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weathervane_network_transitions_total",
			Help: "Total number of material network status changes",
		},
	)
)
