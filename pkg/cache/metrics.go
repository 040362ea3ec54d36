package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by store backend.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedcast_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"store"}, // "memory", "redis"
	)

	// CacheMisses tracks cache misses by store backend.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedcast_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"store"},
	)

	// CacheEntries tracks the current number of live entries.
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "speedcast_cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"store"},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedcast_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"store", "operation"}, // "get", "set", "delete", "clear"
	)
)
