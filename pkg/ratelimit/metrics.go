package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	admissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speedcast_ratelimit_admissions_total",
		Help: "Total number of requests admitted by the rate limiter",
	})

	waitersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speedcast_ratelimit_waiting",
		Help: "Number of requests currently queued at the rate limiter",
	})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speedcast_ratelimit_wait_seconds",
		Help:    "Time spent waiting for rate limit admission",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
)
