// Package metrics documents the Prometheus metrics exposed by speedcast.
// The metrics themselves are defined next to the code that drives them
// (pkg/client, pkg/cache, pkg/ratelimit) via promauto, which keeps the
// packages self-contained and avoids circular dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the registerer all speedcast metrics attach to.
var Registry = prometheus.DefaultRegisterer

// Metrics Reference
//
// Request metrics (pkg/client):
//   - speedcast_requests_total{method, status} (Counter): requests by final outcome
//   - speedcast_request_duration_seconds{method} (Histogram): logical request duration
//   - speedcast_errors_total{kind} (Counter): errors by kind (network, timeout, http_status, aborted)
//   - speedcast_dedup_joins_total{method} (Counter): requests coalesced onto an in-flight execution
//
// Retry metrics (pkg/client):
//   - speedcast_retries_total{kind} (Counter): retry attempts by error kind
//   - speedcast_retry_backoff_seconds{kind} (Histogram): backoff before retries
//   - speedcast_retry_exhausted_total{kind} (Counter): requests that ran out of retries
//
// Cache metrics (pkg/cache):
//   - speedcast_cache_hits_total{store} (Counter): hits by backend (memory, redis)
//   - speedcast_cache_misses_total{store} (Counter): misses by backend
//   - speedcast_cache_entries{store} (Gauge): live entries
//   - speedcast_cache_errors_total{store, operation} (Counter): backend errors
//
// Rate limit metrics (pkg/ratelimit):
//   - speedcast_ratelimit_admissions_total (Counter): admitted transport calls
//   - speedcast_ratelimit_waiting (Gauge): callers queued at the limiter
//   - speedcast_ratelimit_wait_seconds (Histogram): time spent queued
//
// Example queries:
//
//   # Cache hit rate
//   sum(rate(speedcast_cache_hits_total[5m])) /
//   (sum(rate(speedcast_cache_hits_total[5m])) + sum(rate(speedcast_cache_misses_total[5m])))
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(speedcast_request_duration_seconds_bucket[5m]))
//
//   # Retry pressure
//   rate(speedcast_retries_total[5m])
