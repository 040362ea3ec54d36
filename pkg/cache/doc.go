// Package cache provides TTL-bounded response caching for the speedcast
// client. Two Store implementations are included: a sharded in-memory store
// (the default) and a Redis-backed store for deployments that already run
// Redis. Keys are derived from method, resolved URL and body only; response
// headers never participate in key derivation.
package cache
