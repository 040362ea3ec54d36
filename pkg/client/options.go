package client

import (
	"github.com/rs/zerolog"

	"github.com/virtualheet/speedcast-api/pkg/cache"
)

// Option injects a collaborator into the client at construction time.
// Behavioral knobs (timeouts, retries, caching, rate limits) live on Config;
// options cover the pluggable pieces.
type Option func(*Client)

// WithTransport replaces the HTTP transport. The default is a plain
// *http.Client; tests inject fakes here.
func WithTransport(d Doer) Option {
	return func(c *Client) {
		c.transport = d
	}
}

// WithCacheStore replaces the default in-memory cache store, e.g. with
// cache.NewRedisStore for a Redis-backed cache.
func WithCacheStore(s cache.Store) Option {
	return func(c *Client) {
		c.store = s
	}
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDedupCondition overrides which methods are eligible for in-flight
// deduplication. The default admits GET, HEAD and OPTIONS only; coalescing
// concurrent mutating calls can silently drop writes, so widening this is an
// explicit opt-in.
func WithDedupCondition(fn func(method string) bool) Option {
	return func(c *Client) {
		c.dedupCondition = fn
	}
}

// WithRequestIDGenerator overrides the request ID generator used to tag log
// entries. Defaults to UUIDv4.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		c.idGen = gen
	}
}
