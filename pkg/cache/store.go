package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found or was expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the caching backend used by the client. Implementations must be
// safe for concurrent use and must never return an expired entry from Get;
// expired entries are evicted lazily on read.
type Store interface {
	// Get returns the entry for key, or ErrCacheMiss when absent or expired.
	Get(ctx context.Context, key Key) (*Entry, error)

	// Set stores or overwrites the entry. The entry's CachedAt/ExpiresAt
	// fields are stamped from the current time and ttl.
	Set(ctx context.Context, key Key, entry *Entry, ttl time.Duration) error

	// Delete removes a single entry.
	Delete(ctx context.Context, key Key) error

	// Clear removes all entries, used for explicit invalidation.
	Clear(ctx context.Context) error
}
