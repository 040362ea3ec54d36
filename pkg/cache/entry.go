package cache

import (
	"net/http"
	"time"
)

// Entry represents a cached response.
type Entry struct {
	// Body is the response body.
	Body []byte `json:"body"`

	// StatusCode is the HTTP status code of the cached response.
	StatusCode int `json:"status_code"`

	// Status is the textual status (e.g. "OK").
	Status string `json:"status"`

	// Header holds the response headers.
	Header http.Header `json:"header"`

	// CachedAt is when the response was stored.
	CachedAt time.Time `json:"cached_at"`

	// ExpiresAt is when the entry becomes stale.
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true once the entry has passed its expiry time.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.ExpiresAt)
}

// TTL returns the remaining time until expiry, 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}
