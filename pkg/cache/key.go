package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key identifies a cached response. Two requests are considered identical
// iff their Keys are equal: same method, same fully resolved URL and the
// same body bytes. Headers are excluded on purpose; callers that depend on
// header-varying responses must disable caching for those calls.
type Key struct {
	// Method is the HTTP method (GET, POST, ...).
	Method string

	// URL is the fully resolved request URL including query string.
	URL string

	// BodyHash is the hex-encoded SHA-256 of the request body, empty when
	// the request has no body.
	BodyHash string
}

// NewKey derives a Key from the request triple. The body must already be in
// canonical form; non-deterministically ordered payloads (e.g. maps
// serialized with random key order) degrade caching and deduplication to
// always-miss.
func NewKey(method, resolvedURL string, body []byte) Key {
	k := Key{
		Method: strings.ToUpper(method),
		URL:    resolvedURL,
	}
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		k.BodyHash = hex.EncodeToString(sum[:])
	}
	return k
}

// String renders the key in a deterministic storage format:
// speedcast:METHOD:url[:bodyhash]
func (k Key) String() string {
	parts := []string{"speedcast", k.Method, k.URL}
	if k.BodyHash != "" {
		parts = append(parts, k.BodyHash)
	}
	return strings.Join(parts, ":")
}
