package client

import "time"

// Built-in fallback defaults, used when neither the instance configuration
// nor the per-call options set a value.
const (
	defaultTimeout        = 10 * time.Second
	defaultMaxRetries     = 3
	defaultCacheTTL       = 5 * time.Minute
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
)

// RateLimitConfig bounds the number of transport calls admitted within a
// sliding window. A nil RateLimitConfig means unlimited.
type RateLimitConfig struct {
	// Requests is the maximum number of admissions per window.
	Requests int

	// Window is the sliding window duration.
	Window time.Duration
}

// Config holds instance-level client defaults. Every field can be overridden
// per call through RequestOptions where that makes sense.
type Config struct {
	// BaseURL is prepended to relative request paths. Absolute request URLs
	// are used as-is.
	BaseURL string

	// Timeout bounds each individual attempt, not the whole retry sequence.
	Timeout time.Duration

	// DefaultHeaders are sent with every request. Per-call headers are merged
	// over them key-wise; they never replace the map wholesale.
	DefaultHeaders map[string]string

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// CacheEnabled turns response caching on for idempotent requests.
	CacheEnabled bool

	// CacheTTL is how long cached responses stay fresh.
	CacheTTL time.Duration

	// RateLimit throttles outbound attempts, nil for unlimited.
	RateLimit *RateLimitConfig

	// InitialBackoff is the base for exponential retry backoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the computed backoff delay.
	MaxBackoff time.Duration

	// Jitter adds up to this fraction of uniform random delay on top of each
	// backoff, in [0, 1). Zero keeps delays strictly deterministic.
	Jitter float64
}

// DefaultConfig returns a configuration with the built-in defaults: 10s
// timeout, 3 retries, caching disabled, 5m cache TTL, no rate limit.
func DefaultConfig() Config {
	return Config{
		Timeout:        defaultTimeout,
		MaxRetries:     defaultMaxRetries,
		CacheEnabled:   false,
		CacheTTL:       defaultCacheTTL,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

// RequestOptions are per-call overrides. Nil pointer fields inherit the
// instance configuration; set fields win.
type RequestOptions struct {
	Timeout  *time.Duration
	Retries  *int
	Cache    *bool
	CacheTTL *time.Duration

	// Headers are merged over the instance default headers, overriding only
	// the keys they name.
	Headers map[string]string
}

// effectiveConfig is the merged, per-request view of the configuration. It is
// computed once per request and never shared or mutated afterwards.
type effectiveConfig struct {
	baseURL        string
	timeout        time.Duration
	headers        map[string]string
	maxRetries     int
	cacheEnabled   bool
	cacheTTL       time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	jitter         float64
}

// resolve merges per-call options over instance defaults over built-in
// fallbacks. Pure function: neither input is modified.
func resolve(cfg Config, opts *RequestOptions) effectiveConfig {
	eff := effectiveConfig{
		baseURL:        cfg.BaseURL,
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		cacheEnabled:   cfg.CacheEnabled,
		cacheTTL:       cfg.CacheTTL,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		jitter:         cfg.Jitter,
	}

	if eff.timeout <= 0 {
		eff.timeout = defaultTimeout
	}
	if eff.maxRetries < 0 {
		eff.maxRetries = defaultMaxRetries
	}
	if eff.cacheTTL <= 0 {
		eff.cacheTTL = defaultCacheTTL
	}
	if eff.initialBackoff <= 0 {
		eff.initialBackoff = defaultInitialBackoff
	}
	if eff.maxBackoff < eff.initialBackoff {
		eff.maxBackoff = defaultMaxBackoff
	}

	eff.headers = make(map[string]string, len(cfg.DefaultHeaders))
	for k, v := range cfg.DefaultHeaders {
		eff.headers[k] = v
	}

	if opts != nil {
		if opts.Timeout != nil && *opts.Timeout > 0 {
			eff.timeout = *opts.Timeout
		}
		if opts.Retries != nil && *opts.Retries >= 0 {
			eff.maxRetries = *opts.Retries
		}
		if opts.Cache != nil {
			eff.cacheEnabled = *opts.Cache
		}
		if opts.CacheTTL != nil && *opts.CacheTTL > 0 {
			eff.cacheTTL = *opts.CacheTTL
		}
		for k, v := range opts.Headers {
			eff.headers[k] = v
		}
	}

	return eff
}

// Helpers for building RequestOptions literals without intermediate
// variables.

// Duration returns a pointer to d.
func Duration(d time.Duration) *time.Duration { return &d }

// Int returns a pointer to n.
func Int(n int) *int { return &n }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }
