// Package client provides the speedcast request-execution core: a resilient
// HTTP client that layers response caching, in-flight deduplication,
// sliding-window rate limiting and retry with exponential backoff around an
// injected transport.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/virtualheet/speedcast-api/internal/flight"
	"github.com/virtualheet/speedcast-api/pkg/cache"
	"github.com/virtualheet/speedcast-api/pkg/logging"
	"github.com/virtualheet/speedcast-api/pkg/ratelimit"
)

// Prometheus metrics for request execution.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedcast_requests_total",
		Help: "Total requests by method and final status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speedcast_request_duration_seconds",
		Help:    "Logical request duration in seconds by method",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedcast_errors_total",
		Help: "Total errors by kind",
	}, []string{"kind"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedcast_retries_total",
		Help: "Total retry attempts by error kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speedcast_retry_backoff_seconds",
		Help:    "Backoff duration before retries by error kind",
		Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedcast_retry_exhausted_total",
		Help: "Total requests that exhausted their retry budget by error kind",
	}, []string{"kind"})

	dedupJoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedcast_dedup_joins_total",
		Help: "Total requests coalesced onto an in-flight execution",
	}, []string{"method"})
)

// maxResponseBytes caps how much of a response body is read into memory.
const maxResponseBytes = 10 * 1024 * 1024

// Doer abstracts the HTTP transport. *http.Client satisfies it; tests and
// integrations inject their own.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Response is the typed result of every verb. Immutable once produced.
type Response struct {
	// Data is the response body.
	Data []byte

	// Status is the HTTP status code.
	Status int

	// StatusText is the textual status (e.g. "OK").
	StatusText string

	// Header holds the response headers.
	Header http.Header
}

// Client executes described requests under a merged configuration. It is
// safe for concurrent use; the cache store, in-flight registry and rate
// limiter are shared across all requests issued through one instance.
type Client struct {
	mu  sync.RWMutex
	cfg Config

	transport      Doer
	store          cache.Store
	flights        *flight.Registry
	limiter        *ratelimit.Limiter
	logger         zerolog.Logger
	dedupCondition func(method string) bool
	idGen          func() string
}

// New constructs a Client from the given configuration and options.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be non-negative (got %v)", cfg.Timeout)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be non-negative (got %d)", cfg.MaxRetries)
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		return nil, fmt.Errorf("jitter must be in [0, 1) (got %v)", cfg.Jitter)
	}
	if cfg.RateLimit != nil {
		if cfg.RateLimit.Requests <= 0 {
			return nil, fmt.Errorf("rate limit requests must be positive (got %d)", cfg.RateLimit.Requests)
		}
		if cfg.RateLimit.Window <= 0 {
			return nil, fmt.Errorf("rate limit window must be positive (got %v)", cfg.RateLimit.Window)
		}
	}

	c := &Client{
		cfg:            cfg,
		transport:      &http.Client{},
		store:          cache.NewMemoryStore(),
		flights:        flight.NewRegistry(),
		logger:         logging.NewLogger("client"),
		dedupCondition: defaultDedupCondition,
		idGen:          uuid.NewString,
	}

	if cfg.RateLimit != nil {
		c.limiter = ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// defaultDedupCondition admits only safe idempotent methods.
func defaultDedupCondition(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// cacheableMethod reports whether responses for the method may be stored.
// Mutating methods are never cached: key equality on body would let a second
// distinct mutation replay a stale result.
func cacheableMethod(method string) bool {
	return method == http.MethodGet
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, opts *RequestOptions) (*Response, error) {
	return c.execute(ctx, http.MethodGet, path, nil, opts)
}

// Post performs a POST request with the given body.
func (c *Client) Post(ctx context.Context, path string, body []byte, opts *RequestOptions) (*Response, error) {
	return c.execute(ctx, http.MethodPost, path, body, opts)
}

// Put performs a PUT request with the given body.
func (c *Client) Put(ctx context.Context, path string, body []byte, opts *RequestOptions) (*Response, error) {
	return c.execute(ctx, http.MethodPut, path, body, opts)
}

// Patch performs a PATCH request with the given body.
func (c *Client) Patch(ctx context.Context, path string, body []byte, opts *RequestOptions) (*Response, error) {
	return c.execute(ctx, http.MethodPatch, path, body, opts)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, body []byte, opts *RequestOptions) (*Response, error) {
	return c.execute(ctx, http.MethodDelete, path, body, opts)
}

// SetBaseURL replaces the base URL. In-flight requests keep the
// configuration snapshot they resolved against.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.BaseURL = baseURL
}

// SetDefaultHeaders merges headers into the instance defaults. A fresh map
// is published so concurrent readers never observe a torn write.
func (c *Client) SetDefaultHeaders(headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := make(map[string]string, len(c.cfg.DefaultHeaders)+len(headers))
	for k, v := range c.cfg.DefaultHeaders {
		merged[k] = v
	}
	for k, v := range headers {
		merged[k] = v
	}
	c.cfg.DefaultHeaders = merged
}

// ClearCache removes every cached response.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// snapshot returns the current configuration. The DefaultHeaders map is
// replaced wholesale on write, never mutated, so holding the returned value
// without the lock is safe.
func (c *Client) snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// execute runs one logical request through the cache, dedup, rate-limit and
// retry layers.
func (c *Client) execute(ctx context.Context, method, path string, body []byte, opts *RequestOptions) (*Response, error) {
	eff := resolve(c.snapshot(), opts)
	url := resolveURL(eff.baseURL, path)
	key := cache.NewKey(method, url, body)

	logger := c.logger.With().
		Str("request_id", c.idGen()).
		Str("method", method).
		Str("url", url).
		Logger()

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	// Cache applies to settled work, dedup to in-flight work; consult the
	// cache first, join an in-flight execution only on a miss.
	cacheable := eff.cacheEnabled && cacheableMethod(method)
	if cacheable {
		entry, err := c.store.Get(ctx, key)
		if err == nil {
			logger.Debug().Str("cache_key", key.String()).Msg("Cache hit")
			requestsTotal.WithLabelValues(method, fmt.Sprintf("%d", entry.StatusCode)).Inc()
			return responseFromEntry(entry), nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache get failed, continuing without cache")
		}
	}

	if !c.dedupCondition(method) {
		return c.run(ctx, logger, method, url, body, key, eff, cacheable)
	}

	call, owner := c.flights.JoinOrStart(key.String())
	if !owner {
		logger.Debug().Str("cache_key", key.String()).Msg("Joined in-flight request")
		dedupJoinsTotal.WithLabelValues(method).Inc()

		val, err := call.Wait(ctx)
		if err != nil {
			var typed *Error
			if !errors.As(err, &typed) {
				// The waiter's own context fired; the owner keeps running.
				return nil, classifyContextError(err)
			}
			return nil, err
		}
		resp, _ := val.(*Response)
		return resp, nil
	}

	resp, err := c.run(ctx, logger, method, url, body, key, eff, cacheable)
	c.flights.Complete(key.String(), call, resp, err)
	return resp, err
}

// run is the per-request attempt loop: rate-limit admission, one bounded
// transport attempt, then either settle or back off and go again. Every
// retry re-enters the rate limiter.
func (c *Client) run(ctx context.Context, logger zerolog.Logger, method, url string, body []byte, key cache.Key, eff effectiveConfig, cacheable bool) (*Response, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				typed := classifyContextError(err)
				errorsTotal.WithLabelValues(string(typed.Kind)).Inc()
				return nil, typed
			}
		}

		resp, err := c.attempt(ctx, method, url, body, eff)
		if err == nil {
			if attempt > 0 {
				logger.Info().Int("attempt", attempt+1).Msg("Request succeeded after retry")
			}
			if cacheable {
				entry := entryFromResponse(resp)
				if cerr := c.store.Set(ctx, key, entry, eff.cacheTTL); cerr != nil {
					logger.Warn().Err(cerr).Msg("Failed to cache response")
				} else {
					logger.Debug().Dur("ttl", eff.cacheTTL).Msg("Cached response")
				}
			}
			requestsTotal.WithLabelValues(method, fmt.Sprintf("%d", resp.Status)).Inc()
			return resp, nil
		}

		lastErr = err
		kind := errorKind(err)
		errorsTotal.WithLabelValues(string(kind)).Inc()

		if !shouldRetry(err, attempt, eff.maxRetries) {
			if IsRetryable(err) {
				retryExhaustedTotal.WithLabelValues(string(kind)).Inc()
				logger.Warn().
					Int("attempts", attempt+1).
					Str("kind", string(kind)).
					Msg("Retry attempts exhausted")
			}
			requestsTotal.WithLabelValues(method, "error").Inc()
			return nil, lastErr
		}

		delay := backoffDelay(attempt, eff.initialBackoff, eff.maxBackoff, eff.jitter)
		retriesTotal.WithLabelValues(string(kind)).Inc()
		retryBackoffSeconds.WithLabelValues(string(kind)).Observe(delay.Seconds())
		logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Str("kind", string(kind)).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			typed := classifyContextError(ctx.Err())
			errorsTotal.WithLabelValues(string(typed.Kind)).Inc()
			return nil, typed
		case <-time.After(delay):
		}
	}
}

// attempt performs a single transport call bounded by the per-attempt
// timeout. The transport executes outside all client locks.
func (c *Client) attempt(ctx context.Context, method, url string, body []byte, eff effectiveConfig) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, eff.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, url, reader)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "build request", Cause: err}
	}
	for k, v := range eff.headers {
		req.Header.Set(k, v)
	}

	httpResp, err := c.transport.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if httpResp.StatusCode >= 400 {
		return nil, statusError(httpResp.StatusCode, http.StatusText(httpResp.StatusCode))
	}

	return &Response{
		Data:       data,
		Status:     httpResp.StatusCode,
		StatusText: http.StatusText(httpResp.StatusCode),
		Header:     httpResp.Header.Clone(),
	}, nil
}

// errorKind extracts the Kind for metric labels.
func errorKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNetwork
}

// resolveURL joins a relative path onto the base URL. Paths that already
// carry a scheme are used as-is.
func resolveURL(baseURL, path string) string {
	if strings.Contains(path, "://") || baseURL == "" {
		return path
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// responseFromEntry rebuilds a Response from a cache entry.
func responseFromEntry(entry *cache.Entry) *Response {
	return &Response{
		Data:       entry.Body,
		Status:     entry.StatusCode,
		StatusText: entry.Status,
		Header:     entry.Header,
	}
}

// entryFromResponse builds the cache entry for a successful response.
func entryFromResponse(resp *Response) *cache.Entry {
	return &cache.Entry{
		Body:       resp.Data,
		StatusCode: resp.Status,
		Status:     resp.StatusText,
		Header:     resp.Header,
	}
}
