package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/virtualheet/speedcast-api/internal/testutil"
)

// newTestClient builds a client against the mock upstream with fast backoff
// so retry tests stay quick.
func newTestClient(t *testing.T, upstream *testutil.MockUpstream, mutate func(*Config)) *Client {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BaseURL = upstream.URL()
	cfg.InitialBackoff = 5 * time.Millisecond
	cfg.MaxBackoff = 100 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestGet_Success(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/users", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `[{"id":1}]`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	})

	c := newTestClient(t, upstream, nil)

	resp, err := c.Get(context.Background(), "/v1/users", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if resp.StatusText != "OK" {
		t.Errorf("StatusText = %q, want OK", resp.StatusText)
	}
	if string(resp.Data) != `[{"id":1}]` {
		t.Errorf("Data = %q", resp.Data)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestGet_SendsMergedHeaders(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	var seen http.Header
	upstream.Handle("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.DefaultHeaders = map[string]string{"X-Api-Key": "abc", "Accept": "application/json"}
	})

	_, err := c.Get(context.Background(), "/v1/ping", &RequestOptions{
		Headers: map[string]string{"Accept": "text/plain"},
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got := seen.Get("X-Api-Key"); got != "abc" {
		t.Errorf("X-Api-Key = %q, want abc", got)
	}
	if got := seen.Get("Accept"); got != "text/plain" {
		t.Errorf("Accept = %q, want per-call override", got)
	}
}

func TestCache_SecondRequestServedFromCache(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/config", testutil.MockResponse{Body: `{"flag":true}`})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.CacheEnabled = true
		cfg.CacheTTL = time.Minute
	})

	ctx := context.Background()
	first, err := c.Get(ctx, "/v1/config", nil)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	second, err := c.Get(ctx, "/v1/config", nil)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}

	if got := upstream.Count("/v1/config"); got != 1 {
		t.Errorf("upstream requests = %d, want 1", got)
	}
	if string(first.Data) != string(second.Data) {
		t.Error("cached response differs from original")
	}
}

func TestCache_ExpiredEntryRefetches(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/config", testutil.MockResponse{Body: `{}`})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.CacheEnabled = true
		cfg.CacheTTL = 50 * time.Millisecond
	})

	ctx := context.Background()
	if _, err := c.Get(ctx, "/v1/config", nil); err != nil {
		t.Fatalf("first Get: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	if _, err := c.Get(ctx, "/v1/config", nil); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if got := upstream.Count("/v1/config"); got != 2 {
		t.Errorf("upstream requests = %d, want 2 after TTL expiry", got)
	}
}

func TestCache_ClearCacheInvalidates(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/config", testutil.MockResponse{Body: `{}`})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.CacheEnabled = true
		cfg.CacheTTL = time.Hour
	})

	ctx := context.Background()
	if _, err := c.Get(ctx, "/v1/config", nil); err != nil {
		t.Fatalf("first Get: %v", err)
	}

	if err := c.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}

	if _, err := c.Get(ctx, "/v1/config", nil); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if got := upstream.Count("/v1/config"); got != 2 {
		t.Errorf("upstream requests = %d, want 2 after ClearCache", got)
	}
}

func TestCache_MutatingMethodsNeverCached(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/items", testutil.MockResponse{StatusCode: http.StatusCreated})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.CacheEnabled = true
		cfg.CacheTTL = time.Hour
	})

	ctx := context.Background()
	body := []byte(`{"name":"thing"}`)
	for i := 0; i < 2; i++ {
		if _, err := c.Post(ctx, "/v1/items", body, nil); err != nil {
			t.Fatalf("Post %d: %v", i+1, err)
		}
	}

	if got := upstream.Count("/v1/items"); got != 2 {
		t.Errorf("upstream requests = %d, want 2 (POST must never hit cache)", got)
	}
}

func TestCache_PerCallDisable(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/config", testutil.MockResponse{Body: `{}`})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.CacheEnabled = true
		cfg.CacheTTL = time.Hour
	})

	ctx := context.Background()
	if _, err := c.Get(ctx, "/v1/config", nil); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if _, err := c.Get(ctx, "/v1/config", &RequestOptions{Cache: Bool(false)}); err != nil {
		t.Fatalf("uncached Get: %v", err)
	}

	if got := upstream.Count("/v1/config"); got != 2 {
		t.Errorf("upstream requests = %d, want 2 with per-call cache disable", got)
	}
}

func TestDedup_ConcurrentIdenticalRequestsShareOneExecution(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	release := make(chan struct{})
	upstream.Handle("/v1/slow", func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"shared":true}`))
	})

	c := newTestClient(t, upstream, nil)

	const n = 10
	var wg sync.WaitGroup
	responses := make([]*Response, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], errs[i] = c.Get(context.Background(), "/v1/slow", nil)
		}(i)
	}

	// Give every goroutine time to join the in-flight call, then let the
	// single upstream request finish.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := upstream.Count("/v1/slow"); got != 1 {
		t.Errorf("upstream requests = %d, want 1 for %d concurrent callers", got, n)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if string(responses[i].Data) != `{"shared":true}` {
			t.Errorf("caller %d got %q", i, responses[i].Data)
		}
	}
}

func TestDedup_FreshExecutionAfterSettlement(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/thing", testutil.MockResponse{Body: `{}`})

	c := newTestClient(t, upstream, nil)

	ctx := context.Background()
	if _, err := c.Get(ctx, "/v1/thing", nil); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if _, err := c.Get(ctx, "/v1/thing", nil); err != nil {
		t.Fatalf("second Get: %v", err)
	}

	if got := upstream.Count("/v1/thing"); got != 2 {
		t.Errorf("upstream requests = %d, want 2 for sequential calls", got)
	}
}

func TestDedup_MutatingMethodsNotCoalesced(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	release := make(chan struct{})
	upstream.Handle("/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		<-release
		mu.Lock()
		inFlight--
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})

	c := newTestClient(t, upstream, nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Post(context.Background(), "/v1/orders", []byte(`{"qty":1}`), nil)
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := upstream.Count("/v1/orders"); got != 3 {
		t.Errorf("upstream requests = %d, want 3 (POSTs must not be coalesced)", got)
	}
	if maxInFlight < 2 {
		t.Errorf("maxInFlight = %d, want concurrent execution of distinct mutations", maxInFlight)
	}
}

func TestRetry_ServerErrorsExhaustBudget(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/flaky", testutil.MockResponse{StatusCode: http.StatusInternalServerError})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.MaxRetries = 3
	})

	_, err := c.Get(context.Background(), "/v1/flaky", nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if typed.Kind != KindHTTPStatus || typed.Status != 500 {
		t.Errorf("error = %v, want http_status 500", typed)
	}
	if got := upstream.Count("/v1/flaky"); got != 4 {
		t.Errorf("attempts = %d, want 4 (1 initial + 3 retries)", got)
	}
}

func TestRetry_ClientErrorNotRetried(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/nope", testutil.MockResponse{StatusCode: http.StatusNotFound})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.MaxRetries = 3
	})

	_, err := c.Get(context.Background(), "/v1/nope", nil)

	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if typed.Kind != KindHTTPStatus || typed.Status != 404 {
		t.Errorf("error = %v, want http_status 404", typed)
	}
	if got := upstream.Count("/v1/nope"); got != 1 {
		t.Errorf("attempts = %d, want 1 (4xx is terminal)", got)
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.FailThenSucceed("/v1/flaky", 2, http.StatusBadGateway, `{"ok":true}`)

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.MaxRetries = 3
	})

	resp, err := c.Get(context.Background(), "/v1/flaky", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Data) != `{"ok":true}` {
		t.Errorf("Data = %q", resp.Data)
	}
	if got := upstream.Count("/v1/flaky"); got != 3 {
		t.Errorf("attempts = %d, want 3 (2 failures + 1 success)", got)
	}
}

func TestRetry_DelaysStrictlyIncrease(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	var mu sync.Mutex
	var stamps []time.Time
	upstream.Handle("/v1/flaky", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.MaxRetries = 3
		cfg.InitialBackoff = 20 * time.Millisecond
		cfg.MaxBackoff = time.Second
	})

	_, _ = c.Get(context.Background(), "/v1/flaky", nil)

	mu.Lock()
	defer mu.Unlock()
	if len(stamps) != 4 {
		t.Fatalf("attempts = %d, want 4", len(stamps))
	}
	for i := 2; i < len(stamps); i++ {
		prev := stamps[i-1].Sub(stamps[i-2])
		cur := stamps[i].Sub(stamps[i-1])
		if cur <= prev {
			t.Errorf("inter-attempt delay %d (%v) not greater than %d (%v)", i, cur, i-1, prev)
		}
	}
}

func TestRetry_PerCallRetriesOverride(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/flaky", testutil.MockResponse{StatusCode: http.StatusInternalServerError})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.MaxRetries = 3
	})

	_, err := c.Get(context.Background(), "/v1/flaky", &RequestOptions{Retries: Int(0)})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := upstream.Count("/v1/flaky"); got != 1 {
		t.Errorf("attempts = %d, want 1 with retries=0", got)
	}
}

func TestTimeout_AttemptClassifiedAsTimeout(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/slow", testutil.MockResponse{Delay: 300 * time.Millisecond})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.Timeout = 50 * time.Millisecond
		cfg.MaxRetries = 0
	})

	_, err := c.Get(context.Background(), "/v1/slow", nil)

	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if typed.Kind != KindTimeout {
		t.Errorf("Kind = %s, want timeout", typed.Kind)
	}
}

func TestTimeout_TimedOutAttemptIsRetried(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/slow", testutil.MockResponse{Delay: 200 * time.Millisecond})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.Timeout = 30 * time.Millisecond
		cfg.MaxRetries = 2
	})

	_, err := c.Get(context.Background(), "/v1/slow", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := upstream.Count("/v1/slow"); got != 3 {
		t.Errorf("attempts = %d, want 3 (timeouts are retryable)", got)
	}
}

func TestAborted_CancellationSurfacesImmediately(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/slow", testutil.MockResponse{Delay: time.Second})

	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.MaxRetries = 3
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Get(ctx, "/v1/slow", nil)
	elapsed := time.Since(start)

	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if typed.Kind != KindAborted {
		t.Errorf("Kind = %s, want aborted", typed.Kind)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("cancellation took %v, should not wait for retries", elapsed)
	}
	if got := upstream.Count("/v1/slow"); got != 1 {
		t.Errorf("attempts = %d, want 1 (aborted is terminal)", got)
	}
}

func TestRateLimit_SixthRequestDelayed(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/ping", testutil.MockResponse{Body: `{}`})

	window := 400 * time.Millisecond
	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.RateLimit = &RateLimitConfig{Requests: 5, Window: window}
	})

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := c.Get(ctx, "/v1/ping", nil); err != nil {
			t.Fatalf("Get %d: %v", i+1, err)
		}
	}
	if burst := time.Since(start); burst > window/2 {
		t.Fatalf("first 5 requests took %v, expected immediate admission", burst)
	}

	if _, err := c.Get(ctx, "/v1/ping", nil); err != nil {
		t.Fatalf("sixth Get: %v", err)
	}
	if elapsed := time.Since(start); elapsed < window {
		t.Errorf("sixth request admitted after %v, want >= %v", elapsed, window)
	}
}

func TestRateLimit_EachRetryReentersLimiter(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Respond("/v1/flaky", testutil.MockResponse{StatusCode: http.StatusInternalServerError})

	window := 200 * time.Millisecond
	c := newTestClient(t, upstream, func(cfg *Config) {
		cfg.MaxRetries = 2
		cfg.InitialBackoff = time.Millisecond
		cfg.RateLimit = &RateLimitConfig{Requests: 1, Window: window}
	})

	start := time.Now()
	_, _ = c.Get(context.Background(), "/v1/flaky", nil)
	elapsed := time.Since(start)

	// 3 attempts through a 1-per-window limiter need at least 2 full windows.
	if elapsed < 2*window {
		t.Errorf("3 attempts took %v, want >= %v (each retry must re-enter the limiter)", elapsed, 2*window)
	}
	if got := upstream.Count("/v1/flaky"); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative retries", Config{MaxRetries: -1}},
		{"jitter out of range", Config{Jitter: 1.5}},
		{"rate limit without requests", Config{RateLimit: &RateLimitConfig{Requests: 0, Window: time.Second}}},
		{"rate limit without window", Config{RateLimit: &RateLimitConfig{Requests: 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{"relative path", "https://api.example.com", "/v1/users", "https://api.example.com/v1/users"},
		{"base with trailing slash", "https://api.example.com/", "v1/users", "https://api.example.com/v1/users"},
		{"absolute path wins", "https://api.example.com", "https://other.example.com/x", "https://other.example.com/x"},
		{"no base", "", "/v1/users", "/v1/users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveURL(tt.base, tt.path); got != tt.want {
				t.Errorf("resolveURL = %q, want %q", got, tt.want)
			}
		})
	}
}
