// Package testutil provides testing utilities for the speedcast client.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior of a mock upstream endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable upstream HTTP server for tests. It counts
// requests per path so tests can assert exactly how many transport calls a
// client operation produced.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	counts   map[string]int
	total    int
}

// NewMockUpstream creates and starts a mock upstream server.
func NewMockUpstream() *MockUpstream {
	m := &MockUpstream{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		counts:   make(map[string]int),
	}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.total++
		m.counts[r.URL.Path]++
		handler := m.handlers[r.URL.Path]
		m.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	return m
}

// URL returns the server's base URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Respond installs a fixed response for path.
func (m *MockUpstream) Respond(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp.Body))
	}
}

// Handle installs a custom handler for path.
func (m *MockUpstream) Handle(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// FailThenSucceed installs a handler that returns failStatus for the first
// n requests to path, then succeeds with body.
func (m *MockUpstream) FailThenSucceed(path string, n, failStatus int, body string) {
	var mu sync.Mutex
	failures := 0
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fail := failures < n
		if fail {
			failures++
		}
		mu.Unlock()

		if fail {
			w.WriteHeader(failStatus)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	})
}

// Count returns the number of requests received for path.
func (m *MockUpstream) Count(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[path]
}

// Total returns the total number of requests received.
func (m *MockUpstream) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Reset clears all request counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]int)
	m.total = 0
}
