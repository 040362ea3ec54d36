// Package flight tracks in-flight requests so that concurrent identical
// requests share a single execution. It is a variant of the singleflight
// pattern with explicit owner/waiter roles: the owner performs the work and
// settles the call, every waiter receives the identical outcome.
package flight

import (
	"context"
	"sync"
)

// Call is one shared execution. The owner settles it exactly once through
// Registry.Complete; waiters block in Wait until then.
type Call struct {
	done chan struct{}
	val  any
	err  error
}

// Wait blocks until the owning execution settles or ctx is done. On
// settlement every waiter observes the same value/error pair. A cancelled
// waiter abandons only itself; the owner keeps running for the others.
func (c *Call) Wait(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Registry maps keys to in-flight calls.
type Registry struct {
	mu    sync.Mutex
	calls map[string]*Call
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*Call)}
}

// JoinOrStart returns the call for key and whether the caller is the owner.
// The first caller for a key becomes the owner and must eventually settle
// the call via Complete; later callers join as waiters.
func (r *Registry) JoinOrStart(key string) (*Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.calls[key]; ok {
		return c, false
	}

	c := &Call{done: make(chan struct{})}
	r.calls[key] = c
	return c, true
}

// Complete settles the call with the final outcome and releases all waiters.
// The registry entry is removed before the waiters are released, so a caller
// that arrives after settlement always starts a fresh execution instead of
// observing a finished one.
func (r *Registry) Complete(key string, c *Call, val any, err error) {
	r.mu.Lock()
	if cur, ok := r.calls[key]; ok && cur == c {
		delete(r.calls, key)
	}
	r.mu.Unlock()

	c.val = val
	c.err = err
	close(c.done)
}

// Len returns the number of in-flight calls.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
