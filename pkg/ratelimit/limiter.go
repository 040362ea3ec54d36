// Package ratelimit implements sliding-window-log admission control for
// outbound requests. A Limiter configured with (requests N, window W) never
// admits more than N calls within any trailing window of length W. Saturated
// callers are delayed, never rejected; admission order is FIFO so no caller
// starves behind later arrivals.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a sliding-window-log rate limiter. The zero value is not usable;
// construct with New. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration

	// stamps holds admission times within the trailing window, oldest first.
	stamps []time.Time

	// queue holds waiters in arrival order. A waiter is admitted only when it
	// reaches the head and a slot is free.
	queue []*waiter

	timer *time.Timer

	// now is swapped out in tests.
	now func() time.Time
}

type waiter struct {
	ch chan struct{}
}

// New creates a limiter admitting at most requests calls per window.
// Panics if requests <= 0 or window <= 0; a nil *Limiter is treated as
// unlimited by the client, so an unconfigured limit never reaches here.
func New(requests int, window time.Duration) *Limiter {
	if requests <= 0 {
		panic("ratelimit: requests must be positive")
	}
	if window <= 0 {
		panic("ratelimit: window must be positive")
	}
	return &Limiter{
		max:    requests,
		window: window,
		now:    time.Now,
	}
}

// Wait blocks until the caller is admitted, then records the admission.
// Returns ctx.Err() if the context fires first; the caller's queue slot is
// released so later waiters are not blocked behind a cancelled one.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	l.pruneLocked(now)

	// Fast path: a free slot and nobody queued ahead.
	if len(l.queue) == 0 && len(l.stamps) < l.max {
		l.stamps = append(l.stamps, now)
		l.mu.Unlock()
		admissionsTotal.Inc()
		return nil
	}

	w := &waiter{ch: make(chan struct{})}
	l.queue = append(l.queue, w)
	l.scheduleWakeLocked()
	l.mu.Unlock()

	waitersGauge.Inc()
	defer waitersGauge.Dec()
	start := now

	select {
	case <-w.ch:
		waitSeconds.Observe(l.now().Sub(start).Seconds())
		admissionsTotal.Inc()
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.removeWaiterLocked(w)
		l.mu.Unlock()
		// A waiter cancelled in the same instant it was admitted leaves its
		// admission recorded; the window bound stays conservative.
		return ctx.Err()
	}
}

// pruneLocked drops admission stamps older than the trailing window.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// scheduleWakeLocked arms the timer for the moment the oldest admission
// leaves the window. At most one timer is armed at a time.
func (l *Limiter) scheduleWakeLocked() {
	if l.timer != nil || len(l.stamps) == 0 {
		return
	}
	delay := l.window - l.now().Sub(l.stamps[0])
	if delay < 0 {
		delay = 0
	}
	l.timer = time.AfterFunc(delay, l.wake)
}

// wake admits queued waiters in FIFO order for every freed slot, then re-arms
// the timer if callers remain queued.
func (l *Limiter) wake() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.timer = nil
	now := l.now()
	l.pruneLocked(now)

	for len(l.queue) > 0 && len(l.stamps) < l.max {
		w := l.queue[0]
		l.queue = l.queue[1:]
		l.stamps = append(l.stamps, now)
		close(w.ch)
	}

	if len(l.queue) > 0 {
		l.scheduleWakeLocked()
	}
}

func (l *Limiter) removeWaiterLocked(w *waiter) {
	for i, cur := range l.queue {
		if cur == w {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return
		}
	}
}

// Pending returns the number of queued waiters.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}
