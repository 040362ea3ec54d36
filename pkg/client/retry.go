package client

import (
	"math/rand"
	"time"
)

// shouldRetry decides whether another attempt is warranted: the error must be
// transient and the retry budget not yet exhausted. attempt counts completed
// retries, starting at 0 for the first retry decision.
func shouldRetry(err error, attempt, maxRetries int) bool {
	if attempt >= maxRetries {
		return false
	}
	return IsRetryable(err)
}

// backoffDelay computes the exponential backoff for the given attempt:
// initial * 2^attempt, capped at max, plus up to jitter fraction of uniform
// random delay. With jitter < 1 the delays stay strictly increasing between
// consecutive attempts.
func backoffDelay(attempt int, initial, max time.Duration, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^attempt overflows a duration quickly; past 30 doublings the cap has
	// long been reached anyway.
	if attempt > 30 {
		attempt = 30
	}

	delay := initial << uint(attempt)
	if delay <= 0 || delay > max {
		delay = max
	}

	if jitter > 0 {
		if jitter >= 1 {
			jitter = 0.999
		}
		delay += time.Duration(float64(delay) * jitter * rand.Float64())
		if delay > max {
			delay = max
		}
	}

	return delay
}
