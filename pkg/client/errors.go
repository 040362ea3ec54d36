package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies request failures. Callers are expected to branch on Kind
// (and Status for KindHTTPStatus) rather than on error strings.
type Kind string

const (
	// KindNetwork is a transport-level failure with no response obtained.
	KindNetwork Kind = "network"

	// KindTimeout means an attempt exceeded its configured duration.
	KindTimeout Kind = "timeout"

	// KindHTTPStatus is a response with a 4xx or 5xx status code.
	KindHTTPStatus Kind = "http_status"

	// KindAborted is an explicit caller cancellation.
	KindAborted Kind = "aborted"
)

// Error is the typed error surfaced by every client operation.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status > 0 {
		if e.Cause != nil {
			return fmt.Sprintf("speedcast %s error (status %d): %s: %v", e.Kind, e.Status, e.Message, e.Cause)
		}
		return fmt.Sprintf("speedcast %s error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("speedcast %s error: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("speedcast %s error: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by Kind so callers can write
// errors.Is(err, &Error{Kind: KindTimeout}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Status == 0 || e.Status == t.Status)
}

// IsRetryable reports whether the error represents a transient failure:
// network failures, timeouts and HTTP 5xx responses. 4xx responses and
// cancellations are never retryable.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindHTTPStatus:
		return e.Status >= 500
	default:
		return false
	}
}

// classifyTransportError maps a transport failure onto the error taxonomy.
// Context deadline expiry and net timeouts become KindTimeout, explicit
// cancellation becomes KindAborted, everything else KindNetwork.
func classifyTransportError(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "request timed out", Cause: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindAborted, Message: "request aborted", Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out", Cause: err}
	}

	return &Error{Kind: KindNetwork, Message: "transport failure", Cause: err}
}

// classifyContextError maps a context error observed outside a transport call
// (rate-limit wait, backoff wait, dedup wait) onto the taxonomy.
func classifyContextError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "deadline exceeded while waiting", Cause: err}
	}
	return &Error{Kind: KindAborted, Message: "request aborted", Cause: err}
}

// statusError builds the KindHTTPStatus error for a 4xx/5xx response.
func statusError(status int, statusText string) *Error {
	return &Error{Kind: KindHTTPStatus, Status: status, Message: statusText}
}
