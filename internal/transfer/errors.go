// internal/transfer/errors.go
package transfer

import (
	"context"
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned when the circuit breaker for a
// destination/strategy pair is open and calls must fail fast.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Error kinds attached to terminal TransferResults.
const (
	KindTransient   = "transient"
	KindPermission  = "permission"
	KindNotFound    = "not_found"
	KindCircuitOpen = "circuit_open"
	KindCanceled    = "canceled"
)

// ConfigurationError is fatal: it is reported before any transfer begins.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// BackendError marks a transient backend failure. These are retried and,
// once retries are exhausted, feed the fallback and circuit-breaker logic.
type BackendError struct {
	URI string
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend unavailable: %s %s: %v", e.Op, e.URI, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// PermissionError is terminal per object: never retried, never falls back.
type PermissionError struct {
	URI string
	Op  string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s %s", e.Op, e.URI)
}

// NotFoundError is terminal per object: never retried, never falls back.
type NotFoundError struct {
	URI string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("source not found: %s", e.URI)
}

// Kind classifies an error into one of the result error kinds.
// An operation timeout counts as transient; cancellation does not.
func Kind(err error) string {
	if err == nil {
		return ""
	}

	var perm *PermissionError
	if errors.As(err, &perm) {
		return KindPermission
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		return KindNotFound
	}

	if errors.Is(err, ErrCircuitOpen) {
		return KindCircuitOpen
	}

	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var be *BackendError
	if errors.As(err, &be) {
		return KindTransient
	}

	// Unclassified errors are treated as transient so they stay eligible
	// for retry and fallback rather than being silently terminal.
	return KindTransient
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	return Kind(err) == KindTransient
}
