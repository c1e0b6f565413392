package custody

import (
	"errors"
	"fmt"

	"github.com/xraph/custody/session"
)

// Sentinel errors for common failure scenarios.
var (
	// Record errors. Both are terminal: retrying an identical call cannot
	// succeed until some other actor changes the record.
	ErrRecordNotFound = errors.New("custody: record not found")
	ErrUnauthorized   = errors.New("custody: caller is not the record owner")

	// Session errors, re-exported from the session package.
	// ErrNoIdentity means no principal is bound; ErrNotReady means the
	// binding is mid-reset (environment switch) and the call may be
	// retried once the rebind completes.
	ErrNoIdentity = session.ErrNoIdentity
	ErrNotReady   = session.ErrNotReady

	// Engine errors.
	ErrClosed     = errors.New("custody: ledger is closed")
	ErrNotStarted = errors.New("custody: ledger not started")
)

// EnvironmentError wraps a failure of the underlying execution
// environment (store rejection, connectivity loss, signature failure at
// the transport level). The cause is preserved so callers can decide
// whether a retry is worthwhile; the library itself never retries.
type EnvironmentError struct {
	Op  string // the ledger operation that failed ("create", "set_status", ...)
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("custody: environment failure during %s: %v", e.Op, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// IsNotFound reports whether the error is a record-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsUnauthorized reports whether the error is an ownership rejection.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsEnvironment reports whether the error originates from the underlying
// execution environment rather than from the ledger's own rules.
func IsEnvironment(err error) bool {
	var envErr *EnvironmentError
	return errors.As(err, &envErr)
}

// IsRetryable reports whether the operation may succeed if retried by the
// caller. NotFound and Unauthorized never are; a mid-reset binding is
// retryable after the rebind completes; environment failures are left to
// the caller's judgment and reported retryable here so callers with a
// backoff policy pick them up.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNotReady) || IsEnvironment(err)
}
