package remote

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for conditions callers branch on.
var (
	// ErrAuthenticationFailed is fatal: the token is missing, expired, or
	// lacks the document scope. Never retried.
	ErrAuthenticationFailed = errors.New("remote authentication failed")

	// ErrNotFound means the document no longer exists. Callers decide:
	// treat the entry as local-only, or rediscover the mapping document.
	ErrNotFound = errors.New("remote document not found")

	// ErrRevisionMismatch means an update carried a stale revision
	// precondition: the document moved since it was fetched.
	ErrRevisionMismatch = errors.New("remote document revision changed since fetch")
)

// TransportError wraps network-level failures and timeouts. Retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote %s: transport failure: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RateLimitedError reports a rate-limit rejection. Retryable after a delay.
type RateLimitedError struct {
	Op         string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("remote %s: rate limited, retry after %s", e.Op, e.RetryAfter)
	}
	return fmt.Sprintf("remote %s: rate limited", e.Op)
}

// Retryable reports whether an operation that failed with err may be
// attempted again. Authentication failures and not-found are final;
// transport failures and rate limits are transient.
func Retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var re *RateLimitedError
	return errors.As(err, &re)
}
