package climate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedRange means the location or date range is outside a
	// source's coverage. Permanent: never retried.
	ErrUnsupportedRange = errors.New("location or date range outside source coverage")

	// ErrUnreachable means a network failure, timeout or upstream server
	// error. Transient: retried with backoff.
	ErrUnreachable = errors.New("source unreachable")

	// ErrParse means the response did not match the documented schema.
	// Permanent, and logged loudly since it may indicate an upstream
	// API change.
	ErrParse = errors.New("unexpected response schema")

	// ErrInsufficientData means too few samples existed to aggregate any
	// requested day. Permanent for that day and source.
	ErrInsufficientData = errors.New("insufficient samples for daily aggregation")

	// ErrNoSourceAvailable is the only failure that aborts a whole
	// query: every eligible source failed (or none was eligible).
	ErrNoSourceAvailable = errors.New("no source available for request")
)

// RateLimitedError is returned when a source denies a request, either
// locally through the rate limiter or remotely with HTTP 429. Transient:
// the orchestrator retries after RetryAfter.
type RateLimitedError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limited, retry after %s", e.Source, e.RetryAfter)
}

// Retryable reports whether the orchestrator may re-attempt a fetch that
// failed with err. Only rate limiting and unreachability are transient;
// everything else is permanent for the request.
func Retryable(err error) bool {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	return errors.Is(err, ErrUnreachable)
}

// RetryAfterOf extracts the server- or policy-provided retry delay from
// err, or 0 when none applies.
func RetryAfterOf(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// Aborted reports whether err came from request cancellation rather than
// the source itself.
func Aborted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
