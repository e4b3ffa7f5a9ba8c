package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TransientError marks a failure worth retrying with backoff: timeouts,
// connection resets, rate limits, upstream 5xx, and underfunded sources
// (balances change between sweeps).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure no retry can fix: rejected recipients,
// validation failures, unsupported assets.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// transientMarkers are substrings that identify infrastructure failures in
// upstream error strings. Anything not matched is treated as permanent.
var transientMarkers = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"temporarily unavailable",
	"too many requests",
	"rate limit",
	"insufficient fund",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
	"status 429",
}

// Classify wraps an upstream error as transient or permanent. Errors already
// classified pass through unchanged; context cancellation stays transient so
// a shutdown mid-dispatch reschedules rather than fails the rule.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) || IsPermanent(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return Transient(err)
		}
	}
	return Permanent(err)
}

// ClassifyRead wraps a balance or price read error. Reads carry no submission
// risk, so anything not already classified defaults to transient and the
// execution is retried rather than failed.
func ClassifyRead(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) || IsPermanent(err) {
		return err
	}
	return Transient(err)
}
