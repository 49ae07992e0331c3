package engine

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/valetiq/valet/pkg/schema"
)

// RetryPolicy bounds retries around a single adapter invocation. It is
// orthogonal to the intervention mechanism and never wraps a whole plan.
type RetryPolicy struct {
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries int
	// Unit is the linear backoff unit; attempt n waits n * Unit.
	Unit time.Duration
}

// DefaultRetryPolicy retries twice with 2s, then 4s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Unit: 2 * time.Second}
}

// Backoff returns the delay before retry attempt n (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return time.Duration(attempt) * p.Unit
}

// retryablePatterns are the lowercase markers that classify a failure as
// transient. Classification is string and shape based because adapter
// backends report errors in free text.
var retryablePatterns = []string{
	"timeout",
	"timed out",
	"unavailable",
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"bad gateway",
	"gateway timeout",
	"internal server error",
	"too many requests",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
}

// IsRetryableError classifies whether an adapter failure should be retried.
// Retryable: timeouts, service-unavailable style responses, 5xx codes,
// generic network errors. Everything else returns immediately.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Step-level deadline is retryable; a cancelled context means the
	// caller is shutting down.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var verr *schema.ValetError
	if errors.As(err, &verr) {
		if verr.IsRetryable() {
			return true
		}
		// A typed non-retryable code still gets the message scan; bridges
		// wrap backend text under EXECUTION_ERROR either way, but e.g.
		// VALIDATION_ERROR must never retry.
		if verr.Code == schema.ErrCodeValidation || verr.Code == schema.ErrCodeAuthRequired ||
			verr.Code == schema.ErrCodeInvalidTransition || verr.Code == schema.ErrCodeNotFound {
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsRetryableResult applies the same classification to a failed StepResult,
// where the backend's error arrived as a value rather than an error.
func IsRetryableResult(res *schema.StepResult) bool {
	if res == nil || res.Success || res.AuthRequired {
		return false
	}
	msg := strings.ToLower(res.Error)
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// WaitForBackoff sleeps for the delay or returns early on context cancel.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
