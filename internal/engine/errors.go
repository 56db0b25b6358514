package engine

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds the engine distinguishes. These are matched with errors.Is
// so domain actions can wrap them with detail.

var (
	ErrValidationFailed   = errors.New("validation failed")
	ErrCircuitOpen        = errors.New("circuit breaker is open")
	ErrCancelled          = errors.New("cancelled")
	ErrActionUnregistered = errors.New("action not registered")

	// ErrPermanent marks downstream failures that will not heal on
	// retry (4xx-style, data contract violations). Wrap with
	// fmt.Errorf("...: %w", ErrPermanent).
	ErrPermanent = errors.New("permanent failure")
)

// ValidationError wraps one or more input issues. The message lists every
// issue joined by ", " so the status event is readable in the UI.
func ValidationError(issues ...string) error {
	if len(issues) == 0 {
		return ErrValidationFailed
	}

	msg := issues[0]
	for _, issue := range issues[1:] {
		msg += ", " + issue
	}

	return fmt.Errorf("%w: %s", ErrValidationFailed, msg)
}

// IsRetryable reports whether the retry wrapper should attempt the action
// again. Validation rejections, permanent downstream failures, open
// breakers and cancellations are surfaced immediately.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrPermanent),
		errors.Is(err, ErrCircuitOpen),
		errors.Is(err, ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}
