// Package portal defines the contract for the browser-automation
// collaborator that drives government portals. The implementation lives
// outside this service; the pipeline only sees this interface.
package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/govbridge/govchat/internal/models"
)

// Automator performs one operation against a named government portal.
// Calls may block for tens of seconds and fail in either a retryable or
// a terminal way; callers must classify errors with IsTemporary.
type Automator interface {
	Execute(ctx context.Context, service models.Service, operation models.Operation, payload map[string]string) (map[string]string, error)
}

// Error is a classified automator failure. Temporary failures (portal
// timeouts, transient network errors) are retryable; permanent ones
// (portal rejected the input) are not.
type Error struct {
	Service   models.Service
	Temporary bool
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("portal %s: %s: %v", e.Service, e.Message, e.Err)
	}
	return fmt.Sprintf("portal %s: %s", e.Service, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewTemporary wraps a transient failure (retryable).
func NewTemporary(service models.Service, message string, err error) *Error {
	return &Error{Service: service, Temporary: true, Message: message, Err: err}
}

// NewPermanent wraps a terminal failure (not retryable).
func NewPermanent(service models.Service, message string, err error) *Error {
	return &Error{Service: service, Temporary: false, Message: message, Err: err}
}

// IsTemporary reports whether err should be retried. Unclassified
// errors (deadline overruns included) default to temporary so that a
// sloppy automator still gets the benefit of retries.
func IsTemporary(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Temporary
	}
	return true
}

// WithTimeout wraps an Automator so every Execute call carries a hard
// deadline. Exceeding it is reported as a temporary failure.
func WithTimeout(inner Automator, timeout time.Duration) Automator {
	return &timeoutAutomator{inner: inner, timeout: timeout}
}

type timeoutAutomator struct {
	inner   Automator
	timeout time.Duration
}

func (t *timeoutAutomator) Execute(ctx context.Context, service models.Service, operation models.Operation, payload map[string]string) (map[string]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	result, err := t.inner.Execute(callCtx, service, operation, payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, NewTemporary(service, "portal call exceeded deadline", err)
		}
		return nil, err
	}
	return result, nil
}
