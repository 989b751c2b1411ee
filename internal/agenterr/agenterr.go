// Package agenterr defines the flat error-kind taxonomy shared across the
// ingestion, governor, and evaluator packages. No hierarchy, per design: a
// single Kind field is enough for callers to branch on, and Error composes
// with the standard errors.Is/errors.As machinery via Unwrap.
package agenterr

import "fmt"

// Kind is one of the error categories from the design's error-handling
// section. Values are stable identity, not just display strings.
type Kind string

const (
	MissingField            Kind = "missing_field"
	InvalidInput            Kind = "invalid_input"
	Timeout                 Kind = "timeout"
	BudgetExceeded          Kind = "budget_exceeded"
	UpstreamFailure         Kind = "upstream_failure"
	Internal                Kind = "internal"
	RateLimited             Kind = "rate_limited"
	PromptInjectionDetected Kind = "prompt_injection_detected"
	QualityCheckFailed      Kind = "quality_check_failed"
)

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind, preserving cause for errors.Is/As.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write `errors.Is(err, agenterr.New(agenterr.Timeout, ""))`-style checks,
// or more idiomatically compare kinds with `var e *agenterr.Error; errors.As(err, &e)`.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, otherwise
// returns Internal — an untyped error bubbling up here is itself a bug per
// the design's propagation policy.
func KindOf(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return Internal
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
