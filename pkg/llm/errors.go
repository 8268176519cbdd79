package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies alignment failures. The worker maps each kind
// to a queue outcome: quota and transient retry, malformed and schema
// retry a bounded number of times, permanent dead-letters.
type ErrorKind string

const (
	ErrQuota     ErrorKind = "quota_exceeded"
	ErrTransient ErrorKind = "provider_transient"
	ErrMalformed ErrorKind = "malformed_output"
	ErrSchema    ErrorKind = "schema_violation"
	ErrPermanent ErrorKind = "provider_permanent"
	ErrTimeout   ErrorKind = "timeout"
)

// Error is a classified alignment failure
type Error struct {
	Kind ErrorKind

	// RetryAfter is the provider-advertised hold for quota errors,
	// zero when the provider gave none
	RetryAfter time.Duration

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("llm: %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a classified error from a format string
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from an error chain. Unclassified errors
// report as transient, the safe default for retry decisions.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrTransient
}

// RetryAfterOf extracts the provider-advertised quota hold, if any
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
