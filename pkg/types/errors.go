package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure for retry policy. Workers map
// kinds to queue outcomes: transient and quota errors retry, malformed
// errors retry a bounded number of times before dead-lettering,
// rejections are terminal but expected, integrity and fatal errors
// dead-letter immediately.
type ErrorKind string

const (
	ErrKindTransient ErrorKind = "transient"
	ErrKindQuota     ErrorKind = "quota"
	ErrKindMalformed ErrorKind = "malformed"
	ErrKindRejection ErrorKind = "rejection"
	ErrKindIntegrity ErrorKind = "integrity"
	ErrKindFatal     ErrorKind = "fatal"
)

// PipelineError wraps an error with its retry classification
type PipelineError struct {
	Kind ErrorKind
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// WrapError attaches a classification to err. Returns nil if err is nil.
func WrapError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &PipelineError{Kind: kind, Err: err}
}

// Errorf builds a classified error from a format string
func Errorf(kind ErrorKind, format string, args ...interface{}) error {
	return &PipelineError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the classification of err. Unclassified errors default
// to transient so unknown failures are retried rather than lost.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindTransient
}

// IsKind reports whether err carries the given classification
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
