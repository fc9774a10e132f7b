package apperr

import (
	"errors"
	"fmt"
)

// Kind is the stable, user-visible error category. The string value is
// part of the external contract and must not change between releases.
type Kind string

const (
	KindConfiguration         Kind = "configuration_error"
	KindTransient             Kind = "transient_error"
	KindModel                 Kind = "model_error"
	KindEmptyDocument         Kind = "empty_document"
	KindInvalidQuery          Kind = "invalid_query"
	KindGenerationUnavailable Kind = "generation_unavailable"
	KindNotFound              Kind = "not_found"
	KindInvalid               Kind = "invalid"
	KindInternal              Kind = "internal"
)

type Error struct {
	kind Kind
	msg  string
	err  error
}

func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return string(e.kind) + ": " + e.msg + ": " + e.err.Error()
	}
	return string(e.kind) + ": " + e.msg
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the human-readable part without wrapped internals,
// suitable for the external interface.
func (e *Error) Message() string {
	return e.msg
}

// Is makes errors.Is(err, apperr.New(kind, "")) match on kind alone.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.kind == other.kind
}

// KindOf extracts the Kind from an error chain, KindInternal if absent.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the enclosing job should be retried with
// backoff rather than failed permanently. Unclassified errors count as
// retryable; the queue's attempt bound keeps them from looping forever.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindInternal:
		return true
	default:
		return false
	}
}
