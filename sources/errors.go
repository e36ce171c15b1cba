package sources

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a source failure. The worker stores the kind in the
// failed job's parameters, so the constants double as the user-visible
// failure names.
type ErrorKind string

const (
	ErrorKindAuth             ErrorKind = "AuthError"
	ErrorKindRateLimit        ErrorKind = "RateLimitError"
	ErrorKindTransientNetwork ErrorKind = "TransientNetworkError"
	ErrorKindProtocol         ErrorKind = "ProtocolError"
	ErrorKindNotFound         ErrorKind = "NotFoundError"
)

type Error struct {
	Kind   ErrorKind
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, source string, err error) *Error {
	return &Error{Kind: kind, Source: source, Err: err}
}

// KindOf returns the error's kind, or "" if it is not a source error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether err is a source error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
