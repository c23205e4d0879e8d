package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the recovery class of an error.
type ErrorKind string

const (
	KindInput                 ErrorKind = "input"
	KindCapabilityUnavailable ErrorKind = "capability_unavailable"
	KindTransport             ErrorKind = "transport"
	KindSchema                ErrorKind = "schema"
	KindPersistence           ErrorKind = "persistence"
	KindBusy                  ErrorKind = "busy"
	KindInvalidState          ErrorKind = "invalid_state"
	KindNotFound              ErrorKind = "not_found"
)

// Error carries a kind alongside the failed operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
