// Package fault defines the error taxonomy shared by the execution core.
// Every failure carries a Kind so that retry policies can match errors by
// tag instead of by type or message.
package fault

import (
	"errors"
	"fmt"
)

// Kind tags a class of failure.
type Kind string

const (
	// Spawn: the target executable could not be launched at all.
	Spawn Kind = "spawn"
	// Execution: a must-succeed command exited non-zero.
	Execution Kind = "execution"
	// Timeout: a retry budget or poll deadline was exceeded.
	Timeout Kind = "timeout"
	// RouteNotFound: the routing table never yielded a source address.
	RouteNotFound Kind = "route-not-found"
	// Thumbprint: the endpoint probe output had no thumbprint pattern.
	Thumbprint Kind = "thumbprint"
	// Parse: malformed table or identifier input.
	Parse Kind = "parse"
)

// Error is a tagged error. It wraps an optional cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New builds a tagged error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error, keeping it reachable via errors.Unwrap.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Kind reports the tag of the error.
func (e *Error) Kind() Kind { return e.kind }

// KindOf extracts the Kind of err, walking the wrap chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind, true
	}
	return "", false
}

// IsAny reports whether err carries one of the given kinds.
// An empty kind set never matches.
func IsAny(err error, kinds ...Kind) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
