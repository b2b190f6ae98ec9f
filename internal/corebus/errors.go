// Package corebus defines the error taxonomy shared across the streaming
// engine's core packages so callers can branch on failure category without
// parsing message text.
package corebus

import (
	"errors"
	"fmt"
)

// Kind categorizes a core error. CLI exit codes and HTTP status codes are
// derived from it.
type Kind string

const (
	KindInvalidArgument Kind = "invalid-argument"
	KindNotFound        Kind = "not-found"
	KindConflict        Kind = "conflict"
	KindAuthFailed      Kind = "auth-failed"
	KindIO              Kind = "io"
	KindEncoderFailed   Kind = "encoder-failed"
	KindTimeout         Kind = "timeout"
)

// Error wraps an underlying failure with a Kind and the operation that
// produced it. Stderr tails captured from a failed encoder are attached via
// StderrTail so callers can surface diagnostics without re-reading pipes.
type Error struct {
	Kind       Kind
	Op         string
	Err        error
	StderrTail []string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op/kind wrapping err.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Newf builds an *Error from a formatted message.
func Newf(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithStderr attaches captured stderr lines to an encoder-failed error.
func (e *Error) WithStderr(lines []string) *Error {
	if e == nil {
		return nil
	}
	e.StderrTail = lines
	return e
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, otherwise
// returns "" and false.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is (or wraps) an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// ExitCode maps a Kind to the CLI exit code specified for the control surface.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	kind, ok := KindOf(err)
	if !ok {
		return 70
	}
	switch kind {
	case KindInvalidArgument:
		return 2
	case KindNotFound:
		return 3
	case KindAuthFailed:
		return 4
	case KindConflict:
		return 5
	default:
		return 70
	}
}
