// Package errs provides a small error taxonomy shared by the fabric's
// subsystems so callers can branch on failure kind without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purpose of propagation policy.
type Kind string

const (
	// KindNotFound marks a session, instance, or cache entry that is absent.
	KindNotFound Kind = "not_found"
	// KindUnavailable marks the load balancer having no healthy instance.
	KindUnavailable Kind = "unavailable"
	// KindTransient marks an RPC/DB failure the indexer retries with backoff.
	KindTransient Kind = "transient"
	// KindCorrupt marks a ledger hash mismatch or malformed operation.
	KindCorrupt Kind = "corrupt"
	// KindConfig marks an invalid environment/config value, fatal at startup.
	KindConfig Kind = "config"
	// KindFatal marks an unrecoverable failure that should end the process.
	KindFatal Kind = "fatal"
)

// Error is a Kind-tagged error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a Kind-tagged error with a stable wire code.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap tags an existing error with a Kind, preserving it for errors.Unwrap.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// CodeOf extracts the stable wire code from err, if any.
func CodeOf(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
