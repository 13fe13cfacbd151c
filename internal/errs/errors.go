// Package errs provides the unified error type used across sqlrefine.
//
// Every subsystem (pipeline stages, filestore, database loader, server) wraps
// its native errors into *errs.Error before returning them to callers.
// Callers use the Is* predicates to react without importing backend packages.
//
// Usage:
//
//	// In a stage, wrap I/O failures:
//	return errs.Wrap(errs.ErrKindIO, "open insert stream", err)
//
//	// In a handler, check the error kind:
//	if errs.IsNotFound(err) {
//	    http.Error(w, "not found", http.StatusNotFound)
//	}
package errs

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // missing input file, object, job or result
	ErrKindConnectionFailed         // cannot reach MinIO / MySQL
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // statement rejected by the import target
	ErrKindInvalidInput             // bad arguments or configuration from the caller
	ErrKindPermissionDenied         // access denied / auth failure
	ErrKindIO                       // local read/write failure during a run
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all sqlrefine subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// FromFS classifies a filesystem error: missing paths become ErrKindNotFound,
// permission problems ErrKindPermissionDenied, anything else ErrKindIO.
// A nil cause returns nil.
func FromFS(msg string, cause error) error {
	if cause == nil {
		return nil
	}
	switch {
	case errors.Is(cause, fs.ErrNotExist):
		return Wrap(ErrKindNotFound, msg, cause)
	case errors.Is(cause, fs.ErrPermission):
		return Wrap(ErrKindPermissionDenied, msg, cause)
	default:
		return Wrap(ErrKindIO, msg, cause)
	}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a statement rejected by the import target.
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return kindOf(err) == ErrKindPermissionDenied
}

// IsIO reports whether err is a local read/write failure.
func IsIO(err error) bool {
	return kindOf(err) == ErrKindIO
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
