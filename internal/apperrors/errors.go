// Package apperrors defines the error-kind sum type shared across the signing
// service. Every component returns one of these kinds, wrapped with context,
// instead of panicking or defining its own ad-hoc error type; the HTTP layer
// is the only place that maps a Kind back to a status code.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purpose of HTTP status mapping and
// healthcheck reporting.
type Kind int

const (
	KindUnknown Kind = iota
	KindBadRequest
	KindNotFound
	KindSignerUnavailable
	KindSlashingRejected
	KindStorageFailure
	KindBackendUnavailable
	KindMetadataParseError
	KindKeystoreDecryptError
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BadRequest"
	case KindNotFound:
		return "NotFound"
	case KindSignerUnavailable:
		return "SignerUnavailable"
	case KindSlashingRejected:
		return "SlashingRejected"
	case KindStorageFailure:
		return "StorageFailure"
	case KindBackendUnavailable:
		return "BackendUnavailable"
	case KindMetadataParseError:
		return "MetadataParseError"
	case KindKeystoreDecryptError:
		return "KeystoreDecryptError"
	case KindInternal:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type carrying a Kind plus an optional reason
// and wrapped cause.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given kind and reason.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap builds an *Error with the given kind wrapping cause.
func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

var (
	ErrNotFound          = New(KindNotFound, "identifier not found")
	ErrSlashingRejected  = New(KindSlashingRejected, "rejected by slashing protection")
	ErrSignerUnavailable = New(KindSignerUnavailable, "signer backend unavailable")
)
