// Package apperr defines the closed error taxonomy used at component
// boundaries. Orchestrators and handlers branch on Kind only; backend-specific
// error detail stays wrapped inside and is never exposed to callers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the abstract failure category.
type Kind string

const (
	// KindNotFound: entity absent, already deleted, or outside the caller's tenant.
	KindNotFound Kind = "not_found"
	// KindPermissionDenied: ownership or scope violation.
	KindPermissionDenied Kind = "permission_denied"
	// KindInvalidArgument: size/type/shape violation caught before side effects.
	KindInvalidArgument Kind = "invalid_argument"
	// KindQuotaExceeded: backend storage quota exhausted.
	KindQuotaExceeded Kind = "quota_exceeded"
	// KindUnavailable: transient infrastructure failure (storage, queue, scanner, broker).
	KindUnavailable Kind = "unavailable"
	// KindTimeout: an explicit deadline was exceeded. Reported separately from
	// KindUnavailable so callers can apply different retry policy.
	KindTimeout Kind = "timeout"
	// KindInternal: unexpected or unclassified failure.
	KindInternal Kind = "internal"
)

// Error is a tagged error carrying a taxonomy kind, a caller-safe message and
// an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a taxonomy error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a taxonomy error around a cause. The cause is preserved for
// errors.Is/As chains but its text is not part of the safe message.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the taxonomy kind from err, or KindInternal when err carries
// no taxonomy tag. A nil err has no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is tagged with the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the caller-safe message, falling back to a generic one for
// untagged errors so backend detail never leaks across the boundary.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
