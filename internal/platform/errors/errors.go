// Package errors classifies client failures so callers can decide between
// retrying, surfacing a message, or invalidating the session.
package errors

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
)

// Kind classifies a failure for retry and propagation decisions.
type Kind string

const (
	KindUnknown      Kind = "unknown"
	KindClient       Kind = "client"
	KindServer       Kind = "server"
	KindTransport    Kind = "transport"
	KindCanceled     Kind = "canceled"
	KindUnauthorized Kind = "unauthorized"
	KindGraphQL      Kind = "graphql"
)

// Error is a classified client failure.
type Error struct {
	Kind    Kind   // Classification used for retry/propagation
	Status  int    // HTTP status when a response was received
	Message string // Human-readable message, safe to show to users
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// E builds a classified error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// FromStatus classifies an HTTP error response.
func FromStatus(status int, message string) *Error {
	kind := KindUnknown
	switch {
	case status == http.StatusUnauthorized:
		kind = KindUnauthorized
	case status >= 400 && status < 500:
		kind = KindClient
	case status >= 500 && status < 600:
		kind = KindServer
	}
	return &Error{Kind: kind, Status: status, Message: message}
}

// KindOf returns the classification of err.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	if stderrors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindUnknown
}

// IsRetryable reports whether another attempt may succeed. Server and
// transport failures are, and so is any unexpected HTTP status outside 4xx.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindServer, KindTransport:
		return true
	case KindUnknown:
		var appErr *Error
		return stderrors.As(err, &appErr) && appErr.Status != 0 && (appErr.Status < 400 || appErr.Status > 499)
	default:
		return false
	}
}

// IsCanceled reports whether err stems from a cancelled request.
func IsCanceled(err error) bool {
	return KindOf(err) == KindCanceled
}

// IsClient reports whether err is a non-transient request failure.
func IsClient(err error) bool {
	switch KindOf(err) {
	case KindClient, KindUnauthorized:
		return true
	default:
		return false
	}
}

// UserMessage returns the message to show for err, or fallback when err
// carries no user-facing text.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		if msg := strings.TrimSpace(appErr.Message); msg != "" {
			return msg
		}
	}
	return fallback
}
