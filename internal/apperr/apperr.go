// Package apperr is the error taxonomy shared by the server, the client and
// the presenter. Every operation boundary converts failures into *Error.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	// InvalidInput is a caller error. Not retried.
	InvalidInput Kind = "INVALID_INPUT"
	// NotFound is a missing flow or comment id.
	NotFound Kind = "NOT_FOUND"
	// UpstreamError is an LLM or network failure on the server side.
	UpstreamError Kind = "UPSTREAM_ERROR"
	// ProcessingFailed is a completed LLM call whose response was unusable.
	ProcessingFailed Kind = "PROCESSING_FAILED"
	// Offline is a client-detected connectivity loss or deadline expiry.
	Offline Kind = "OFFLINE"
	// RateLimited is a caller exceeding its request budget.
	RateLimited Kind = "RATE_LIMITED"
	// Internal is everything else.
	Internal Kind = "INTERNAL"
)

var kinds = map[Kind]int{
	InvalidInput:     http.StatusBadRequest,
	NotFound:         http.StatusNotFound,
	UpstreamError:    http.StatusInternalServerError,
	ProcessingFailed: http.StatusInternalServerError,
	Offline:          http.StatusServiceUnavailable,
	RateLimited:      http.StatusTooManyRequests,
	Internal:         http.StatusInternalServerError,
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value pair that is exposed in the wire envelope.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Invalid(format string, args ...any) *Error {
	return New(InvalidInput, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Upstream(msg string, cause error) *Error {
	return Wrap(UpstreamError, msg, cause)
}

func Processing(msg string, cause error) *Error {
	return Wrap(ProcessingFailed, msg, cause)
}

func OfflineErr(msg string, cause error) *Error {
	return Wrap(Offline, msg, cause)
}

func Internalf(cause error, format string, args ...any) *Error {
	return Wrap(Internal, fmt.Sprintf(format, args...), cause)
}

// KindOf reports the kind of the first *Error in the chain, or Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	if status, ok := kinds[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ParseKind maps a wire code back to its kind. Unknown codes become Internal.
func ParseKind(code string) Kind {
	k := Kind(code)
	if _, ok := kinds[k]; ok {
		return k
	}
	return Internal
}

// Failure is the wire envelope for every failed operation.
type Failure struct {
	Success bool           `json:"success"`
	Code    Kind           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToFailure converts any error into its envelope. Unclassified errors keep
// their message out of the envelope.
func ToFailure(err error) Failure {
	var e *Error
	if errors.As(err, &e) {
		return Failure{Code: e.Kind, Message: e.Message, Details: e.Details}
	}
	return Failure{Code: Internal, Message: "internal error"}
}

// FromFailure rebuilds an *Error from a decoded envelope.
func FromFailure(f Failure) *Error {
	return &Error{Kind: ParseKind(string(f.Code)), Message: f.Message, Details: f.Details}
}
