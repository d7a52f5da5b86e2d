// Package errs defines the error kinds shared by the service components and
// maps them onto HTTP status codes.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Components attach exactly one kind at their boundary; callers
// dispatch with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrParse        = errors.New("parse failed")
	ErrEmbedding    = errors.New("embedding failed")
	ErrBackingStore = errors.New("backing store failed")
	ErrTransport    = errors.New("transport failed")
	ErrUpstream     = errors.New("upstream error")
)

// Error records the operation that failed, its kind and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// E builds an *Error. A nil err is allowed when the kind says it all.
func E(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause, so a parse error caused by a
// transport failure matches ErrParse and ErrTransport.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UpstreamError is a non-2xx answer from an external service.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Is reports ErrUpstream as a match.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// Transport classifies a failed outbound call. Deadline and cancellation are
// transport failures like any other network error.
func Transport(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return E(op, ErrTransport, fmt.Errorf("request timed out: %w", err))
	}
	return E(op, ErrTransport, err)
}

// Kind returns the outermost error kind found in err, or nil.
func Kind(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range []error{ErrNotFound, ErrValidation, ErrParse, ErrEmbedding, ErrBackingStore, ErrTransport, ErrUpstream} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// HTTPStatus maps an error to the status code returned to API callers.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case nil:
		if err == nil {
			return http.StatusOK
		}
		return http.StatusInternalServerError
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
