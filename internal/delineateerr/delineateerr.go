// Package delineateerr defines the named error taxonomy shared by the
// orchestrator, the batch driver, and the HTTP facade. Each kind wraps the
// underlying cause so callers can still unwrap down to the root error.
package delineateerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the error categories from the delineation
// pipeline. Callers branch on Kind rather than parsing error strings.
type Kind string

const (
	KindInvalidInput       Kind = "invalid-input"
	KindNoRiverFound       Kind = "no-river-found"
	KindDataMissing        Kind = "data-missing"
	KindDataCorrupt        Kind = "data-corrupt"
	KindDelineationFailed  Kind = "delineation-failed"
	KindWatershedNotFound  Kind = "watershed-not-found"
)

// Error is a Kind-tagged error. It wraps an underlying cause, if any.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, delineateerr.KindNoRiverFound-equivalent sentinel)
// work by comparing Kind whenever the target is also a *Error; the
// target's message and wrapped error are ignored.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// sentinel returns a zero-value *Error of a given Kind, suitable for use
// with errors.Is(err, delineateerr.NoRiverFound).
func sentinel(k Kind) *Error { return &Error{Kind: k} }

var (
	InvalidInput      = sentinel(KindInvalidInput)
	NoRiverFound      = sentinel(KindNoRiverFound)
	DataMissing       = sentinel(KindDataMissing)
	DataCorrupt       = sentinel(KindDataCorrupt)
	DelineationFailed = sentinel(KindDelineationFailed)
	WatershedNotFound = sentinel(KindWatershedNotFound)
)

// KindOf extracts the Kind of err, or "" if err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// WireCode maps a Kind to the HTTP facade's wire error code (spec.md §6/§7).
func WireCode(k Kind) string {
	switch k {
	case KindInvalidInput:
		return "INVALID_COORDINATES"
	case KindNoRiverFound:
		return "NO_RIVER_FOUND"
	case KindDataMissing:
		return "NO_DATA_AVAILABLE"
	case KindWatershedNotFound:
		return "WATERSHED_NOT_FOUND"
	case KindDelineationFailed, KindDataCorrupt:
		return "DELINEATION_FAILED"
	default:
		return "DELINEATION_FAILED"
	}
}

// HTTPStatus maps a Kind to the status code the facade returns.
func HTTPStatus(k Kind) int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNoRiverFound, KindDataMissing, KindWatershedNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
