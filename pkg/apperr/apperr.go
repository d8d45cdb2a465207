// Package apperr classifies domain errors into the small set of kinds the
// request layer knows how to translate.
package apperr

import (
	"errors"
)

type Kind string

const (
	KindUnknown      Kind = ""
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindPrecondition Kind = "precondition_failed"
	KindConflict     Kind = "conflict"
	KindTransient    Kind = "transient"
	KindUnauthorized Kind = "unauthorized"
)

// Error attaches a Kind to an underlying error without hiding it from errors.Is.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func Validation(err error) error   { return Wrap(KindValidation, err) }
func NotFound(err error) error     { return Wrap(KindNotFound, err) }
func Precondition(err error) error { return Wrap(KindPrecondition, err) }
func Conflict(err error) error     { return Wrap(KindConflict, err) }
func Transient(err error) error    { return Wrap(KindTransient, err) }
func Unauthorized(err error) error { return Wrap(KindUnauthorized, err) }

// KindOf returns the outermost kind attached to err.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
