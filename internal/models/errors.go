package models

import "errors"

// Error categories surfaced to clients
var (
	ErrInvalidState       = errors.New("invalid_state")
	ErrNotFound           = errors.New("not_found")
	ErrPreconditionFailed = errors.New("precondition_failed")
	ErrEmptyAudience      = errors.New("empty_audience")
	ErrTransientStore     = errors.New("transient_store_failure")
	ErrValidation         = errors.New("validation")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("rate_limited")
)

// Error pairs a category with a short user-readable explanation
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

// NewError creates an Error of the given kind
func NewError(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

func InvalidState(message string) error       { return NewError(ErrInvalidState, message) }
func NotFound(message string) error           { return NewError(ErrNotFound, message) }
func PreconditionFailed(message string) error { return NewError(ErrPreconditionFailed, message) }
func EmptyAudience(message string) error      { return NewError(ErrEmptyAudience, message) }
func Validation(message string) error         { return NewError(ErrValidation, message) }
func Forbidden(message string) error          { return NewError(ErrForbidden, message) }
func RateLimited(message string) error        { return NewError(ErrRateLimited, message) }

// Kind returns the category of err, or nil when it has none
func Kind(err error) error {
	for _, k := range []error{
		ErrInvalidState, ErrNotFound, ErrPreconditionFailed, ErrEmptyAudience,
		ErrTransientStore, ErrValidation, ErrForbidden, ErrRateLimited,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Explanation returns the short message attached to err, if any
func Explanation(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
