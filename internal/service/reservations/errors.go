package reservations

import (
	"errors"

	"reserveit/backend/internal/calendar"
)

var (
	ErrInvalidInterval    = errors.New("invalid interval")
	ErrValidationRejected = errors.New("validation rejected")
	ErrAlreadyReserved    = errors.New("already reserved")
	ErrNoAvailability     = errors.New("no availability")
	ErrNotReserved        = errors.New("no active reservation")
	ErrConcurrentUpdate   = errors.New("reservation changed concurrently")

	ErrExternalService = calendar.ErrExternalService
)

// ValidationError is a request problem the user can fix. It unwraps to
// ErrInvalidInterval or ErrValidationRejected.
type ValidationError struct {
	kind error
	msg  string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Unwrap() error {
	return e.kind
}

func invalidInterval(msg string) error {
	return &ValidationError{kind: ErrInvalidInterval, msg: msg}
}

func rejected(msg string) error {
	return &ValidationError{kind: ErrValidationRejected, msg: msg}
}

// UserMessage maps an error from this package to the stable text shown to users.
func UserMessage(err error) string {
	var vErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &vErr) && errors.Is(vErr.kind, ErrInvalidInterval):
		return "That time can't be booked: " + vErr.msg + "."
	case errors.As(err, &vErr):
		return vErr.msg
	case errors.Is(err, ErrAlreadyReserved):
		return "You already have an active reservation. Cancel it before booking another."
	case errors.Is(err, ErrNoAvailability):
		return "Nothing is free at that time. Pick a different slot."
	case errors.Is(err, ErrNotReserved):
		return "You don't have an active reservation."
	case errors.Is(err, ErrConcurrentUpdate):
		return "Your reservation changed while this request was running. Check it and try again."
	case errors.Is(err, ErrExternalService):
		return "The calendar service could not be reached. Please try again in a few minutes."
	default:
		return "Something went wrong. Please try again."
	}
}
