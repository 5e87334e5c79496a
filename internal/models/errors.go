package models

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEventNotFound      = errors.New("event not found")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrAlreadyBooked      = errors.New("already booked")
	ErrEventFull          = errors.New("event is fully booked")
	ErrEventExpired       = errors.New("event is in the past")
	ErrAlreadyCancelled   = errors.New("booking is already cancelled")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// InputError carries a field-level validation message and matches ErrInvalidInput.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func InvalidInput(message string) error {
	return &InputError{Message: message}
}
