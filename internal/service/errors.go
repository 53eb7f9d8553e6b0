package service

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrStorage      = errors.New("storage error")
	// ErrRegistryUnavailable means no registry session could be opened for an
	// image, so none of its candidates were handled.
	ErrRegistryUnavailable = errors.New("permit registry unavailable")
)

// ValidationError carries a human readable reason for a rejected request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}
