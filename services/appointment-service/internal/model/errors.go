package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation                = errors.New("validation error")
	ErrSlotNotOffered            = errors.New("requested time is not an offered slot")
	ErrSlotConflict              = errors.New("time slot already booked")
	ErrIllegalTransition         = errors.New("illegal status transition")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrNotFound                  = errors.New("not found")
)

// ValidationError reports a malformed request field. errors.Is(err, ErrValidation) holds.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IllegalTransition wraps ErrIllegalTransition with the attempted edge.
func IllegalTransition(from, to Status, reason string) error {
	return fmt.Errorf("%w: %s -> %s: %s", ErrIllegalTransition, from, to, reason)
}
