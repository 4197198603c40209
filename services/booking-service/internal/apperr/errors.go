package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrScheduleUnavailable = errors.New("schedule unavailable")
	ErrSlotConflict        = errors.New("slot conflict")
	ErrPaymentGateway      = errors.New("payment gateway error")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrOutstandingBalance  = errors.New("outstanding balance")
)

// ValidationError reports malformed input. Field names the request field
// when one is at fault.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError carries the slot that was lost to a concurrent booking.
type ConflictError struct {
	ProfessionalID string
	Start          time.Time
}

func (e *ConflictError) Error() string {
	if e.ProfessionalID == "" {
		return fmt.Sprintf("slot %s is no longer available", e.Start.Format(time.RFC3339))
	}
	return fmt.Sprintf("slot %s is no longer available for professional %s", e.Start.Format(time.RFC3339), e.ProfessionalID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSlotConflict
}

// Transition wraps ErrInvalidTransition with the offending states.
func Transition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
