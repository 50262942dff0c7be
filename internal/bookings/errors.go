package bookings

import (
	"errors"

	"github.com/wolfman30/wellness-booking/internal/availability"
)

var (
	ErrMissingUserID       = errors.New("bookings: user id required")
	ErrMissingServiceName  = errors.New("bookings: service name required")
	ErrNegativePrice       = errors.New("bookings: price must not be negative")
	ErrInvalidCreditAmount = errors.New("bookings: credits to apply must be between zero and the price")
	ErrStartInPast         = errors.New("bookings: appointment must start in the future")
	ErrNotFound            = errors.New("bookings: appointment not found")
	ErrForbidden           = errors.New("bookings: not allowed to act on this appointment")
	ErrNotActive           = errors.New("bookings: appointment is not active")
	ErrSlotTaken           = errors.New("bookings: slot is no longer available")

	errNoLedger = errors.New("bookings: credit redemption not configured")
)

// ConflictError lists the resources and booked times that block a request.
type ConflictError struct {
	Conflicts []availability.ResourceConflict
}

func (e *ConflictError) Error() string {
	return "bookings: slot unavailable: " + availability.CheckResult{Conflicts: e.Conflicts}.Message()
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSlotTaken
}

// IsValidation reports whether err was caused by malformed input.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrMissingUserID,
		ErrMissingServiceName,
		ErrNegativePrice,
		ErrInvalidCreditAmount,
		ErrStartInPast,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return availability.IsValidation(err)
}
