package credits

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingUserID               = errors.New("credits: user id required")
	ErrMissingAppointmentID        = errors.New("credits: appointment id required")
	ErrInvalidCategory             = errors.New("credits: invalid category")
	ErrNegativeAmount              = errors.New("credits: amount must not be negative")
	ErrZeroAmount                  = errors.New("credits: amount must be greater than zero")
	ErrNonPositiveAmount           = errors.New("credits: amount to use must be greater than zero")
	ErrExpiryInPast                = errors.New("credits: expiry must be in the future")
	ErrDuplicateCancellationCredit = errors.New("credits: appointment already has a cancellation credit")
	ErrInsufficientCredit          = errors.New("credits: insufficient credit")
)

// InsufficientCreditError carries the amounts for user-facing messaging.
type InsufficientCreditError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("credits: insufficient credit: requested %s, available %s",
		e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientCreditError) Is(target error) bool {
	return target == ErrInsufficientCredit
}

// IsValidation reports whether err was caused by bad input rather than state or backend failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrMissingUserID,
		ErrMissingAppointmentID,
		ErrInvalidCategory,
		ErrNegativeAmount,
		ErrZeroAmount,
		ErrNonPositiveAmount,
		ErrExpiryInPast,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
