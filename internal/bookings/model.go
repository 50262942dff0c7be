package bookings

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wolfman30/wellness-booking/internal/availability"
)

// Appointment is one booked service occupying one or more resources for the
// same interval on one date.
type Appointment struct {
	ID             uuid.UUID              `json:"id"`
	UserID         string                 `json:"user_id"`
	ServiceName    string                 `json:"service_name"`
	Price          decimal.Decimal        `json:"price"`
	Date           string                 `json:"date"`
	Start          availability.TimeOfDay `json:"start"`
	End            availability.TimeOfDay `json:"end"`
	ResourceIDs    []string               `json:"resource_ids"`
	Status         availability.Status    `json:"status"`
	CreditsApplied decimal.Decimal        `json:"credits_applied"`
	CancelledAt    *time.Time             `json:"cancelled_at,omitempty"`
	CancelledBy    string                 `json:"cancelled_by,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func (a Appointment) Interval() availability.Interval {
	return availability.Interval{Start: a.Start, End: a.End}
}

// StartsAt resolves the appointment's wall-clock start in the clinic's zone.
func (a Appointment) StartsAt(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(availability.DateLayout, a.Date, loc)
	if err != nil {
		return time.Time{}
	}
	return time.Date(d.Year(), d.Month(), d.Day(), a.Start.Hour(), a.Start.Minute(), 0, 0, loc)
}

// BookInput describes a new appointment. Either End or DurationMinutes sets
// the end of the interval.
type BookInput struct {
	UserID          string                  `json:"user_id,omitempty"`
	ServiceName     string                  `json:"service_name"`
	Price           decimal.Decimal         `json:"price"`
	Date            string                  `json:"date"`
	Start           availability.TimeOfDay  `json:"start"`
	End             *availability.TimeOfDay `json:"end,omitempty"`
	DurationMinutes int                     `json:"duration_minutes,omitempty"`
	ResourceIDs     []string                `json:"resource_ids"`
	CreditsToApply  decimal.Decimal         `json:"credits_to_apply"`
}

// normalize validates the input and returns the appointment it describes,
// without id, status or timestamps.
func (in BookInput) normalize() (Appointment, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return Appointment{}, ErrMissingUserID
	}
	if strings.TrimSpace(in.ServiceName) == "" {
		return Appointment{}, ErrMissingServiceName
	}
	if in.Price.IsNegative() {
		return Appointment{}, ErrNegativePrice
	}
	if in.CreditsToApply.IsNegative() || in.CreditsToApply.GreaterThan(in.Price) {
		return Appointment{}, ErrInvalidCreditAmount
	}
	end := in.Start.Add(in.DurationMinutes)
	if in.End != nil {
		end = *in.End
	}
	req := availability.CheckRequest{
		Date:        in.Date,
		Interval:    availability.Interval{Start: in.Start, End: end},
		ResourceIDs: in.ResourceIDs,
	}
	if err := req.Validate(); err != nil {
		return Appointment{}, err
	}
	return Appointment{
		UserID:         strings.TrimSpace(in.UserID),
		ServiceName:    strings.TrimSpace(in.ServiceName),
		Price:          in.Price.Round(2),
		Date:           req.Date,
		Start:          req.Interval.Start,
		End:            req.Interval.End,
		ResourceIDs:    req.ResourceIDs,
		CreditsApplied: in.CreditsToApply.Round(2),
	}, nil
}

// RescheduleInput moves an appointment, keeping its duration.
type RescheduleInput struct {
	Date  string                 `json:"date"`
	Start availability.TimeOfDay `json:"start"`
}

// CancelResult reports the cancellation and any credit issued for it.
type CancelResult struct {
	Appointment      Appointment     `json:"appointment"`
	RefundPercentage int64           `json:"refund_percentage"`
	CreditAmount     decimal.Decimal `json:"credit_amount"`
	CreditID         *uuid.UUID      `json:"credit_id,omitempty"`
}
