package events

import "time"

const (
	TypeAppointmentBooked      = "appointment.booked.v1"
	TypeAppointmentCancelled   = "appointment.cancelled.v1"
	TypeAppointmentRescheduled = "appointment.rescheduled.v1"
	TypeCreditEarned           = "credit.earned.v1"
	TypeCreditUsed             = "credit.used.v1"
	TypeCreditExpired          = "credit.expired.v1"
)

// Money fields are decimal strings ("75000.00") so consumers never see float rounding.

type AppointmentBookedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	UserID        string    `json:"user_id"`
	ServiceName   string    `json:"service_name"`
	Price         string    `json:"price"`
	Date          string    `json:"date"`
	Start         string    `json:"start"`
	End           string    `json:"end"`
	ResourceIDs   []string  `json:"resource_ids"`
	CreditsUsed   string    `json:"credits_used,omitempty"`
	BookedAt      time.Time `json:"booked_at"`
}

func (AppointmentBookedV1) EventType() string { return TypeAppointmentBooked }

type AppointmentCancelledV1 struct {
	AppointmentID string    `json:"appointment_id"`
	UserID        string    `json:"user_id"`
	CancelledBy   string    `json:"cancelled_by"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

func (AppointmentCancelledV1) EventType() string { return TypeAppointmentCancelled }

type AppointmentRescheduledV1 struct {
	AppointmentID string    `json:"appointment_id"`
	UserID        string    `json:"user_id"`
	OldDate       string    `json:"old_date"`
	OldStart      string    `json:"old_start"`
	NewDate       string    `json:"new_date"`
	NewStart      string    `json:"new_start"`
	NewEnd        string    `json:"new_end"`
	RescheduledAt time.Time `json:"rescheduled_at"`
}

func (AppointmentRescheduledV1) EventType() string { return TypeAppointmentRescheduled }

type CreditEarnedV1 struct {
	CreditID      string     `json:"credit_id"`
	UserID        string     `json:"user_id"`
	Category      string     `json:"category"`
	Amount        string     `json:"amount"`
	BalanceAfter  string     `json:"balance_after"`
	AppointmentID string     `json:"appointment_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	NotifyEmail   string     `json:"notify_email,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

func (CreditEarnedV1) EventType() string { return TypeCreditEarned }

type CreditUsedV1 struct {
	UserID        string    `json:"user_id"`
	AppointmentID string    `json:"appointment_id"`
	Amount        string    `json:"amount"`
	CreditIDs     []string  `json:"credit_ids"`
	RemainderID   string    `json:"remainder_id,omitempty"`
	BalanceAfter  string    `json:"balance_after"`
	NotifyEmail   string    `json:"notify_email,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (CreditUsedV1) EventType() string { return TypeCreditUsed }

type CreditExpiredV1 struct {
	CreditID     string    `json:"credit_id"`
	UserID       string    `json:"user_id"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	ExpiredAt    time.Time `json:"expired_at"`
}

func (CreditExpiredV1) EventType() string { return TypeCreditExpired }
