package credits

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category classifies why a credit was granted.
type Category string

const (
	CategoryCancellation    Category = "cancellation"
	CategoryRefund          Category = "refund"
	CategoryPromotion       Category = "promotion"
	CategoryAdminAdjustment Category = "admin_adjustment"
	CategoryMigration       Category = "migration"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCancellation, CategoryRefund, CategoryPromotion, CategoryAdminAdjustment, CategoryMigration:
		return true
	}
	return false
}

// GrantKind is the transaction kind recorded when a credit of this category is granted.
func (c Category) GrantKind() TransactionKind {
	switch c {
	case CategoryRefund:
		return KindRefunded
	case CategoryAdminAdjustment:
		return KindAdjustment
	default:
		return KindEarned
	}
}

// TransactionKind labels a ledger entry.
type TransactionKind string

const (
	KindEarned     TransactionKind = "earned"
	KindUsed       TransactionKind = "used"
	KindExpired    TransactionKind = "expired"
	KindRefunded   TransactionKind = "refunded"
	KindAdjustment TransactionKind = "adjustment"
)

// Credit is a monetary grant to a user. Rows are never deleted; the only
// mutations are flipping Used once or setting ExpiredAt once.
type Credit struct {
	ID                   uuid.UUID       `json:"id"`
	UserID               string          `json:"user_id"`
	Amount               decimal.Decimal `json:"amount"`
	Category             Category        `json:"category"`
	Description          string          `json:"description,omitempty"`
	ExpiresAt            *time.Time      `json:"expires_at,omitempty"`
	Used                 bool            `json:"used"`
	UsedAt               *time.Time      `json:"used_at,omitempty"`
	UsedForAppointmentID *uuid.UUID      `json:"used_for_appointment_id,omitempty"`
	SourceAppointmentID  *uuid.UUID      `json:"source_appointment_id,omitempty"`
	SplitFromID          *uuid.UUID      `json:"split_from_id,omitempty"`
	ExpiredAt            *time.Time      `json:"expired_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Available reports whether the credit can be spent at now.
// A credit whose expires_at equals now is already expired.
func (c Credit) Available(now time.Time) bool {
	if c.Used || c.ExpiredAt != nil {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}

// dueForExpiry reports whether the sweep should expire the credit at now.
func (c Credit) dueForExpiry(now time.Time) bool {
	return !c.Used && c.ExpiredAt == nil && c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Transaction is an immutable ledger entry. BalanceAfter = BalanceBefore + Amount.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	UserID        string          `json:"user_id"`
	CreditID      *uuid.UUID      `json:"credit_id,omitempty"`
	Kind          TransactionKind `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Description   string          `json:"description,omitempty"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// GrantInput describes a new credit.
type GrantInput struct {
	UserID              string
	Category            Category
	Amount              decimal.Decimal
	Description         string
	ExpiresAt           *time.Time
	SourceAppointmentID *uuid.UUID
	CreatedBy           string
	// NotifyEmail is copied into the outbox event so the worker can email the user.
	NotifyEmail string
}

// Validate checks the input before any write.
func (in GrantInput) Validate(now time.Time) error {
	if in.UserID == "" {
		return ErrMissingUserID
	}
	if !in.Category.Valid() {
		return ErrInvalidCategory
	}
	if in.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	// Zero-value rows are refused; cancel skips issuance for a zero quote.
	if in.Amount.IsZero() {
		return ErrZeroAmount
	}
	if in.Category == CategoryCancellation && (in.SourceAppointmentID == nil || *in.SourceAppointmentID == uuid.Nil) {
		return ErrMissingAppointmentID
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return ErrExpiryInPast
	}
	return nil
}

// GrantResult is the credit and its earning transaction.
type GrantResult struct {
	Credit      Credit
	Transaction Transaction
}

// UseInput describes a redemption against an appointment.
type UseInput struct {
	UserID        string
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
	CreatedBy     string
	NotifyEmail   string
}

// Validate checks the input before any write.
func (in UseInput) Validate() error {
	if in.UserID == "" {
		return ErrMissingUserID
	}
	if in.AppointmentID == uuid.Nil {
		return ErrMissingAppointmentID
	}
	if !in.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}

// UseResult lists the credits consumed and any remainder issued for the unspent excess.
type UseResult struct {
	Consumed    []uuid.UUID
	Remainder   *Credit
	Transaction Transaction
}
