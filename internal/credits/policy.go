package credits

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is one step of the cancellation refund schedule.
type Tier struct {
	MinNotice time.Duration
	Percent   int64
}

// CancellationTiers is evaluated top to bottom; the first tier whose notice is
// met wins, so a cancellation exactly on a boundary gets the higher tier.
var CancellationTiers = []Tier{
	{MinNotice: 24 * time.Hour, Percent: 100},
	{MinNotice: 12 * time.Hour, Percent: 75},
	{MinNotice: 6 * time.Hour, Percent: 50},
	{MinNotice: 2 * time.Hour, Percent: 25},
}

// Quote is the outcome of the refund schedule for one appointment.
type Quote struct {
	CreditAmount     decimal.Decimal `json:"credit_amount"`
	RefundPercentage int64           `json:"refund_percentage"`
	HoursUntil       float64         `json:"hours_until"`
}

// RefundPercentage returns the tier percentage for the given notice.
func RefundPercentage(until time.Duration) int64 {
	for _, tier := range CancellationTiers {
		if until >= tier.MinNotice {
			return tier.Percent
		}
	}
	return 0
}

// CalculateCancellationCredit applies the refund schedule to an appointment
// priced at amount, scheduled for appointmentAt and cancelled at now.
// Amounts round to cents, half away from zero.
func CalculateCancellationCredit(amount decimal.Decimal, appointmentAt, now time.Time) (Quote, error) {
	if amount.IsNegative() {
		return Quote{}, ErrNegativeAmount
	}
	until := appointmentAt.Sub(now)
	pct := RefundPercentage(until)
	credit := amount.Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)).Round(2)
	return Quote{
		CreditAmount:     credit,
		RefundPercentage: pct,
		HoursUntil:       until.Hours(),
	}, nil
}
