package credits

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AvailableBalance sums the credits spendable at now. It must agree with the
// SQL aggregate in PostgresLedger.Balance.
func AvailableBalance(credits []Credit, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, c := range credits {
		if c.Available(now) {
			total = total.Add(c.Amount)
		}
	}
	return total
}

// sortOldestFirst orders credits by created_at then id, the redemption order.
func sortOldestFirst(credits []Credit) {
	sort.SliceStable(credits, func(i, j int) bool {
		if !credits[i].CreatedAt.Equal(credits[j].CreatedAt) {
			return credits[i].CreatedAt.Before(credits[j].CreatedAt)
		}
		return credits[i].ID.String() < credits[j].ID.String()
	})
}

// consumption is the result of planning a redemption.
type consumption struct {
	consumed  []Credit
	excess    decimal.Decimal
	splitFrom *Credit
}

// planConsumption walks available credits oldest first until amount is
// covered. The last credit is always consumed whole; when it exceeds what was
// still needed, the excess becomes a remainder credit. ok is false when the
// credits do not cover amount.
func planConsumption(available []Credit, amount decimal.Decimal) (consumption, bool) {
	var plan consumption
	remaining := amount
	for i := range available {
		if !remaining.IsPositive() {
			break
		}
		c := available[i]
		plan.consumed = append(plan.consumed, c)
		if c.Amount.GreaterThan(remaining) {
			plan.excess = c.Amount.Sub(remaining)
			split := c
			plan.splitFrom = &split
		}
		remaining = remaining.Sub(c.Amount)
	}
	if remaining.IsPositive() {
		return consumption{}, false
	}
	return plan, true
}

// remainderOf builds the credit reissued for the unspent part of original.
// It keeps the original created_at so it holds its place in the FIFO order.
func remainderOf(original Credit, excess decimal.Decimal, now time.Time) Credit {
	splitFrom := original.ID
	return Credit{
		ID:                  uuid.New(),
		UserID:              original.UserID,
		Amount:              excess,
		Category:            original.Category,
		Description:         original.Description,
		ExpiresAt:           original.ExpiresAt,
		SourceAppointmentID: original.SourceAppointmentID,
		SplitFromID:         &splitFrom,
		CreatedAt:           original.CreatedAt,
		UpdatedAt:           now,
	}
}

// sumAmounts totals the amounts of credits.
func sumAmounts(credits []Credit) decimal.Decimal {
	total := decimal.Zero
	for _, c := range credits {
		total = total.Add(c.Amount)
	}
	return total
}
