package credits

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger stores credits and their transactions. Every mutating call is atomic
// per user and first expires that user's due credits, so the transaction chain
// always reconciles with the available balance.
type Ledger interface {
	Grant(ctx context.Context, in GrantInput, now time.Time) (GrantResult, error)
	Use(ctx context.Context, in UseInput, now time.Time) (UseResult, error)
	ExpireDue(ctx context.Context, now time.Time) (int, error)
	Balance(ctx context.Context, userID string, now time.Time) (decimal.Decimal, error)
	ListCredits(ctx context.Context, userID string) ([]Credit, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
	TransactionsBetween(ctx context.Context, from, to time.Time) ([]Transaction, error)
}

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}
