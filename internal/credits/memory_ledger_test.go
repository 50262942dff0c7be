package credits

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grantCancellation(t *testing.T, l Ledger, userID string, amount string, now time.Time) GrantResult {
	t.Helper()
	appt := uuid.New()
	res, err := l.Grant(context.Background(), GrantInput{
		UserID:              userID,
		Category:            CategoryCancellation,
		Amount:              dec(amount),
		SourceAppointmentID: &appt,
		CreatedBy:           userID,
	}, now)
	require.NoError(t, err)
	return res
}

// assertReconciles checks balance == sum of transaction amounts and that every
// entry chains from the previous one.
func assertReconciles(t *testing.T, l *MemoryLedger, userID string, now time.Time) {
	t.Helper()
	ctx := context.Background()
	balance, err := l.Balance(ctx, userID, now)
	require.NoError(t, err)

	l.mu.Lock()
	txns := append([]Transaction(nil), l.transactions[userID]...)
	l.mu.Unlock()

	sum := decimal.Zero
	running := decimal.Zero
	for _, txn := range txns {
		assert.True(t, txn.BalanceBefore.Equal(running), "chain broken at %s: before %s, running %s", txn.Kind, txn.BalanceBefore, running)
		assert.True(t, txn.BalanceAfter.Equal(txn.BalanceBefore.Add(txn.Amount)))
		switch txn.Kind {
		case KindUsed, KindExpired:
			assert.True(t, txn.Amount.IsNegative(), "%s must be negative", txn.Kind)
		default:
			assert.True(t, txn.Amount.IsPositive(), "%s must be positive", txn.Kind)
		}
		sum = sum.Add(txn.Amount)
		running = txn.BalanceAfter
	}
	assert.True(t, balance.Equal(sum), "balance %s != transaction sum %s", balance, sum)
}

func TestMemoryLedger_InsufficientCreditLeavesBalance(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLedger()
	grantCancellation(t, l, "u-1", "50000", now)

	_, err := l.Use(ctx, UseInput{UserID: "u-1", AppointmentID: uuid.New(), Amount: dec("60000")}, now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientCredit))
	var insufficient *InsufficientCreditError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Requested.Equal(dec("60000")))
	assert.True(t, insufficient.Available.Equal(dec("50000")))

	balance, err := l.Balance(ctx, "u-1", now)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("50000")))
	txns, _ := l.ListTransactions(ctx, "u-1", 0)
	assert.Len(t, txns, 1)
	assertReconciles(t, l, "u-1", now)
}

func TestMemoryLedger_UseSplitsOldestCredit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLedger()
	first := grantCancellation(t, l, "u-1", "100", now.Add(-2*time.Hour))
	second := grantCancellation(t, l, "u-1", "80", now.Add(-time.Hour))

	appt := uuid.New()
	res, err := l.Use(ctx, UseInput{UserID: "u-1", AppointmentID: appt, Amount: dec("60")}, now)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.Credit.ID}, res.Consumed)
	require.NotNil(t, res.Remainder)
	assert.True(t, res.Remainder.Amount.Equal(dec("40")))
	assert.Equal(t, first.Credit.CreatedAt, res.Remainder.CreatedAt)
	assert.Equal(t, first.Credit.ID, *res.Remainder.SplitFromID)
	assert.True(t, res.Transaction.Amount.Equal(dec("-60")))
	assert.True(t, res.Transaction.BalanceBefore.Equal(dec("180")))
	assert.True(t, res.Transaction.BalanceAfter.Equal(dec("120")))

	// The remainder is spent before the newer credit.
	res, err = l.Use(ctx, UseInput{UserID: "u-1", AppointmentID: uuid.New(), Amount: dec("40")}, now)
	require.NoError(t, err)
	assert.Nil(t, res.Remainder)
	require.Len(t, res.Consumed, 1)
	assert.NotEqual(t, second.Credit.ID, res.Consumed[0])

	list, err := l.ListCredits(ctx, "u-1")
	require.NoError(t, err)
	for _, c := range list {
		if c.ID == first.Credit.ID {
			assert.True(t, c.Used)
			require.NotNil(t, c.UsedAt)
			assert.Equal(t, appt, *c.UsedForAppointmentID)
		}
	}
	assertReconciles(t, l, "u-1", now)
}

func TestMemoryLedger_ExpiryIsIdempotentAndDistinctFromUse(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLedger()
	_, err := l.Grant(ctx, GrantInput{
		UserID:    "u-1",
		Category:  CategoryPromotion,
		Amount:    dec("20"),
		ExpiresAt: ptrTime(now.Add(time.Hour)),
	}, now)
	require.NoError(t, err)
	grantCancellation(t, l, "u-1", "5", now)

	later := now.Add(time.Hour)
	n, err := l.ExpireDue(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = l.ExpireDue(ctx, later.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, _ := l.ListCredits(ctx, "u-1")
	for _, c := range list {
		if c.Category == CategoryPromotion {
			assert.False(t, c.Used, "expiry must not mark the credit used")
			require.NotNil(t, c.ExpiredAt)
		}
	}
	assertReconciles(t, l, "u-1", later)
}

func TestMemoryLedger_LazyExpiryKeepsChainContinuous(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLedger()
	_, err := l.Grant(ctx, GrantInput{UserID: "u-1", Category: CategoryPromotion, Amount: dec("30"), ExpiresAt: ptrTime(now.Add(time.Minute))}, now)
	require.NoError(t, err)

	later := now.Add(time.Hour)
	res := grantCancellation(t, l, "u-1", "10", later)
	assert.True(t, res.Transaction.BalanceBefore.IsZero(), "due promotion should be expired before the grant")

	txns, _ := l.ListTransactions(ctx, "u-1", 0)
	require.Len(t, txns, 3)
	assert.Equal(t, KindExpired, txns[1].Kind)
	assertReconciles(t, l, "u-1", later)
}

func TestMemoryLedger_GrantValidationAndDuplicates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLedger()
	appt := uuid.New()

	_, err := l.Grant(ctx, GrantInput{UserID: "u-1", Category: CategoryCancellation, Amount: dec("-1"), SourceAppointmentID: &appt}, now)
	assert.ErrorIs(t, err, ErrNegativeAmount)
	_, err = l.Grant(ctx, GrantInput{UserID: "u-1", Category: CategoryCancellation, Amount: decimal.Zero, SourceAppointmentID: &appt}, now)
	assert.ErrorIs(t, err, ErrZeroAmount)
	_, err = l.Grant(ctx, GrantInput{UserID: "u-1", Category: CategoryCancellation, Amount: dec("1")}, now)
	assert.ErrorIs(t, err, ErrMissingAppointmentID)
	_, err = l.Grant(ctx, GrantInput{Category: CategoryPromotion, Amount: dec("1")}, now)
	assert.ErrorIs(t, err, ErrMissingUserID)
	_, err = l.Grant(ctx, GrantInput{UserID: "u-1", Category: "gift", Amount: dec("1")}, now)
	assert.ErrorIs(t, err, ErrInvalidCategory)
	_, err = l.Grant(ctx, GrantInput{UserID: "u-1", Category: CategoryPromotion, Amount: dec("1"), ExpiresAt: ptrTime(now)}, now)
	assert.ErrorIs(t, err, ErrExpiryInPast)

	txns, _ := l.ListTransactions(ctx, "u-1", 0)
	assert.Empty(t, txns, "rejected grants must not write anything")

	_, err = l.Grant(ctx, GrantInput{UserID: "u-1", Category: CategoryCancellation, Amount: dec("10"), SourceAppointmentID: &appt}, now)
	require.NoError(t, err)
	_, err = l.Grant(ctx, GrantInput{UserID: "u-1", Category: CategoryCancellation, Amount: dec("10"), SourceAppointmentID: &appt}, now)
	assert.ErrorIs(t, err, ErrDuplicateCancellationCredit)
}

func TestMemoryLedger_SplitCancellationCreditKeepsSourceUnique(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	now := time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC)
	source := uuid.New()

	_, err := l.Grant(ctx, GrantInput{
		UserID: "u-1", Category: CategoryCancellation, Amount: dec("100"),
		SourceAppointmentID: &source, CreatedBy: "u-1",
	}, now)
	require.NoError(t, err)

	res, err := l.Use(ctx, UseInput{UserID: "u-1", AppointmentID: uuid.New(), Amount: dec("60")}, now)
	require.NoError(t, err)
	require.NotNil(t, res.Remainder)
	assert.Equal(t, CategoryCancellation, res.Remainder.Category)
	assert.Equal(t, source, *res.Remainder.SourceAppointmentID)

	_, err = l.Grant(ctx, GrantInput{
		UserID: "u-1", Category: CategoryCancellation, Amount: dec("5"),
		SourceAppointmentID: &source, CreatedBy: "u-1",
	}, now)
	assert.ErrorIs(t, err, ErrDuplicateCancellationCredit)
	assertReconciles(t, l, "u-1", now)
}

func TestMemoryLedger_GrantKinds(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLedger()
	for category, kind := range map[Category]TransactionKind{
		CategoryRefund:          KindRefunded,
		CategoryAdminAdjustment: KindAdjustment,
		CategoryPromotion:       KindEarned,
		CategoryMigration:       KindEarned,
	} {
		res, err := l.Grant(ctx, GrantInput{UserID: "u-1", Category: category, Amount: dec("1")}, now)
		require.NoError(t, err)
		assert.Equal(t, kind, res.Transaction.Kind, string(category))
	}
}

func TestMemoryLedger_UseValidation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLedger()
	_, err := l.Use(ctx, UseInput{UserID: "u-1", AppointmentID: uuid.New(), Amount: decimal.Zero}, now)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)
	_, err = l.Use(ctx, UseInput{UserID: "u-1", Amount: dec("1")}, now)
	assert.ErrorIs(t, err, ErrMissingAppointmentID)
	_, err = l.Use(ctx, UseInput{AppointmentID: uuid.New(), Amount: dec("1")}, now)
	assert.ErrorIs(t, err, ErrMissingUserID)
}

func TestMemoryLedger_ReconcilesAfterRandomOperations(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLedger()

	for i := 0; i < 300; i++ {
		now = now.Add(time.Duration(rng.Intn(180)) * time.Minute)
		amount := decimal.New(int64(rng.Intn(20000)+1), -2)
		switch rng.Intn(4) {
		case 0:
			appt := uuid.New()
			_, err := l.Grant(ctx, GrantInput{UserID: "u-1", Category: CategoryCancellation, Amount: amount, SourceAppointmentID: &appt}, now)
			require.NoError(t, err)
		case 1:
			expires := now.Add(time.Duration(rng.Intn(600)+1) * time.Minute)
			_, err := l.Grant(ctx, GrantInput{UserID: "u-1", Category: CategoryPromotion, Amount: amount, ExpiresAt: &expires}, now)
			require.NoError(t, err)
		case 2:
			_, err := l.Use(ctx, UseInput{UserID: "u-1", AppointmentID: uuid.New(), Amount: amount}, now)
			if err != nil {
				require.ErrorIs(t, err, ErrInsufficientCredit)
			}
		case 3:
			_, err := l.ExpireDue(ctx, now)
			require.NoError(t, err)
		}
		// Balance queries see credits that are due but not yet swept as
		// unavailable; sweep first so the comparison is exact.
		_, err := l.ExpireDue(ctx, now)
		require.NoError(t, err)
		assertReconciles(t, l, "u-1", now)
	}
}
