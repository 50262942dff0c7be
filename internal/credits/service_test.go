package credits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/wellness-booking/internal/identity"
	"github.com/wolfman30/wellness-booking/internal/observability/metrics"
)

func newTestService(t *testing.T, now time.Time) (*Service, *MemoryLedger) {
	t.Helper()
	ledger := NewMemoryLedger()
	svc := NewService(ledger, nil, metrics.NewCreditMetrics(prometheus.NewRegistry())).
		WithClock(func() time.Time { return now })
	return svc, ledger
}

func TestService_CancellationCreditThenUse(t *testing.T) {
	now := time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC)
	svc, ledger := newTestService(t, now)
	ctx := identity.WithActor(context.Background(), identity.Actor{ID: "u-1", Role: identity.RolePatient, Email: "pat@example.com"})

	quote, err := svc.Quote(dec("100000"), now.Add(20*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(75), quote.RefundPercentage)

	creditID, err := svc.CreateCancellationCredit(ctx, "u-1", uuid.New(), quote.CreditAmount, "cancelled facial")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, creditID)

	balance, err := svc.GetUserCreditBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("75000")))

	ok, err := svc.UseCreditsForAppointment(ctx, "u-1", uuid.New(), dec("80000"))
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrInsufficientCredit))

	ok, err = svc.UseCreditsForAppointment(ctx, "u-1", uuid.New(), dec("25000"))
	require.NoError(t, err)
	assert.True(t, ok)

	balance, err = svc.GetUserCreditBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("50000")))

	txns, err := svc.ListTransactions(ctx, "u-1", 10)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, KindUsed, txns[0].Kind)
	assert.Equal(t, "u-1", txns[0].CreatedBy)
	assertReconciles(t, ledger, "u-1", now)
}

func TestService_GrantDefaultsCreatedByToActor(t *testing.T) {
	now := time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)
	ctx := identity.WithActor(context.Background(), identity.Actor{ID: "admin-7", Role: identity.RoleAdmin})

	_, err := svc.Grant(ctx, GrantInput{UserID: "u-2", Category: CategoryAdminAdjustment, Amount: dec("15")})
	require.NoError(t, err)

	txns, err := svc.ListTransactions(ctx, "u-2", 0)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "admin-7", txns[0].CreatedBy)
	assert.Equal(t, KindAdjustment, txns[0].Kind)
}

func TestService_ExpireOldCredits(t *testing.T) {
	now := time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC)
	current := now
	ledger := NewMemoryLedger()
	svc := NewService(ledger, nil, nil).WithClock(func() time.Time { return current })

	expires := now.Add(time.Hour)
	_, err := svc.Grant(context.Background(), GrantInput{UserID: "u-1", Category: CategoryPromotion, Amount: dec("20"), ExpiresAt: &expires})
	require.NoError(t, err)

	current = expires
	n, err := svc.ExpireOldCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.ExpireOldCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestService_RequiresUserID(t *testing.T) {
	svc, _ := newTestService(t, time.Now())
	_, err := svc.GetUserCreditBalance(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingUserID)
	_, err = svc.ListCredits(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingUserID)
	_, err = svc.CreateCancellationCredit(context.Background(), "u-1", uuid.Nil, dec("1"), "")
	assert.ErrorIs(t, err, ErrMissingAppointmentID)
}
