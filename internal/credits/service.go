package credits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wolfman30/wellness-booking/internal/identity"
	"github.com/wolfman30/wellness-booking/internal/observability/metrics"
	"github.com/wolfman30/wellness-booking/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("wellness.internal.credits")

// Service is the credit policy engine: it quotes cancellation credits and
// drives the ledger.
type Service struct {
	ledger  Ledger
	logger  *logging.Logger
	metrics *metrics.CreditMetrics
	now     func() time.Time
}

func NewService(ledger Ledger, logger *logging.Logger, m *metrics.CreditMetrics) *Service {
	if ledger == nil {
		panic("credits: ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		ledger:  ledger,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.now()
}

// Quote prices a cancellation made now.
func (s *Service) Quote(amount decimal.Decimal, appointmentAt time.Time) (Quote, error) {
	return CalculateCancellationCredit(amount, appointmentAt, s.now())
}

// CreateCancellationCredit issues a cancellation credit linked to the cancelled appointment.
func (s *Service) CreateCancellationCredit(ctx context.Context, userID string, appointmentID uuid.UUID, amount decimal.Decimal, description string) (uuid.UUID, error) {
	apptID := appointmentID
	credit, err := s.Grant(ctx, GrantInput{
		UserID:              userID,
		Category:            CategoryCancellation,
		Amount:              amount,
		Description:         description,
		SourceAppointmentID: &apptID,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return credit.ID, nil
}

// Grant adds a credit of any category. CreatedBy defaults to the actor in ctx.
func (s *Service) Grant(ctx context.Context, in GrantInput) (Credit, error) {
	ctx, span := tracer.Start(ctx, "credits.grant", trace.WithAttributes(
		attribute.String("user_id", in.UserID),
		attribute.String("category", string(in.Category)),
	))
	defer span.End()
	start := time.Now()

	if in.CreatedBy == "" {
		in.CreatedBy = identity.ActorIDOrSystem(ctx)
	}
	if in.NotifyEmail == "" {
		if actor, ok := identity.ActorFromContext(ctx); ok && actor.ID == in.UserID {
			in.NotifyEmail = actor.Email
		}
	}

	res, err := s.ledger.Grant(ctx, in, s.now())
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveLatency("grant", "error", time.Since(start).Seconds())
		if !IsValidation(err) && !errors.Is(err, ErrDuplicateCancellationCredit) {
			s.logger.Error("credit grant failed", "user_id", in.UserID, "category", in.Category, "error", err)
		}
		return Credit{}, err
	}
	s.metrics.ObserveLatency("grant", "ok", time.Since(start).Seconds())
	s.metrics.ObserveGranted(string(in.Category), res.Credit.Amount.InexactFloat64())
	s.logger.Info("credit granted",
		"credit_id", res.Credit.ID,
		"user_id", in.UserID,
		"category", in.Category,
		"amount", res.Credit.Amount.StringFixed(2),
		"balance_after", res.Transaction.BalanceAfter.StringFixed(2),
	)
	return res.Credit, nil
}

// GetUserCreditBalance returns the spendable balance right now.
func (s *Service) GetUserCreditBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if userID == "" {
		return decimal.Zero, ErrMissingUserID
	}
	ctx, span := tracer.Start(ctx, "credits.balance", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	balance, err := s.ledger.Balance(ctx, userID, s.now())
	if err != nil {
		span.RecordError(err)
		return decimal.Zero, err
	}
	return balance, nil
}

// UseCreditsForAppointment spends amount from the user's oldest credits. It
// returns *InsufficientCreditError, with nothing changed, when the balance is short.
func (s *Service) UseCreditsForAppointment(ctx context.Context, userID string, appointmentID uuid.UUID, amount decimal.Decimal) (bool, error) {
	ctx, span := tracer.Start(ctx, "credits.use", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("appointment_id", appointmentID.String()),
	))
	defer span.End()
	start := time.Now()

	in := UseInput{
		UserID:        userID,
		AppointmentID: appointmentID,
		Amount:        amount,
		CreatedBy:     identity.ActorIDOrSystem(ctx),
	}
	if actor, ok := identity.ActorFromContext(ctx); ok && actor.ID == userID {
		in.NotifyEmail = actor.Email
	}
	res, err := s.ledger.Use(ctx, in, s.now())
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveLatency("use", "error", time.Since(start).Seconds())
		var insufficient *InsufficientCreditError
		switch {
		case errors.As(err, &insufficient):
			s.metrics.ObserveInsufficient()
			s.logger.Warn("insufficient credit",
				"user_id", userID,
				"requested", insufficient.Requested.StringFixed(2),
				"available", insufficient.Available.StringFixed(2),
			)
		case !IsValidation(err):
			s.logger.Error("credit redemption failed", "user_id", userID, "error", err)
		}
		return false, err
	}
	s.metrics.ObserveLatency("use", "ok", time.Since(start).Seconds())
	s.metrics.ObserveUsed(amount.InexactFloat64())
	logArgs := []any{
		"user_id", userID,
		"appointment_id", appointmentID,
		"amount", amount.StringFixed(2),
		"credits_consumed", len(res.Consumed),
		"balance_after", res.Transaction.BalanceAfter.StringFixed(2),
	}
	if res.Remainder != nil {
		logArgs = append(logArgs, "remainder_id", res.Remainder.ID, "remainder", res.Remainder.Amount.StringFixed(2))
	}
	s.logger.Info("credits used", logArgs...)
	return true, nil
}

// ExpireOldCredits runs the expiry sweep and returns how many credits expired.
func (s *Service) ExpireOldCredits(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "credits.expire")
	defer span.End()
	start := time.Now()

	n, err := s.ledger.ExpireDue(ctx, s.now())
	s.metrics.ObserveExpired(n)
	span.SetAttributes(attribute.Int("expired", n))
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveLatency("expire", "error", time.Since(start).Seconds())
		return n, err
	}
	s.metrics.ObserveLatency("expire", "ok", time.Since(start).Seconds())
	if n > 0 {
		s.logger.Info("credits expired", "count", n)
	}
	return n, nil
}

func (s *Service) ListCredits(ctx context.Context, userID string) ([]Credit, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	return s.ledger.ListCredits(ctx, userID)
}

func (s *Service) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	return s.ledger.ListTransactions(ctx, userID, limit)
}

// TransactionsBetween returns ledger entries created in [from, to).
func (s *Service) TransactionsBetween(ctx context.Context, from, to time.Time) ([]Transaction, error) {
	return s.ledger.TransactionsBetween(ctx, from, to)
}
