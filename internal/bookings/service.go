package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/wellness-booking/internal/availability"
	"github.com/wolfman30/wellness-booking/internal/credits"
	"github.com/wolfman30/wellness-booking/internal/identity"
	"github.com/wolfman30/wellness-booking/internal/observability/metrics"
	"github.com/wolfman30/wellness-booking/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var bookingsTracer = otel.Tracer("wellness.internal.bookings")

// Invalidator drops cached availability after a booking changes.
type Invalidator interface {
	Invalidate(ctx context.Context, resourceID, date string) error
}

// Service books, cancels and reschedules appointments.
type Service struct {
	repo    Repository
	checker *availability.Checker
	credits *credits.Service
	cache   Invalidator
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
	loc     *time.Location
	now     func() time.Time
}

// NewService constructs a bookings service.
func NewService(repo Repository, checker *availability.Checker, creditSvc *credits.Service, logger *logging.Logger, m *metrics.BookingMetrics) *Service {
	if repo == nil {
		panic("bookings: repository required")
	}
	if checker == nil {
		panic("bookings: availability checker required")
	}
	if creditSvc == nil {
		panic("bookings: credit service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:    repo,
		checker: checker,
		credits: creditSvc,
		metrics: m,
		logger:  logger,
		loc:     time.UTC,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithInvalidator sets the availability cache to clear on writes.
func (s *Service) WithInvalidator(inv Invalidator) *Service {
	s.cache = inv
	return s
}

// WithLocation sets the clinic time zone that appointment dates are in.
func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Book validates the request, pre-checks every resource and stores the
// appointment, spending credits in the same unit of work when requested.
func (s *Service) Book(ctx context.Context, in BookInput) (Appointment, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.book", trace.WithAttributes(
		attribute.String("date", in.Date),
		attribute.StringSlice("resource_ids", in.ResourceIDs),
	))
	defer span.End()

	actor, ok := identity.ActorFromContext(ctx)
	if in.UserID == "" && ok {
		in.UserID = actor.ID
	}
	if ok && in.UserID != actor.ID && !actor.IsStaff() {
		s.metrics.Observe("book", "forbidden")
		return Appointment{}, ErrForbidden
	}
	appt, err := in.normalize()
	if err != nil {
		s.metrics.Observe("book", "invalid")
		return Appointment{}, err
	}
	now := s.now()
	if !appt.StartsAt(s.loc).After(now) {
		s.metrics.Observe("book", "invalid")
		return Appointment{}, ErrStartInPast
	}

	check, err := s.checker.Check(ctx, availability.CheckRequest{
		Date:        appt.Date,
		Interval:    appt.Interval(),
		ResourceIDs: appt.ResourceIDs,
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.Observe("book", "error")
		return Appointment{}, err
	}
	if !check.Available {
		s.metrics.Observe("book", "conflict")
		return Appointment{}, &ConflictError{Conflicts: check.Conflicts}
	}

	appt.ID = uuid.New()
	var spend *credits.UseInput
	if appt.CreditsApplied.IsPositive() {
		spend = &credits.UseInput{
			UserID:        appt.UserID,
			AppointmentID: appt.ID,
			Amount:        appt.CreditsApplied,
			CreatedBy:     identity.ActorIDOrSystem(ctx),
		}
		if ok && actor.ID == appt.UserID {
			spend.NotifyEmail = actor.Email
		}
	}

	stored, err := s.repo.Create(ctx, appt, spend, now)
	if err != nil {
		span.RecordError(err)
		s.metrics.Observe("book", outcome(err))
		if errors.Is(err, ErrSlotTaken) || errors.Is(err, credits.ErrInsufficientCredit) {
			s.logger.Warn("booking rejected", "user_id", appt.UserID, "date", appt.Date, "interval", appt.Interval().String(), "error", err)
		} else if !IsValidation(err) && !credits.IsValidation(err) {
			s.logger.Error("booking failed", "user_id", appt.UserID, "error", err)
		}
		return Appointment{}, err
	}
	s.invalidate(ctx, stored.ResourceIDs, stored.Date)
	s.metrics.Observe("book", "ok")
	span.SetAttributes(attribute.String("appointment_id", stored.ID.String()))
	s.logger.Info("appointment booked",
		"appointment_id", stored.ID,
		"user_id", stored.UserID,
		"date", stored.Date,
		"interval", stored.Interval().String(),
		"resources", len(stored.ResourceIDs),
		"credits_applied", stored.CreditsApplied.StringFixed(2),
	)
	return stored, nil
}

// Get returns an appointment visible to the caller.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	actor, ok := identity.ActorFromContext(ctx)
	if ok && actor.ID != appt.UserID && !actor.IsStaff() {
		return Appointment{}, ErrForbidden
	}
	return appt, nil
}

// ListForUser returns a user's appointments, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Appointment, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	return s.repo.ListForUser(ctx, userID)
}

// Cancel cancels an active appointment on behalf of its owner or an admin and
// issues the cancellation credit its notice earns. Calling it again on an
// appointment whose credit was never recorded retries the issuance against
// the original cancellation time.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (CancelResult, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.cancel", trace.WithAttributes(attribute.String("appointment_id", id.String())))
	defer span.End()

	actor, ok := identity.ActorFromContext(ctx)
	if !ok {
		s.metrics.Observe("cancel", "forbidden")
		return CancelResult{}, ErrForbidden
	}
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		s.metrics.Observe("cancel", outcome(err))
		return CancelResult{}, err
	}
	if actor.ID != appt.UserID && !actor.IsAdmin() {
		s.metrics.Observe("cancel", "forbidden")
		return CancelResult{}, ErrForbidden
	}

	retry := false
	switch {
	case appt.Status.Active():
		appt, err = s.repo.Cancel(ctx, id, actor.ID, s.now())
		if err != nil {
			span.RecordError(err)
			s.metrics.Observe("cancel", outcome(err))
			return CancelResult{}, err
		}
		s.invalidate(ctx, appt.ResourceIDs, appt.Date)
	case appt.Status == availability.StatusCancelled && appt.CancelledAt != nil:
		retry = true
	default:
		s.metrics.Observe("cancel", "not_active")
		return CancelResult{}, ErrNotActive
	}

	quote, err := credits.CalculateCancellationCredit(appt.Price, appt.StartsAt(s.loc), *appt.CancelledAt)
	if err != nil {
		span.RecordError(err)
		s.metrics.Observe("cancel", "error")
		return CancelResult{}, err
	}
	result := CancelResult{
		Appointment:      appt,
		RefundPercentage: quote.RefundPercentage,
		CreditAmount:     quote.CreditAmount,
	}
	if !quote.CreditAmount.IsPositive() {
		if retry {
			s.metrics.Observe("cancel", "not_active")
			return CancelResult{}, ErrNotActive
		}
		s.metrics.Observe("cancel", "ok")
		s.logger.Info("appointment cancelled without credit", "appointment_id", id, "hours_until", quote.HoursUntil)
		return result, nil
	}

	description := fmt.Sprintf("Cancellation of %s on %s %s (%d%%)", appt.ServiceName, appt.Date, appt.Start, quote.RefundPercentage)
	creditID, err := s.credits.CreateCancellationCredit(ctx, appt.UserID, appt.ID, quote.CreditAmount, description)
	switch {
	case retry && errors.Is(err, credits.ErrDuplicateCancellationCredit):
		s.metrics.Observe("cancel", "not_active")
		return CancelResult{}, ErrNotActive
	case err != nil:
		span.RecordError(err)
		s.metrics.Observe("cancel", "error")
		s.logger.Error("cancellation credit not issued", "appointment_id", id, "user_id", appt.UserID, "error", err)
		return CancelResult{}, err
	}
	result.CreditID = &creditID
	s.metrics.Observe("cancel", "ok")
	s.logger.Info("appointment cancelled",
		"appointment_id", id,
		"cancelled_by", actor.ID,
		"refund_percentage", quote.RefundPercentage,
		"credit_id", creditID,
		"credit_amount", quote.CreditAmount.StringFixed(2),
		"retry", retry,
	)
	return result, nil
}

// Reschedule moves an appointment to a new date and start, keeping its
// duration and resources.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, in RescheduleInput) (Appointment, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.reschedule", trace.WithAttributes(attribute.String("appointment_id", id.String())))
	defer span.End()

	current, err := s.Get(ctx, id)
	if err != nil {
		s.metrics.Observe("reschedule", outcome(err))
		return Appointment{}, err
	}
	if !current.Status.Active() {
		s.metrics.Observe("reschedule", "not_active")
		return Appointment{}, ErrNotActive
	}
	req := availability.CheckRequest{
		Date:        in.Date,
		Interval:    availability.Interval{Start: in.Start, End: in.Start.Add(current.Interval().Minutes())},
		ResourceIDs: current.ResourceIDs,
		Exclude:     id,
	}
	if err := req.Validate(); err != nil {
		s.metrics.Observe("reschedule", "invalid")
		return Appointment{}, err
	}
	moved := current
	moved.Date = req.Date
	moved.Start = req.Interval.Start
	if !moved.StartsAt(s.loc).After(s.now()) {
		s.metrics.Observe("reschedule", "invalid")
		return Appointment{}, ErrStartInPast
	}

	check, err := s.checker.Check(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.metrics.Observe("reschedule", "error")
		return Appointment{}, err
	}
	if !check.Available {
		s.metrics.Observe("reschedule", "conflict")
		return Appointment{}, &ConflictError{Conflicts: check.Conflicts}
	}

	before, after, err := s.repo.Reschedule(ctx, id, req.Date, req.Interval, s.now())
	if err != nil {
		span.RecordError(err)
		s.metrics.Observe("reschedule", outcome(err))
		return Appointment{}, err
	}
	s.invalidate(ctx, before.ResourceIDs, before.Date)
	if after.Date != before.Date {
		s.invalidate(ctx, after.ResourceIDs, after.Date)
	}
	s.metrics.Observe("reschedule", "ok")
	s.logger.Info("appointment rescheduled",
		"appointment_id", id,
		"from", before.Date+" "+before.Interval().String(),
		"to", after.Date+" "+after.Interval().String(),
	)
	return after, nil
}

func (s *Service) invalidate(ctx context.Context, resourceIDs []string, date string) {
	if s.cache == nil {
		return
	}
	for _, r := range resourceIDs {
		if err := s.cache.Invalidate(ctx, r, date); err != nil {
			s.logger.Warn("availability cache invalidation failed", "resource_id", r, "date", date, "error", err)
		}
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrSlotTaken):
		return "conflict"
	case errors.Is(err, credits.ErrInsufficientCredit):
		return "insufficient_credit"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotActive):
		return "not_active"
	case IsValidation(err), credits.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}
