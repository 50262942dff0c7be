package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/wolfman30/wellness-booking/internal/availability"
	"github.com/wolfman30/wellness-booking/internal/credits"
	"github.com/wolfman30/wellness-booking/internal/events"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

// Repository persists appointments together with the intervals they hold on
// each resource.
type Repository interface {
	// Create stores appt and, when spend is set, redeems those credits in the
	// same unit of work.
	Create(ctx context.Context, appt Appointment, spend *credits.UseInput, now time.Time) (Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (Appointment, error)
	ListForUser(ctx context.Context, userID string) ([]Appointment, error)
	// Cancel moves an active appointment and its intervals to cancelled.
	Cancel(ctx context.Context, id uuid.UUID, cancelledBy string, now time.Time) (Appointment, error)
	// Reschedule moves an active appointment and returns it before and after.
	Reschedule(ctx context.Context, id uuid.UUID, date string, iv availability.Interval, now time.Time) (Appointment, Appointment, error)
}

// DB abstracts the pgx pool for testing.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CreditSpender redeems credits inside a caller-owned transaction.
type CreditSpender interface {
	UseTx(ctx context.Context, tx pgx.Tx, in credits.UseInput, now time.Time) (credits.UseResult, error)
}

const (
	exclusionViolation = "23P01"

	appointmentColumns = `id, user_id, service_name, price, to_char(appointment_date, 'YYYY-MM-DD'),
		start_minute, end_minute, resource_ids, status, credits_applied, cancelled_at,
		COALESCE(cancelled_by, ''), created_at, updated_at`
)

// PostgresRepository stores appointments in PostgreSQL. The booking_intervals
// exclusion constraint rejects overlapping active intervals on a resource.
type PostgresRepository struct {
	db      DB
	credits CreditSpender
	logger  *logging.Logger
}

// NewPostgresRepository creates a repository backed by pgx. spender may be nil
// when credit redemption at booking time is not offered.
func NewPostgresRepository(db DB, spender CreditSpender, logger *logging.Logger) *PostgresRepository {
	if db == nil {
		panic("bookings: db required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresRepository{db: db, credits: spender, logger: logger}
}

func (r *PostgresRepository) Create(ctx context.Context, appt Appointment, spend *credits.UseInput, now time.Time) (Appointment, error) {
	if spend != nil && r.credits == nil {
		return Appointment{}, errNoLedger
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Appointment{}, fmt.Errorf("bookings: begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	appt.Status = availability.StatusScheduled
	appt.CreatedAt = now
	appt.UpdatedAt = now
	if _, err := tx.Exec(ctx, `
		INSERT INTO appointments (id, user_id, service_name, price, appointment_date, start_minute,
			end_minute, resource_ids, status, credits_applied, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10, $11, $12)`,
		appt.ID, appt.UserID, appt.ServiceName, appt.Price, appt.Date, int32(appt.Start),
		int32(appt.End), appt.ResourceIDs, string(appt.Status), appt.CreditsApplied, now, now,
	); err != nil {
		return Appointment{}, fmt.Errorf("bookings: insert appointment: %w", err)
	}
	for _, resourceID := range appt.ResourceIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO booking_intervals (appointment_id, resource_id, booking_date, start_minute, end_minute, status)
			VALUES ($1, $2, $3::date, $4, $5, $6)`,
			appt.ID, resourceID, appt.Date, int32(appt.Start), int32(appt.End), string(appt.Status),
		); err != nil {
			if isExclusionViolation(err) {
				r.logger.Debug("booking lost race for resource", "resource_id", resourceID, "date", appt.Date, "interval", appt.Interval().String())
				return Appointment{}, ErrSlotTaken
			}
			return Appointment{}, fmt.Errorf("bookings: insert interval: %w", err)
		}
	}

	evt := events.AppointmentBookedV1{
		AppointmentID: appt.ID.String(),
		UserID:        appt.UserID,
		ServiceName:   appt.ServiceName,
		Price:         appt.Price.StringFixed(2),
		Date:          appt.Date,
		Start:         appt.Start.String(),
		End:           appt.End.String(),
		ResourceIDs:   appt.ResourceIDs,
		BookedAt:      now,
	}
	if spend != nil {
		if _, err := r.credits.UseTx(ctx, tx, *spend, now); err != nil {
			return Appointment{}, err
		}
		evt.CreditsUsed = spend.Amount.StringFixed(2)
	}
	if _, err := events.AppendCanonicalEvent(ctx, tx, events.AppointmentAggregate(appt.ID), "", evt); err != nil {
		return Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Appointment{}, fmt.Errorf("bookings: commit create: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	appt, err := scanAppointment(r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return Appointment{}, err
	}
	return appt, nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY appointment_date DESC, start_minute DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("bookings: list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: iterate appointments: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Cancel(ctx context.Context, id uuid.UUID, cancelledBy string, now time.Time) (Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Appointment{}, fmt.Errorf("bookings: begin cancel: %w", err)
	}
	defer tx.Rollback(ctx)

	appt, err := lockAppointment(ctx, tx, id)
	if err != nil {
		return Appointment{}, err
	}
	if !appt.Status.Active() {
		return Appointment{}, ErrNotActive
	}

	appt.Status = availability.StatusCancelled
	appt.CancelledAt = &now
	appt.CancelledBy = cancelledBy
	appt.UpdatedAt = now
	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2, cancelled_at = $3, cancelled_by = $4, updated_at = $3
		WHERE id = $1`, id, string(appt.Status), now, cancelledBy); err != nil {
		return Appointment{}, fmt.Errorf("bookings: cancel appointment: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE booking_intervals SET status = $2 WHERE appointment_id = $1`, id, string(appt.Status)); err != nil {
		return Appointment{}, fmt.Errorf("bookings: release intervals: %w", err)
	}
	if _, err := events.AppendCanonicalEvent(ctx, tx, events.AppointmentAggregate(id), "", events.AppointmentCancelledV1{
		AppointmentID: id.String(),
		UserID:        appt.UserID,
		CancelledBy:   cancelledBy,
		CancelledAt:   now,
	}); err != nil {
		return Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Appointment{}, fmt.Errorf("bookings: commit cancel: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) Reschedule(ctx context.Context, id uuid.UUID, date string, iv availability.Interval, now time.Time) (Appointment, Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Appointment{}, Appointment{}, fmt.Errorf("bookings: begin reschedule: %w", err)
	}
	defer tx.Rollback(ctx)

	before, err := lockAppointment(ctx, tx, id)
	if err != nil {
		return Appointment{}, Appointment{}, err
	}
	if !before.Status.Active() {
		return Appointment{}, Appointment{}, ErrNotActive
	}

	var blocked []availability.ResourceConflict
	for _, resourceID := range before.ResourceIDs {
		held, err := availability.QueryActiveIntervals(ctx, tx, resourceID, date, true)
		if err != nil {
			return Appointment{}, Appointment{}, err
		}
		overlapping := availability.Conflicts(iv, availability.ActiveIntervals(held, resourceID, date, id))
		if len(overlapping) > 0 {
			blocked = append(blocked, availability.ResourceConflict{ResourceID: resourceID, Intervals: overlapping})
		}
	}
	if len(blocked) > 0 {
		return Appointment{}, Appointment{}, &ConflictError{Conflicts: blocked}
	}

	after := before
	after.Date = date
	after.Start = iv.Start
	after.End = iv.End
	after.UpdatedAt = now
	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET appointment_date = $2::date, start_minute = $3, end_minute = $4, updated_at = $5
		WHERE id = $1`, id, date, int32(iv.Start), int32(iv.End), now); err != nil {
		return Appointment{}, Appointment{}, fmt.Errorf("bookings: move appointment: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE booking_intervals
		SET booking_date = $2::date, start_minute = $3, end_minute = $4
		WHERE appointment_id = $1`, id, date, int32(iv.Start), int32(iv.End)); err != nil {
		if isExclusionViolation(err) {
			return Appointment{}, Appointment{}, ErrSlotTaken
		}
		return Appointment{}, Appointment{}, fmt.Errorf("bookings: move intervals: %w", err)
	}
	if _, err := events.AppendCanonicalEvent(ctx, tx, events.AppointmentAggregate(id), "", events.AppointmentRescheduledV1{
		AppointmentID: id.String(),
		UserID:        before.UserID,
		OldDate:       before.Date,
		OldStart:      before.Start.String(),
		NewDate:       date,
		NewStart:      iv.Start.String(),
		NewEnd:        iv.End.String(),
		RescheduledAt: now,
	}); err != nil {
		return Appointment{}, Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Appointment{}, Appointment{}, fmt.Errorf("bookings: commit reschedule: %w", err)
	}
	return before, after, nil
}

func lockAppointment(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	var start, end int32
	var status string
	var price, applied decimal.Decimal
	err := row.Scan(
		&a.ID, &a.UserID, &a.ServiceName, &price, &a.Date, &start, &end, &a.ResourceIDs,
		&status, &applied, &a.CancelledAt, &a.CancelledBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("bookings: scan appointment: %w", err)
	}
	a.Price = price
	a.CreditsApplied = applied
	a.Start = availability.TimeOfDay(start)
	a.End = availability.TimeOfDay(end)
	a.Status = availability.Status(status)
	return a, nil
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == exclusionViolation
}
