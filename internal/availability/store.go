package availability

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// IntervalStore loads the active booking intervals of one resource on one date.
type IntervalStore interface {
	ActiveIntervals(ctx context.Context, resourceID, date string) ([]BookingInterval, error)
}

// Querier is satisfied by pgx pools and transactions.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore reads booking_intervals.
type PostgresStore struct {
	db Querier
}

func NewPostgresStore(db Querier) *PostgresStore {
	if db == nil {
		panic("availability: db required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ActiveIntervals(ctx context.Context, resourceID, date string) ([]BookingInterval, error) {
	return QueryActiveIntervals(ctx, s.db, resourceID, date, false)
}

// QueryActiveIntervals selects active intervals ordered by start. With
// forUpdate the rows stay locked until the caller's transaction ends.
func QueryActiveIntervals(ctx context.Context, q Querier, resourceID, date string, forUpdate bool) ([]BookingInterval, error) {
	query := `
		SELECT resource_id, appointment_id, to_char(booking_date, 'YYYY-MM-DD'), start_minute, end_minute, status
		FROM booking_intervals
		WHERE resource_id = $1 AND booking_date = $2::date
		  AND status IN ('scheduled', 'confirmed', 'in_progress')
		ORDER BY start_minute`
	if forUpdate {
		query += `
		FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, resourceID, date)
	if err != nil {
		return nil, fmt.Errorf("availability: query intervals: %w", err)
	}
	defer rows.Close()

	var out []BookingInterval
	for rows.Next() {
		var b BookingInterval
		var start, end int32
		var status string
		if err := rows.Scan(&b.ResourceID, &b.AppointmentID, &b.Date, &start, &end, &status); err != nil {
			return nil, fmt.Errorf("availability: scan interval: %w", err)
		}
		b.Interval = Interval{Start: TimeOfDay(start), End: TimeOfDay(end)}
		b.Status = Status(status)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("availability: iterate intervals: %w", err)
	}
	return out, nil
}
