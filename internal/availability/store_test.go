package availability

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var intervalColumns = []string{"resource_id", "appointment_id", "to_char", "start_minute", "end_minute", "status"}

func TestPostgresStore_ActiveIntervals(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	appt := uuid.New()
	mock.ExpectQuery("FROM booking_intervals").WithArgs("instructor-7", "2025-09-15").
		WillReturnRows(pgxmock.NewRows(intervalColumns).
			AddRow("instructor-7", appt, "2025-09-15", int32(540), int32(600), "confirmed"))

	got, err := NewPostgresStore(mock).ActiveIntervals(context.Background(), "instructor-7", "2025-09-15")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, appt, got[0].AppointmentID)
	assert.Equal(t, "09:00-10:00", got[0].Interval.String())
	assert.Equal(t, StatusConfirmed, got[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryActiveIntervals_ForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ORDER BY start_minute\s+FOR UPDATE`).WithArgs("room-1", "2025-09-15").
		WillReturnRows(pgxmock.NewRows(intervalColumns))

	got, err := QueryActiveIntervals(context.Background(), mock, "room-1", "2025-09-15", true)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryActiveIntervals_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery("FROM booking_intervals").
		WithArgs("room-1", "2025-09-15").
		WillReturnError(boom)

	_, err = QueryActiveIntervals(context.Background(), mock, "room-1", "2025-09-15", false)
	assert.ErrorIs(t, err, boom)
}
