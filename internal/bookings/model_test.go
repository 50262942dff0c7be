package bookings

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/wellness-booking/internal/availability"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tod(s string) availability.TimeOfDay { return availability.MustParseTimeOfDay(s) }

func TestBookInputNormalize(t *testing.T) {
	end := tod("10:30")
	appt, err := BookInput{
		UserID:         " u-1 ",
		ServiceName:    "Deep tissue massage",
		Price:          dec("100000.005"),
		Date:           "2025-09-15",
		Start:          tod("09:00"),
		End:            &end,
		ResourceIDs:    []string{"room-2", "therapist-1", "room-2"},
		CreditsToApply: dec("25000"),
	}.normalize()
	require.NoError(t, err)
	assert.Equal(t, "u-1", appt.UserID)
	assert.True(t, appt.Price.Equal(dec("100000.01")))
	assert.Equal(t, "09:00-10:30", appt.Interval().String())
	assert.Equal(t, []string{"room-2", "therapist-1"}, appt.ResourceIDs)

	appt, err = BookInput{UserID: "u-1", ServiceName: "Yoga", Date: "2025-09-15", Start: tod("18:00"), DurationMinutes: 45, ResourceIDs: []string{"studio"}}.normalize()
	require.NoError(t, err)
	assert.Equal(t, tod("18:45"), appt.End)
}

func TestBookInputNormalizeRejects(t *testing.T) {
	valid := BookInput{UserID: "u-1", ServiceName: "Yoga", Price: dec("100"), Date: "2025-09-15", Start: tod("09:00"), DurationMinutes: 60, ResourceIDs: []string{"studio"}}

	tests := []struct {
		name   string
		mutate func(*BookInput)
		want   error
	}{
		{"missing user", func(in *BookInput) { in.UserID = "" }, ErrMissingUserID},
		{"missing service", func(in *BookInput) { in.ServiceName = " " }, ErrMissingServiceName},
		{"negative price", func(in *BookInput) { in.Price = dec("-1") }, ErrNegativePrice},
		{"credits above price", func(in *BookInput) { in.CreditsToApply = dec("101") }, ErrInvalidCreditAmount},
		{"negative credits", func(in *BookInput) { in.CreditsToApply = dec("-1") }, ErrInvalidCreditAmount},
		{"no duration", func(in *BookInput) { in.DurationMinutes = 0 }, availability.ErrInvalidInterval},
		{"past midnight", func(in *BookInput) { in.Start = tod("23:30") }, availability.ErrInvalidInterval},
		{"bad date", func(in *BookInput) { in.Date = "tomorrow" }, availability.ErrInvalidDate},
		{"no resources", func(in *BookInput) { in.ResourceIDs = nil }, availability.ErrMissingResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := in.normalize()
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestAppointmentStartsAtUsesClinicZone(t *testing.T) {
	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)
	appt := Appointment{Date: "2025-09-15", Start: tod("09:00"), End: tod("10:00")}

	got := appt.StartsAt(loc)
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, loc, got.Location())
	assert.Equal(t, time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC), appt.StartsAt(nil))
}
