package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInterval = errors.New("availability: interval start must be before end")
	ErrInvalidDate     = errors.New("availability: date must be YYYY-MM-DD")
	ErrMissingResource = errors.New("availability: at least one resource id is required")
)

const DateLayout = "2006-01-02"

// ParseDate validates a YYYY-MM-DD date and returns it normalized.
func ParseDate(s string) (string, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d.Format(DateLayout), nil
}

// Interval is a half-open [Start, End) span within one day.
type Interval struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// NewInterval validates start < end within the day.
func NewInterval(start, end TimeOfDay) (Interval, error) {
	iv := Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// IntervalFor builds [start, start+minutes).
func IntervalFor(start TimeOfDay, minutes int) (Interval, error) {
	return NewInterval(start, start.Add(minutes))
}

func (iv Interval) Validate() error {
	if !iv.Start.Valid() || !iv.End.Valid() || iv.Start >= iv.End {
		return fmt.Errorf("%w: %s-%s", ErrInvalidInterval, iv.Start, iv.End)
	}
	return nil
}

// Overlaps reports whether the half-open intervals share any minute.
// Touching endpoints do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && iv.End > other.Start
}

func (iv Interval) Minutes() int {
	return int(iv.End - iv.Start)
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

// HasConflict reports whether proposed overlaps any existing interval.
// Callers filter existing to one resource, one date and active bookings.
func HasConflict(proposed Interval, existing []Interval) bool {
	for _, e := range existing {
		if proposed.Overlaps(e) {
			return true
		}
	}
	return false
}

// Conflicts returns the existing intervals that overlap proposed, in input order.
func Conflicts(proposed Interval, existing []Interval) []Interval {
	var out []Interval
	for _, e := range existing {
		if proposed.Overlaps(e) {
			out = append(out, e)
		}
	}
	return out
}

// Status is the lifecycle state of a booking on a resource.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// ActiveStatuses are the statuses that occupy a resource.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

// Active reports whether s blocks the resource.
func (s Status) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// BookingInterval is the span one appointment occupies on one resource.
type BookingInterval struct {
	ResourceID    string    `json:"resource_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Date          string    `json:"date"`
	Interval      Interval  `json:"interval"`
	Status        Status    `json:"status"`
}

// ActiveIntervals filters bookings down to the active intervals of one
// resource on one date, optionally skipping an appointment being moved.
func ActiveIntervals(bookings []BookingInterval, resourceID, date string, exclude uuid.UUID) []Interval {
	var out []Interval
	for _, b := range bookings {
		if b.ResourceID != resourceID || b.Date != date || !b.Status.Active() {
			continue
		}
		if exclude != uuid.Nil && b.AppointmentID == exclude {
			continue
		}
		out = append(out, b.Interval)
	}
	return out
}
