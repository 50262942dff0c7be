package bookings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/wellness-booking/internal/availability"
	"github.com/wolfman30/wellness-booking/internal/credits"
)

// MemoryRepository keeps appointments in process for local runs and tests.
// Its mutex stands in for the exclusion constraint, and it doubles as the
// availability.IntervalStore for the same data.
type MemoryRepository struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	ledger       credits.Ledger
}

// NewMemoryRepository creates an empty repository. ledger may be nil when
// credit redemption at booking time is not offered.
func NewMemoryRepository(ledger credits.Ledger) *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]*Appointment),
		ledger:       ledger,
	}
}

func (m *MemoryRepository) Create(ctx context.Context, appt Appointment, spend *credits.UseInput, now time.Time) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conflicts := m.conflictsLocked(appt.ResourceIDs, appt.Date, appt.Interval(), uuid.Nil); len(conflicts) > 0 {
		return Appointment{}, ErrSlotTaken
	}
	if spend != nil {
		if m.ledger == nil {
			return Appointment{}, errNoLedger
		}
		if _, err := m.ledger.Use(ctx, *spend, now); err != nil {
			return Appointment{}, err
		}
	}
	appt.Status = availability.StatusScheduled
	appt.ResourceIDs = append([]string(nil), appt.ResourceIDs...)
	appt.CreatedAt = now
	appt.UpdatedAt = now
	stored := appt
	m.appointments[appt.ID] = &stored
	return appt, nil
}

func (m *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return copyAppointment(a), nil
}

func (m *MemoryRepository) ListForUser(ctx context.Context, userID string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.UserID == userID {
			out = append(out, copyAppointment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].Start > out[j].Start
	})
	return out, nil
}

func (m *MemoryRepository) Cancel(ctx context.Context, id uuid.UUID, cancelledBy string, now time.Time) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	if !a.Status.Active() {
		return Appointment{}, ErrNotActive
	}
	cancelledAt := now
	a.Status = availability.StatusCancelled
	a.CancelledAt = &cancelledAt
	a.CancelledBy = cancelledBy
	a.UpdatedAt = now
	return copyAppointment(a), nil
}

func (m *MemoryRepository) Reschedule(ctx context.Context, id uuid.UUID, date string, iv availability.Interval, now time.Time) (Appointment, Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return Appointment{}, Appointment{}, ErrNotFound
	}
	if !a.Status.Active() {
		return Appointment{}, Appointment{}, ErrNotActive
	}
	if conflicts := m.conflictsLocked(a.ResourceIDs, date, iv, id); len(conflicts) > 0 {
		return Appointment{}, Appointment{}, &ConflictError{Conflicts: conflicts}
	}
	before := copyAppointment(a)
	a.Date = date
	a.Start = iv.Start
	a.End = iv.End
	a.UpdatedAt = now
	return before, copyAppointment(a), nil
}

// ActiveIntervals implements availability.IntervalStore.
func (m *MemoryRepository) ActiveIntervals(ctx context.Context, resourceID, date string) ([]availability.BookingInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.intervalsLocked(resourceID, date)
	sort.Slice(out, func(i, j int) bool { return out[i].Interval.Start < out[j].Interval.Start })
	return out, nil
}

func (m *MemoryRepository) intervalsLocked(resourceID, date string) []availability.BookingInterval {
	var out []availability.BookingInterval
	for _, a := range m.appointments {
		if a.Date != date || !a.Status.Active() {
			continue
		}
		for _, r := range a.ResourceIDs {
			if r == resourceID {
				out = append(out, availability.BookingInterval{
					ResourceID:    r,
					AppointmentID: a.ID,
					Date:          a.Date,
					Interval:      a.Interval(),
					Status:        a.Status,
				})
			}
		}
	}
	return out
}

func (m *MemoryRepository) conflictsLocked(resourceIDs []string, date string, iv availability.Interval, exclude uuid.UUID) []availability.ResourceConflict {
	var out []availability.ResourceConflict
	for _, r := range resourceIDs {
		held := availability.ActiveIntervals(m.intervalsLocked(r, date), r, date, exclude)
		if overlapping := availability.Conflicts(iv, held); len(overlapping) > 0 {
			out = append(out, availability.ResourceConflict{ResourceID: r, Intervals: overlapping})
		}
	}
	return out
}

func copyAppointment(a *Appointment) Appointment {
	out := *a
	out.ResourceIDs = append([]string(nil), a.ResourceIDs...)
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		out.CancelledAt = &t
	}
	return out
}
