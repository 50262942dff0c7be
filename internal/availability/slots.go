package availability

import (
	"fmt"

	"github.com/google/uuid"
)

// Slot is one candidate start time and whether it can be booked.
type Slot struct {
	Time      TimeOfDay `json:"time"`
	Available bool      `json:"available"`
}

// FindAvailableSlots checks each candidate [start, start+slotMinutes) against
// the active bookings of resourceID on date, preserving candidate order.
// Candidates that would run past 24:00 are reported unavailable.
func FindAvailableSlots(resourceID, date string, candidates []TimeOfDay, slotMinutes int, existing []BookingInterval) ([]Slot, error) {
	return slotsAgainst(candidates, slotMinutes, ActiveIntervals(existing, resourceID, date, uuid.Nil))
}

func slotsAgainst(candidates []TimeOfDay, slotMinutes int, busy []Interval) ([]Slot, error) {
	if slotMinutes <= 0 {
		return nil, fmt.Errorf("%w: slot length %d minutes", ErrInvalidInterval, slotMinutes)
	}
	slots := make([]Slot, 0, len(candidates))
	for _, start := range candidates {
		iv := Interval{Start: start, End: start.Add(slotMinutes)}
		slots = append(slots, Slot{
			Time:      start,
			Available: iv.Validate() == nil && !HasConflict(iv, busy),
		})
	}
	return slots, nil
}

// GenerateCandidates lists start times from openAt, every step minutes, that
// leave room for a slot of slotMinutes before closeAt.
func GenerateCandidates(openAt, closeAt TimeOfDay, step, slotMinutes int) ([]TimeOfDay, error) {
	if step <= 0 || slotMinutes <= 0 {
		return nil, fmt.Errorf("%w: step %d, slot %d", ErrInvalidInterval, step, slotMinutes)
	}
	if _, err := NewInterval(openAt, closeAt); err != nil {
		return nil, err
	}
	var out []TimeOfDay
	for t := openAt; t.Add(slotMinutes) <= closeAt; t = t.Add(step) {
		out = append(out, t)
	}
	return out, nil
}
