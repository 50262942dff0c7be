package availability

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfman30/wellness-booking/internal/observability/metrics"
	"github.com/wolfman30/wellness-booking/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("wellness.internal.availability")

// CheckRequest asks whether every listed resource is free for Interval on Date.
type CheckRequest struct {
	Date        string    `json:"date"`
	Interval    Interval  `json:"interval"`
	ResourceIDs []string  `json:"resource_ids"`
	Exclude     uuid.UUID `json:"-"`
}

// ResourceConflict lists the bookings that block one resource.
type ResourceConflict struct {
	ResourceID string     `json:"resource_id"`
	Intervals  []Interval `json:"intervals"`
}

// CheckResult is the multi-resource outcome. Available is true only when no
// resource conflicts.
type CheckResult struct {
	Available bool               `json:"available"`
	Conflicts []ResourceConflict `json:"conflicts,omitempty"`
}

// Message renders the conflicts for display, e.g. "instructor-1 booked 09:00-10:00".
func (r CheckResult) Message() string {
	if r.Available {
		return ""
	}
	parts := make([]string, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		spans := make([]string, 0, len(c.Intervals))
		for _, iv := range c.Intervals {
			spans = append(spans, iv.String())
		}
		parts = append(parts, fmt.Sprintf("%s booked %s", c.ResourceID, strings.Join(spans, ", ")))
	}
	return strings.Join(parts, "; ")
}

// Checker runs conflict checks against stored bookings. The result is a
// pre-check; the booking_intervals exclusion constraint is authoritative.
type Checker struct {
	store   IntervalStore
	metrics *metrics.AvailabilityMetrics
	logger  *logging.Logger
}

func NewChecker(store IntervalStore, m *metrics.AvailabilityMetrics, logger *logging.Logger) *Checker {
	if store == nil {
		panic("availability: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Checker{store: store, metrics: m, logger: logger}
}

// Validate normalizes the request and rejects malformed input.
func (req *CheckRequest) Validate() error {
	date, err := ParseDate(req.Date)
	if err != nil {
		return err
	}
	req.Date = date
	if err := req.Interval.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(req.ResourceIDs))
	ids := make([]string, 0, len(req.ResourceIDs))
	for _, id := range req.ResourceIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return ErrMissingResource
	}
	sort.Strings(ids)
	req.ResourceIDs = ids
	return nil
}

// Check loads each resource's active intervals and reports conflicts.
func (c *Checker) Check(ctx context.Context, req CheckRequest) (CheckResult, error) {
	if err := req.Validate(); err != nil {
		return CheckResult{}, err
	}
	ctx, span := tracer.Start(ctx, "availability.check", trace.WithAttributes(
		attribute.String("date", req.Date),
		attribute.String("interval", req.Interval.String()),
		attribute.StringSlice("resource_ids", req.ResourceIDs),
	))
	defer span.End()

	result := CheckResult{Available: true}
	for _, resourceID := range req.ResourceIDs {
		bookings, err := c.store.ActiveIntervals(ctx, resourceID, req.Date)
		if err != nil {
			span.RecordError(err)
			return CheckResult{}, err
		}
		overlapping := Conflicts(req.Interval, ActiveIntervals(bookings, resourceID, req.Date, req.Exclude))
		if len(overlapping) > 0 {
			result.Available = false
			result.Conflicts = append(result.Conflicts, ResourceConflict{ResourceID: resourceID, Intervals: overlapping})
		}
	}
	span.SetAttributes(attribute.Bool("available", result.Available))
	c.metrics.ObserveCheck(result.Available)
	if !result.Available {
		c.logger.Debug("availability conflict", "date", req.Date, "interval", req.Interval.String(), "detail", result.Message())
	}
	return result, nil
}

// SlotsRequest asks for the slot grid of one resource on one date. When
// Candidates is empty they are generated from Open, Close and Step.
type SlotsRequest struct {
	ResourceID  string      `json:"resource_id"`
	Date        string      `json:"date"`
	SlotMinutes int         `json:"slot_minutes"`
	Candidates  []TimeOfDay `json:"candidates,omitempty"`
	Open        TimeOfDay   `json:"open"`
	Close       TimeOfDay   `json:"close"`
	Step        int         `json:"step"`
}

// Slots loads the resource's bookings and evaluates each candidate.
func (c *Checker) Slots(ctx context.Context, req SlotsRequest) ([]Slot, error) {
	date, err := ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ResourceID) == "" {
		return nil, ErrMissingResource
	}
	candidates := req.Candidates
	if len(candidates) == 0 {
		step := req.Step
		if step <= 0 {
			step = req.SlotMinutes
		}
		candidates, err = GenerateCandidates(req.Open, req.Close, step, req.SlotMinutes)
		if err != nil {
			return nil, err
		}
	}
	ctx, span := tracer.Start(ctx, "availability.slots", trace.WithAttributes(
		attribute.String("resource_id", req.ResourceID),
		attribute.String("date", date),
	))
	defer span.End()

	bookings, err := c.store.ActiveIntervals(ctx, req.ResourceID, date)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return FindAvailableSlots(req.ResourceID, date, candidates, req.SlotMinutes, bookings)
}
