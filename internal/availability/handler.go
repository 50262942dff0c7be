package availability

import (
	"errors"
	"net/http"

	"github.com/wolfman30/wellness-booking/internal/http/respond"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

// Handler exposes conflict checks and slot grids.
type Handler struct {
	checker *Checker
	logger  *logging.Logger
}

func NewHandler(checker *Checker, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{checker: checker, logger: logger}
}

// CheckAvailabilityRequest accepts either End or DurationMinutes.
type CheckAvailabilityRequest struct {
	Date            string     `json:"date"`
	Start           TimeOfDay  `json:"start"`
	End             *TimeOfDay `json:"end,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	ResourceIDs     []string   `json:"resource_ids"`
}

// CheckAvailabilityResponse adds a display message to CheckResult.
type CheckAvailabilityResponse struct {
	CheckResult
	Message string `json:"message,omitempty"`
}

// Check handles POST /api/v1/availability/check
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckAvailabilityRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	end := req.Start.Add(req.DurationMinutes)
	if req.End != nil {
		end = *req.End
	}
	result, err := h.checker.Check(r.Context(), CheckRequest{
		Date:        req.Date,
		Interval:    Interval{Start: req.Start, End: end},
		ResourceIDs: req.ResourceIDs,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, CheckAvailabilityResponse{CheckResult: result, Message: result.Message()})
}

// Slots handles POST /api/v1/availability/slots
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	var req SlotsRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	slots, err := h.checker.Slots(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"resource_id": req.ResourceID,
		"date":        req.Date,
		"slots":       slots,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if IsValidation(err) {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("availability request failed", "error", err)
	respond.ServerError(w)
}

// IsValidation reports whether err came from malformed input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrMissingResource) ||
		errors.Is(err, ErrInvalidTimeOfDay)
}
