package bookings

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/wellness-booking/internal/credits"
	"github.com/wolfman30/wellness-booking/internal/http/respond"
	"github.com/wolfman30/wellness-booking/internal/identity"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

// Handler exposes the appointment workflow over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Book handles POST /api/v1/appointments
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var in BookInput
	if err := respond.Decode(w, r, &in); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	appt, err := h.service.Book(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, appt)
}

// List handles GET /api/v1/appointments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	list, err := h.service.ListForUser(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []Appointment{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"appointments": list, "count": len(list)})
}

// Get handles GET /api/v1/appointments/{appointmentID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

// Cancel handles POST /api/v1/appointments/{appointmentID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	result, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}

// Reschedule handles POST /api/v1/appointments/{appointmentID}/reschedule
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var in RescheduleInput
	if err := respond.Decode(w, r, &in); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	appt, err := h.service.Reschedule(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid appointment id")
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps service errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var conflict *ConflictError
	var insufficient *credits.InsufficientCreditError
	switch {
	case errors.As(err, &conflict):
		respond.JSON(w, http.StatusConflict, map[string]any{
			"error":     conflict.Error(),
			"conflicts": conflict.Conflicts,
		})
	case errors.Is(err, ErrSlotTaken):
		respond.Error(w, http.StatusConflict, err.Error())
	case errors.As(err, &insufficient):
		respond.JSON(w, http.StatusConflict, map[string]string{
			"error":     "insufficient credit",
			"requested": insufficient.Requested.StringFixed(2),
			"available": insufficient.Available.StringFixed(2),
		})
	case errors.Is(err, ErrNotActive), errors.Is(err, credits.ErrDuplicateCancellationCredit):
		respond.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		respond.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		respond.Error(w, http.StatusForbidden, err.Error())
	case IsValidation(err), credits.IsValidation(err):
		respond.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("bookings request failed", "error", err)
		respond.ServerError(w)
	}
}
