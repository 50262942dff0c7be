package credits

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wolfman30/wellness-booking/internal/http/respond"
	"github.com/wolfman30/wellness-booking/internal/identity"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

// Handler serves the credit endpoints for patients and admins.
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

// BalanceResponse is returned by the balance endpoints.
type BalanceResponse struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	AsOf    time.Time       `json:"as_of"`
}

// QuoteRequest asks what a cancellation made now would earn.
type QuoteRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	AppointmentAt time.Time       `json:"appointment_at"`
}

// GrantRequest is the admin payload for issuing a credit.
type GrantRequest struct {
	Amount              decimal.Decimal `json:"amount"`
	Category            Category        `json:"category"`
	Description         string          `json:"description,omitempty"`
	ExpiresAt           *time.Time      `json:"expires_at,omitempty"`
	SourceAppointmentID *uuid.UUID      `json:"source_appointment_id,omitempty"`
	NotifyEmail         string          `json:"notify_email,omitempty"`
}

// GetBalance handles GET /api/v1/credits/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "missing identity")
		return
	}
	h.writeBalance(w, r, actor.ID)
}

// ListCredits handles GET /api/v1/credits
func (h *Handler) ListCredits(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "missing identity")
		return
	}
	h.writeCredits(w, r, actor.ID)
}

// ListTransactions handles GET /api/v1/credits/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "missing identity")
		return
	}
	h.writeTransactions(w, r, actor.ID)
}

// QuoteCancellation handles POST /api/v1/credits/quote
func (h *Handler) QuoteCancellation(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AppointmentAt.IsZero() {
		respond.Error(w, http.StatusBadRequest, "appointment_at is required")
		return
	}
	quote, err := h.service.Quote(req.Amount, req.AppointmentAt)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, quote)
}

// AdminGrant handles POST /admin/users/{userID}/credits
func (h *Handler) AdminGrant(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respond.Error(w, http.StatusBadRequest, "missing user id")
		return
	}
	var req GrantRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	credit, err := h.service.Grant(r.Context(), GrantInput{
		UserID:              userID,
		Category:            req.Category,
		Amount:              req.Amount,
		Description:         req.Description,
		ExpiresAt:           req.ExpiresAt,
		SourceAppointmentID: req.SourceAppointmentID,
		NotifyEmail:         req.NotifyEmail,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, credit)
}

// AdminListCredits handles GET /admin/users/{userID}/credits
func (h *Handler) AdminListCredits(w http.ResponseWriter, r *http.Request) {
	h.writeCredits(w, r, chi.URLParam(r, "userID"))
}

// AdminBalance handles GET /admin/users/{userID}/credits/balance
func (h *Handler) AdminBalance(w http.ResponseWriter, r *http.Request) {
	h.writeBalance(w, r, chi.URLParam(r, "userID"))
}

// AdminTransactions handles GET /admin/users/{userID}/credits/transactions
func (h *Handler) AdminTransactions(w http.ResponseWriter, r *http.Request) {
	h.writeTransactions(w, r, chi.URLParam(r, "userID"))
}

// AdminExpire handles POST /admin/credits/expire
func (h *Handler) AdminExpire(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ExpireOldCredits(r.Context())
	if err != nil {
		h.logger.Error("manual expiry sweep failed", "expired", n, "error", err)
		respond.ServerError(w)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int{"expired": n})
}

func (h *Handler) writeBalance(w http.ResponseWriter, r *http.Request, userID string) {
	balance, err := h.service.GetUserCreditBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, BalanceResponse{UserID: userID, Balance: balance, AsOf: h.service.Now()})
}

func (h *Handler) writeCredits(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := h.service.ListCredits(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []Credit{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"credits": list, "count": len(list)})
}

func (h *Handler) writeTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	list, err := h.service.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []Transaction{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"transactions": list, "count": len(list)})
}

// writeError maps service errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientCreditError
	switch {
	case errors.As(err, &insufficient):
		respond.JSON(w, http.StatusConflict, map[string]string{
			"error":     "insufficient credit",
			"requested": insufficient.Requested.StringFixed(2),
			"available": insufficient.Available.StringFixed(2),
		})
	case errors.Is(err, ErrDuplicateCancellationCredit):
		respond.Error(w, http.StatusConflict, err.Error())
	case IsValidation(err):
		respond.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("credits request failed", "error", err)
		respond.ServerError(w)
	}
}
