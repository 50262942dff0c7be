package archive

import (
	"errors"
	"net/http"

	"github.com/wolfman30/wellness-booking/internal/http/respond"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

// Handler triggers ledger archive runs.
type Handler struct {
	archiver *LedgerArchiver
	logger   *logging.Logger
}

func NewHandler(archiver *LedgerArchiver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{archiver: archiver, logger: logger}
}

// ArchiveMonth handles POST /admin/ledger/archive?month=YYYY-MM
func (h *Handler) ArchiveMonth(w http.ResponseWriter, r *http.Request) {
	result, err := h.archiver.ArchiveMonth(r.Context(), r.URL.Query().Get("month"))
	switch {
	case err == nil:
		respond.JSON(w, http.StatusOK, result)
	case errors.Is(err, ErrInvalidMonth):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDisabled):
		respond.Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("ledger archive failed", "error", err)
		respond.ServerError(w)
	}
}
